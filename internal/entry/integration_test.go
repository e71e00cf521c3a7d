package entry_test

import (
	"context"
	"errors"
	"testing"

	"github.com/staffv/kbstore/internal/entry"
	"github.com/staffv/kbstore/internal/testutil"
)

const embeddingDimension = 1536

func setupStore(t *testing.T) (*entry.Store, *testutil.Generator) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := testutil.SetupTestDB(t)
	generator := testutil.NewGenerator(embeddingDimension)
	store := entry.NewStore(entry.NewQueries(testDB.Pool), embeddingDimension, testutil.DiscardLogger())
	return store, generator
}

func TestStoreIntegration_PutGetDelete(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	id, err := store.Put(ctx, entry.Entry{
		SourceType: entry.SourceTypeManual,
		Title:      "Expense policy",
		Content:    "Receipts are required for purchases above fifty dollars.",
		Metadata:   map[string]any{"team": "finance"},
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Title != "Expense policy" {
		t.Errorf("title = %q", got.Title)
	}
	if got.Metadata["team"] != "finance" {
		t.Errorf("metadata = %v", got.Metadata)
	}
	if got.Embedding != nil {
		t.Errorf("embedding should be nil, got %d dims", len(got.Embedding))
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not populated")
	}

	if err := store.Delete(ctx, id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Get(ctx, id); !errors.Is(err, entry.ErrNotFound) {
		t.Errorf("Get after delete: error = %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, id); !errors.Is(err, entry.ErrNotFound) {
		t.Errorf("second Delete: error = %v, want ErrNotFound", err)
	}
}

func TestStoreIntegration_UpdateInPlace(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	id, err := store.Put(ctx, entry.Entry{
		SourceType: entry.SourceTypeManual,
		Title:      "Onboarding",
		Content:    "Original content.",
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	first, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	if _, err := store.Put(ctx, entry.Entry{
		ID:         id,
		SourceType: entry.SourceTypeManual,
		Title:      "Onboarding",
		Content:    "Revised content.",
	}); err != nil {
		t.Fatalf("update Put failed: %v", err)
	}

	second, err := store.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get after update failed: %v", err)
	}
	if second.Content != "Revised content." {
		t.Errorf("content = %q", second.Content)
	}
	if !second.UpdatedAt.After(first.UpdatedAt) {
		t.Errorf("updated_at did not advance: %v -> %v", first.UpdatedAt, second.UpdatedAt)
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Errorf("created_at changed: %v -> %v", first.CreatedAt, second.CreatedAt)
	}
}

func TestStoreIntegration_SourceURLConstraint(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	// Manual entry carrying a source URL violates the schema invariant.
	_, err := store.Put(ctx, entry.Entry{
		SourceType: entry.SourceTypeManual,
		SourceURL:  "https://example.com",
		Title:      "Bad",
		Content:    "Content.",
	})
	if !errors.Is(err, entry.ErrValidation) {
		t.Errorf("error = %v, want ErrValidation", err)
	}
}

func TestStoreIntegration_LexicalRanking(t *testing.T) {
	store, _ := setupStore(t)
	ctx := context.Background()

	titleHitID, err := store.Put(ctx, entry.Entry{
		SourceType: entry.SourceTypeManual,
		Title:      "Marketing plan",
		Content:    "Budget allocation for the next two quarters.",
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := store.Put(ctx, entry.Entry{
		SourceType: entry.SourceTypeManual,
		Title:      "Meeting notes",
		Content:    "We discussed the marketing plan and agreed on the budget.",
	}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	results, err := store.LexicalSearch(ctx, "marketing plan", 10)
	if err != nil {
		t.Fatalf("LexicalSearch failed: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d, want 2", len(results))
	}
	// Title matches outweigh content matches.
	if results[0].ID != titleHitID {
		t.Errorf("top result = %q (%s), want title match %q",
			results[0].ID, results[0].Title, titleHitID)
	}

	none, err := store.LexicalSearch(ctx, "unrelated zebra query", 10)
	if err != nil {
		t.Fatalf("LexicalSearch failed: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("unrelated query returned %d results", len(none))
	}
}

func TestStoreIntegration_VectorSearch(t *testing.T) {
	store, generator := setupStore(t)
	ctx := context.Background()

	embed := func(text string) []float32 {
		vec, err := generator.Embed(ctx, text)
		if err != nil {
			t.Fatalf("Embed failed: %v", err)
		}
		return vec
	}

	matchID, err := store.Put(ctx, entry.Entry{
		SourceType: entry.SourceTypeManual,
		Title:      "Vacation policy",
		Content:    "Employees accrue vacation days monthly.",
		Embedding:  embed("employees accrue vacation days monthly"),
	})
	if err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := store.Put(ctx, entry.Entry{
		SourceType: entry.SourceTypeManual,
		Title:      "Kubernetes runbook",
		Content:    "Restart the deployment with kubectl rollout.",
		Embedding:  embed("restart the deployment with kubectl rollout"),
	}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	// Entry without an embedding must never appear in vector results.
	if _, err := store.Put(ctx, entry.Entry{
		SourceType: entry.SourceTypeManual,
		Title:      "Pending entry",
		Content:    "Employees accrue vacation days monthly.",
	}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	matches, err := store.VectorSearch(ctx, embed("employees accrue vacation days monthly"), 0.5, 10)
	if err != nil {
		t.Fatalf("VectorSearch failed: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("matches = %d, want 1 above threshold", len(matches))
	}
	if matches[0].Entry.ID != matchID {
		t.Errorf("match = %q, want %q", matches[0].Entry.ID, matchID)
	}
	if matches[0].Similarity < 0.99 {
		t.Errorf("similarity = %v, want ~1.0 for identical text", matches[0].Similarity)
	}
}

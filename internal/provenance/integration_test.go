package provenance_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/staffv/kbstore/internal/provenance"
	"github.com/staffv/kbstore/internal/testutil"
)

func setupStore(t *testing.T) *provenance.Store {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	testDB := testutil.SetupTestDB(t)
	return provenance.NewStore(testDB.Pool, testutil.DiscardLogger())
}

func TestStoreIntegration_ClaimScrapeConverges(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	first, err := store.ClaimScrape(ctx, provenance.ClaimScrapeParams{
		URL:     "https://example.com/guide",
		Title:   "Guide",
		EntryID: uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("first ClaimScrape failed: %v", err)
	}
	if first.ScrapeCount != 1 {
		t.Errorf("scrape count = %d, want 1", first.ScrapeCount)
	}
	if first.Status != provenance.StatusPending {
		t.Errorf("status = %q, want pending", first.Status)
	}

	// Second claim for the same URL keeps the original entry id and
	// increments the count, regardless of the new candidate.
	second, err := store.ClaimScrape(ctx, provenance.ClaimScrapeParams{
		URL:     "https://example.com/guide",
		Title:   "Guide v2",
		EntryID: uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("second ClaimScrape failed: %v", err)
	}
	if second.EntryID != first.EntryID {
		t.Errorf("entry id changed on re-scrape: %q -> %q", first.EntryID, second.EntryID)
	}
	if second.ScrapeCount != 2 {
		t.Errorf("scrape count = %d, want 2", second.ScrapeCount)
	}
	if second.Title != "Guide v2" {
		t.Errorf("title not refreshed: %q", second.Title)
	}
	if second.ID != first.ID {
		t.Errorf("record id changed: %q -> %q", first.ID, second.ID)
	}
}

func TestStoreIntegration_FinishScrape(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	if _, err := store.ClaimScrape(ctx, provenance.ClaimScrapeParams{
		URL:     "https://example.com/page",
		EntryID: uuid.NewString(),
	}); err != nil {
		t.Fatalf("ClaimScrape failed: %v", err)
	}

	if err := store.FinishScrape(ctx, "https://example.com/page", provenance.StatusSuccess); err != nil {
		t.Fatalf("FinishScrape failed: %v", err)
	}

	rec, err := store.GetScrape(ctx, "https://example.com/page")
	if err != nil {
		t.Fatalf("GetScrape failed: %v", err)
	}
	if rec.Status != provenance.StatusSuccess {
		t.Errorf("status = %q, want success", rec.Status)
	}

	err = store.FinishScrape(ctx, "https://example.com/unknown", provenance.StatusSuccess)
	if !errors.Is(err, provenance.ErrScrapeNotFound) {
		t.Errorf("error = %v, want ErrScrapeNotFound", err)
	}
}

func TestStoreIntegration_RecordScrapeFailure(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	if err := store.RecordScrapeFailure(ctx, "https://example.com/broken"); err != nil {
		t.Fatalf("RecordScrapeFailure failed: %v", err)
	}
	if err := store.RecordScrapeFailure(ctx, "https://example.com/broken"); err != nil {
		t.Fatalf("second RecordScrapeFailure failed: %v", err)
	}

	rec, err := store.GetScrape(ctx, "https://example.com/broken")
	if err != nil {
		t.Fatalf("GetScrape failed: %v", err)
	}
	if rec.Status != provenance.StatusFailed {
		t.Errorf("status = %q, want failed", rec.Status)
	}
	if rec.ScrapeCount != 2 {
		t.Errorf("scrape count = %d, want 2", rec.ScrapeCount)
	}
	if rec.EntryID != "" {
		t.Errorf("failed scrape should have no entry id, got %q", rec.EntryID)
	}
}

func TestStoreIntegration_DocumentLifecycle(t *testing.T) {
	store := setupStore(t)
	ctx := context.Background()

	doc, err := store.CreateDocument(ctx, provenance.CreateDocumentParams{
		Filename:    "handbook.pdf",
		FileType:    "pdf",
		FileSize:    2048,
		StoragePath: "/uploads/handbook.pdf",
		UploadedBy:  "admin",
	})
	if err != nil {
		t.Fatalf("CreateDocument failed: %v", err)
	}
	if doc.Processed {
		t.Error("new document should not be processed")
	}

	entryID := uuid.NewString()
	if err := store.MarkDocumentProcessed(ctx, doc.ID, entryID); err != nil {
		t.Fatalf("MarkDocumentProcessed failed: %v", err)
	}

	got, err := store.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetDocument failed: %v", err)
	}
	if !got.Processed {
		t.Error("document should be processed")
	}
	if got.EntryID != entryID {
		t.Errorf("entry id = %q, want %q", got.EntryID, entryID)
	}

	err = store.MarkDocumentProcessed(ctx, uuid.NewString(), entryID)
	if !errors.Is(err, provenance.ErrDocumentNotFound) {
		t.Errorf("error = %v, want ErrDocumentNotFound", err)
	}

	_, err = store.GetDocument(ctx, uuid.NewString())
	if !errors.Is(err, provenance.ErrDocumentNotFound) {
		t.Errorf("error = %v, want ErrDocumentNotFound", err)
	}
}

package search

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/staffv/kbstore/internal/embedding"
	"github.com/staffv/kbstore/internal/entry"
	klog "github.com/staffv/kbstore/internal/log"
)

// ==================== Mocks ====================

type mockSearcher struct {
	lexicalResults []entry.Entry
	lexicalErr     error
	lexicalCalls   int

	vectorResults []entry.Match
	vectorErr     error
	vectorCalls   int

	gotThreshold float64
	gotLimit     int
}

func (m *mockSearcher) LexicalSearch(_ context.Context, _ string, _ int) ([]entry.Entry, error) {
	m.lexicalCalls++
	return m.lexicalResults, m.lexicalErr
}

func (m *mockSearcher) VectorSearch(_ context.Context, _ []float32, threshold float64, limit int) ([]entry.Match, error) {
	m.vectorCalls++
	m.gotThreshold = threshold
	m.gotLimit = limit
	return m.vectorResults, m.vectorErr
}

type mockGenerator struct {
	embedErr   error
	embedCalls int
}

func (m *mockGenerator) Embed(context.Context, string) ([]float32, error) {
	m.embedCalls++
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

func (m *mockGenerator) Dimension() int { return 3 }

func testEntry(id string) entry.Entry {
	return entry.Entry{ID: id, SourceType: entry.SourceTypeManual, Title: id, Content: "content " + id}
}

// ==================== Tests ====================

func TestEngine_Search_MergesDeterministically(t *testing.T) {
	searcher := &mockSearcher{
		vectorResults: []entry.Match{
			{Entry: testEntry("a"), Similarity: 0.9},
			{Entry: testEntry("b"), Similarity: 0.8},
		},
		lexicalResults: []entry.Entry{testEntry("b"), testEntry("c")},
	}
	engine := NewEngine(searcher, &mockGenerator{}, klog.NewNop())

	results, err := engine.Search(context.Background(), "planning")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	want := []struct {
		id         string
		signal     Signal
		similarity float64
	}{
		{"a", SignalVector, 0.9},
		{"b", SignalBoth, 0.8},
		{"c", SignalLexical, 0},
	}
	if len(results) != len(want) {
		t.Fatalf("results = %d, want %d", len(results), len(want))
	}
	for i, w := range want {
		if results[i].Entry.ID != w.id {
			t.Errorf("results[%d].ID = %q, want %q", i, results[i].Entry.ID, w.id)
		}
		if results[i].Signal != w.signal {
			t.Errorf("results[%d].Signal = %q, want %q", i, results[i].Signal, w.signal)
		}
		if results[i].Similarity != w.similarity {
			t.Errorf("results[%d].Similarity = %v, want %v", i, results[i].Similarity, w.similarity)
		}
	}
}

func TestEngine_Search_TruncatesToLimit(t *testing.T) {
	searcher := &mockSearcher{
		vectorResults: []entry.Match{
			{Entry: testEntry("a"), Similarity: 0.9},
			{Entry: testEntry("b"), Similarity: 0.8},
		},
		lexicalResults: []entry.Entry{testEntry("c"), testEntry("d")},
	}
	engine := NewEngine(searcher, &mockGenerator{}, klog.NewNop(), WithLimit(3))

	results, err := engine.Search(context.Background(), "planning")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if results[2].Entry.ID != "c" {
		t.Errorf("results[2].ID = %q, want %q", results[2].Entry.ID, "c")
	}
}

func TestEngine_Search_EmptyQuery(t *testing.T) {
	searcher := &mockSearcher{}
	generator := &mockGenerator{}
	engine := NewEngine(searcher, generator, klog.NewNop())

	results, err := engine.Search(context.Background(), "   ")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if results != nil {
		t.Errorf("results = %v, want nil", results)
	}
	if generator.embedCalls != 0 || searcher.lexicalCalls != 0 {
		t.Error("blank query should not hit the generator or the store")
	}
}

func TestEngine_Search_DegradesWhenEmbeddingUnavailable(t *testing.T) {
	searcher := &mockSearcher{
		lexicalResults: []entry.Entry{testEntry("a")},
	}
	generator := &mockGenerator{
		embedErr: fmt.Errorf("%w: quota exhausted", embedding.ErrUnavailable),
	}
	engine := NewEngine(searcher, generator, klog.NewNop())

	results, err := engine.Search(context.Background(), "planning")
	if err != nil {
		t.Fatalf("Search should degrade, not fail: %v", err)
	}

	if searcher.vectorCalls != 0 {
		t.Error("vector search should be skipped without an embedding")
	}
	if len(results) != 1 || results[0].Signal != SignalLexical {
		t.Errorf("results = %+v, want one lexical hit", results)
	}
}

func TestEngine_Search_StorageErrorsPropagate(t *testing.T) {
	t.Run("vector path", func(t *testing.T) {
		searcher := &mockSearcher{vectorErr: errors.New("connection reset")}
		engine := NewEngine(searcher, &mockGenerator{}, klog.NewNop())

		if _, err := engine.Search(context.Background(), "planning"); err == nil {
			t.Fatal("expected vector storage error to propagate")
		}
	})

	t.Run("lexical path", func(t *testing.T) {
		searcher := &mockSearcher{lexicalErr: errors.New("connection reset")}
		engine := NewEngine(searcher, &mockGenerator{}, klog.NewNop())

		if _, err := engine.Search(context.Background(), "planning"); err == nil {
			t.Fatal("expected lexical storage error to propagate")
		}
	})
}

func TestEngine_SearchWithOptions_OverridesPerCall(t *testing.T) {
	searcher := &mockSearcher{}
	engine := NewEngine(searcher, &mockGenerator{}, klog.NewNop())

	if _, err := engine.SearchWithOptions(context.Background(), "planning",
		WithThreshold(0.8), WithLimit(5)); err != nil {
		t.Fatalf("SearchWithOptions failed: %v", err)
	}
	if searcher.gotThreshold != 0.8 || searcher.gotLimit != 5 {
		t.Errorf("override not applied: threshold %v, limit %d", searcher.gotThreshold, searcher.gotLimit)
	}

	// Engine defaults are untouched.
	if _, err := engine.Search(context.Background(), "planning"); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if searcher.gotThreshold != DefaultThreshold || searcher.gotLimit != DefaultLimit {
		t.Errorf("defaults changed: threshold %v, limit %d", searcher.gotThreshold, searcher.gotLimit)
	}
}

func TestEngine_Options(t *testing.T) {
	searcher := &mockSearcher{}
	engine := NewEngine(searcher, &mockGenerator{}, klog.NewNop(),
		WithThreshold(0.7), WithLimit(25))

	if _, err := engine.Search(context.Background(), "planning"); err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if searcher.gotThreshold != 0.7 {
		t.Errorf("threshold = %v, want 0.7", searcher.gotThreshold)
	}
	if searcher.gotLimit != 25 {
		t.Errorf("limit = %d, want 25", searcher.gotLimit)
	}
}

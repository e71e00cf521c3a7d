// Package entry implements the durable knowledge entry store.
//
// The store owns knowledge entry identity, content and embedding vectors,
// persisted in PostgreSQL. It serves two read paths: lexical search over a
// weighted full-text index and vector search over a pgvector cosine index.
// Provenance trackers (package provenance) hold weak references into this
// store but never own its rows.
package entry

import (
	"fmt"
	"strings"
	"time"
)

// SourceType categorizes where an entry's content came from.
type SourceType string

const (
	// SourceTypeURL represents content scraped from a web page.
	SourceTypeURL SourceType = "url"

	// SourceTypeDocument represents content extracted from an uploaded file.
	SourceTypeDocument SourceType = "document"

	// SourceTypeManual represents manually entered text.
	SourceTypeManual SourceType = "manual"
)

// Valid reports whether s is one of the known source types.
func (s SourceType) Valid() bool {
	switch s {
	case SourceTypeURL, SourceTypeDocument, SourceTypeManual:
		return true
	}
	return false
}

// Entry is a single knowledge entry.
//
// ID is opaque and immutable once assigned. SourceType is immutable once
// set. SourceURL must be non-empty iff SourceType is SourceTypeURL.
// Embedding is nil until the embedding generator has processed the entry;
// such entries are reachable through lexical search only.
type Entry struct {
	ID         string
	SourceType SourceType
	SourceURL  string // empty unless SourceType == SourceTypeURL
	Title      string
	Content    string
	Metadata   map[string]any // open key/value map, source-specific
	Embedding  []float32      // nil = embedding pending or unavailable
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Match is a vector search hit: an entry with its cosine similarity to the
// query embedding. Similarity is 1 - cosine distance, practically in [0, 1]
// for normalized embedding spaces.
type Match struct {
	Entry      Entry
	Similarity float64
}

// Validate checks the store invariants for an entry prior to a write.
// dimension is the configured embedding dimension; a non-nil embedding of
// any other length is rejected.
func (e *Entry) Validate(dimension int) error {
	if !e.SourceType.Valid() {
		return fmt.Errorf("%w: unknown source type %q", ErrValidation, e.SourceType)
	}

	hasURL := strings.TrimSpace(e.SourceURL) != ""
	if (e.SourceType == SourceTypeURL) != hasURL {
		return fmt.Errorf("%w: source_url must be set iff source_type is %q (type=%q, url=%q)",
			ErrValidation, SourceTypeURL, e.SourceType, e.SourceURL)
	}

	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("%w: title must not be empty", ErrValidation)
	}
	if strings.TrimSpace(e.Content) == "" {
		return fmt.Errorf("%w: content must not be empty", ErrValidation)
	}

	if e.Embedding != nil && len(e.Embedding) != dimension {
		return fmt.Errorf("%w: embedding has %d dimensions, store is configured for %d",
			ErrValidation, len(e.Embedding), dimension)
	}

	return nil
}

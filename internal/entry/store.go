package entry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

const (
	// DefaultSearchLimit caps result counts when the caller passes zero or
	// a negative limit.
	DefaultSearchLimit = 10

	// MaxSearchLimit is the absolute result cap to prevent unbounded reads.
	MaxSearchLimit = 100

	// storageRetryBudget bounds retries of transient storage failures.
	storageRetryBudget = 3

	// storageRetryInterval is the initial backoff interval between retries.
	storageRetryInterval = 100 * time.Millisecond
)

// Store manages knowledge entries in PostgreSQL.
//
// Transient storage failures are retried with exponential backoff inside
// each operation, bounded by storageRetryBudget. Caller-correctable
// failures (ErrValidation, ErrNotFound) surface immediately.
//
// Store is safe for concurrent use by multiple goroutines; the database
// provides row-level atomicity for writes.
type Store struct {
	queries   Querier
	dimension int
	logger    *slog.Logger
}

// NewStore creates a Store. dimension is the embedding vector dimension the
// persisted schema expects; entries carrying an embedding of any other
// length are rejected at Put.
func NewStore(queries Querier, dimension int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		queries:   queries,
		dimension: dimension,
		logger:    logger,
	}
}

// Put inserts a new entry or, when e.ID is set, updates it in place.
// A missing ID is generated. updated_at advances on every write. Returns
// the entry id.
func (s *Store) Put(ctx context.Context, e Entry) (string, error) {
	if err := e.Validate(s.dimension); err != nil {
		return "", err
	}

	if e.ID == "" {
		e.ID = uuid.NewString()
	}

	metadataJSON, err := json.Marshal(e.Metadata)
	if err != nil {
		return "", fmt.Errorf("failed to marshal metadata: %w", err)
	}

	params := UpsertEntryParams{
		ID:         e.ID,
		SourceType: string(e.SourceType),
		Title:      e.Title,
		Content:    e.Content,
		Metadata:   metadataJSON,
	}
	if e.SourceURL != "" {
		params.SourceURL = &e.SourceURL
	}
	if e.Embedding != nil {
		v := pgvector.NewVector(e.Embedding)
		params.Embedding = &v
	}

	err = s.withRetry(ctx, "put", func() error {
		return s.queries.UpsertEntry(ctx, params)
	})
	if err != nil {
		if isConstraintViolation(err) {
			return "", fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return "", fmt.Errorf("failed to upsert entry %q: %w", e.ID, err)
	}

	s.logger.Debug("stored entry", "id", e.ID, "source_type", e.SourceType, "embedded", e.Embedding != nil)
	return e.ID, nil
}

// Get fetches an entry by id. Returns ErrNotFound for unknown ids.
func (s *Store) Get(ctx context.Context, id string) (Entry, error) {
	var row EntryRow
	err := s.withRetry(ctx, "get", func() error {
		var qErr error
		row, qErr = s.queries.GetEntry(ctx, id)
		return qErr
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, fmt.Errorf("entry %q: %w", id, ErrNotFound)
		}
		return Entry{}, fmt.Errorf("failed to get entry %q: %w", id, err)
	}

	e, err := row.toEntry()
	if err != nil {
		// Tolerate corrupt metadata on read; the entry itself is intact.
		s.logger.Warn("failed to parse entry metadata", "id", id, "error", err)
		e.Metadata = make(map[string]any)
	}
	return e, nil
}

// Delete removes an entry. It succeeds even when provenance trackers still
// reference the id; those references dangle and are resolved lazily by
// their owners. Returns ErrNotFound for unknown ids.
func (s *Store) Delete(ctx context.Context, id string) error {
	var affected int64
	err := s.withRetry(ctx, "delete", func() error {
		var qErr error
		affected, qErr = s.queries.DeleteEntry(ctx, id)
		return qErr
	})
	if err != nil {
		return fmt.Errorf("failed to delete entry %q: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("entry %q: %w", id, ErrNotFound)
	}

	s.logger.Debug("deleted entry", "id", id)
	return nil
}

// LexicalSearch ranks entries by weighted text relevance over title and
// content. Ties are broken by most recent updated_at first. An empty query
// returns no results.
func (s *Store) LexicalSearch(ctx context.Context, query string, limit int) ([]Entry, error) {
	if query == "" {
		return nil, nil
	}
	limit = clampLimit(limit)

	var rows []EntryRow
	err := s.withRetry(ctx, "lexical_search", func() error {
		var qErr error
		rows, qErr = s.queries.LexicalSearchEntries(ctx, LexicalSearchParams{
			Query:       query,
			ResultLimit: int32(limit),
		})
		return qErr
	})
	if err != nil {
		return nil, fmt.Errorf("lexical search failed: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, row := range rows {
		e, err := row.toEntry()
		if err != nil {
			s.logger.Warn("failed to parse entry metadata", "id", row.ID, "error", err)
			e.Metadata = make(map[string]any)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// VectorSearch returns entries ordered by descending cosine similarity to
// queryEmbedding. Entries without an embedding are excluded, as are results
// with similarity <= threshold.
func (s *Store) VectorSearch(ctx context.Context, queryEmbedding []float32, threshold float64, limit int) ([]Match, error) {
	if len(queryEmbedding) != s.dimension {
		return nil, fmt.Errorf("%w: query embedding has %d dimensions, store is configured for %d",
			ErrValidation, len(queryEmbedding), s.dimension)
	}
	limit = clampLimit(limit)

	var rows []VectorSearchRow
	err := s.withRetry(ctx, "vector_search", func() error {
		var qErr error
		rows, qErr = s.queries.VectorSearchEntries(ctx, VectorSearchParams{
			QueryEmbedding: pgvector.NewVector(queryEmbedding),
			Threshold:      threshold,
			ResultLimit:    int32(limit),
		})
		return qErr
	})
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	matches := make([]Match, 0, len(rows))
	for _, row := range rows {
		e, err := row.toEntry()
		if err != nil {
			s.logger.Warn("failed to parse entry metadata", "id", row.ID, "error", err)
			e.Metadata = make(map[string]any)
		}
		matches = append(matches, Match{Entry: e, Similarity: row.Similarity})
	}
	return matches, nil
}

// withRetry runs op, retrying transient storage failures with exponential
// backoff up to storageRetryBudget attempts. Permanent failures (not found,
// constraint violations, context cancellation) abort immediately.
func (s *Store) withRetry(ctx context.Context, opName string, op func() error) error {
	attempt := 0
	wrapped := func() error {
		attempt++
		err := op()
		if err == nil {
			return nil
		}
		if isPermanent(err) {
			return backoff.Permanent(err)
		}
		s.logger.Warn("transient storage failure, retrying",
			"operation", opName, "attempt", attempt, "error", err)
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = storageRetryInterval

	return backoff.Retry(wrapped, backoff.WithContext(
		backoff.WithMaxRetries(b, storageRetryBudget), ctx))
}

// isPermanent reports whether a storage error should not be retried.
func isPermanent(err error) bool {
	if errors.Is(err, pgx.ErrNoRows) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) >= 2 {
		switch pgErr.Code[:2] {
		case "22", "23", "42": // data exception, integrity violation, syntax/access
			return true
		}
	}
	return false
}

// isConstraintViolation reports whether err is a check or unique constraint
// failure, which maps to ErrValidation for the caller.
func isConstraintViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && len(pgErr.Code) >= 2 && pgErr.Code[:2] == "23"
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		return MaxSearchLimit
	}
	return limit
}

package entry

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pgvector/pgvector-go"

	"github.com/staffv/kbstore/internal/database"
)

// Querier defines the database operations the Store depends on.
// Following Go best practices the interface is defined by the consumer,
// not the provider, so the Store can be tested against a mock.
type Querier interface {
	// UpsertEntry inserts a new entry or updates an existing one in place.
	// source_type is never updated; it is immutable once set.
	UpsertEntry(ctx context.Context, arg UpsertEntryParams) error

	// GetEntry fetches a single entry by id. Returns pgx.ErrNoRows when absent.
	GetEntry(ctx context.Context, id string) (EntryRow, error)

	// DeleteEntry removes an entry by id, returning the number of rows removed.
	DeleteEntry(ctx context.Context, id string) (int64, error)

	// LexicalSearchEntries ranks entries by weighted text relevance over
	// title and content, ties broken by most recent updated_at.
	LexicalSearchEntries(ctx context.Context, arg LexicalSearchParams) ([]EntryRow, error)

	// VectorSearchEntries returns entries by descending cosine similarity,
	// excluding NULL embeddings and similarities at or below the threshold.
	VectorSearchEntries(ctx context.Context, arg VectorSearchParams) ([]VectorSearchRow, error)
}

// UpsertEntryParams are the column values for UpsertEntry.
type UpsertEntryParams struct {
	ID         string
	SourceType string
	SourceURL  *string
	Title      string
	Content    string
	Metadata   []byte
	Embedding  *pgvector.Vector
}

// LexicalSearchParams are the inputs for LexicalSearchEntries.
type LexicalSearchParams struct {
	Query       string
	ResultLimit int32
}

// VectorSearchParams are the inputs for VectorSearchEntries.
type VectorSearchParams struct {
	QueryEmbedding pgvector.Vector
	Threshold      float64
	ResultLimit    int32
}

// EntryRow is a raw database row for a knowledge entry.
type EntryRow struct {
	ID         string
	SourceType string
	SourceURL  *string
	Title      string
	Content    string
	Metadata   []byte
	Embedding  *pgvector.Vector
	CreatedAt  pgtype.Timestamptz
	UpdatedAt  pgtype.Timestamptz
}

// VectorSearchRow is an EntryRow with its cosine similarity to the query.
type VectorSearchRow struct {
	EntryRow
	Similarity float64
}

// Queries implements Querier against PostgreSQL via pgx.
type Queries struct {
	db database.DBTX
}

// NewQueries creates a Queries bound to the given pool, connection or
// transaction.
func NewQueries(db database.DBTX) *Queries {
	return &Queries{db: db}
}

const upsertEntrySQL = `
INSERT INTO knowledge_entries (id, source_type, source_url, title, content, metadata, embedding)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
    source_url = EXCLUDED.source_url,
    title      = EXCLUDED.title,
    content    = EXCLUDED.content,
    metadata   = EXCLUDED.metadata,
    embedding  = EXCLUDED.embedding,
    updated_at = now()
`

func (q *Queries) UpsertEntry(ctx context.Context, arg UpsertEntryParams) error {
	_, err := q.db.Exec(ctx, upsertEntrySQL,
		arg.ID, arg.SourceType, arg.SourceURL, arg.Title, arg.Content, arg.Metadata, arg.Embedding)
	return err
}

const getEntrySQL = `
SELECT id, source_type, source_url, title, content, metadata, embedding, created_at, updated_at
FROM knowledge_entries
WHERE id = $1
`

func (q *Queries) GetEntry(ctx context.Context, id string) (EntryRow, error) {
	var row EntryRow
	err := q.db.QueryRow(ctx, getEntrySQL, id).Scan(
		&row.ID, &row.SourceType, &row.SourceURL, &row.Title, &row.Content,
		&row.Metadata, &row.Embedding, &row.CreatedAt, &row.UpdatedAt)
	return row, err
}

const deleteEntrySQL = `DELETE FROM knowledge_entries WHERE id = $1`

func (q *Queries) DeleteEntry(ctx context.Context, id string) (int64, error) {
	tag, err := q.db.Exec(ctx, deleteEntrySQL, id)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const lexicalSearchSQL = `
SELECT id, source_type, source_url, title, content, metadata, embedding, created_at, updated_at
FROM knowledge_entries
WHERE search @@ websearch_to_tsquery('english', $1)
ORDER BY ts_rank(search, websearch_to_tsquery('english', $1)) DESC, updated_at DESC
LIMIT $2
`

func (q *Queries) LexicalSearchEntries(ctx context.Context, arg LexicalSearchParams) ([]EntryRow, error) {
	rows, err := q.db.Query(ctx, lexicalSearchSQL, arg.Query, arg.ResultLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []EntryRow
	for rows.Next() {
		var row EntryRow
		if err := rows.Scan(
			&row.ID, &row.SourceType, &row.SourceURL, &row.Title, &row.Content,
			&row.Metadata, &row.Embedding, &row.CreatedAt, &row.UpdatedAt); err != nil {
			return nil, err
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

const vectorSearchSQL = `
SELECT id, source_type, source_url, title, content, metadata, embedding, created_at, updated_at,
       1 - (embedding <=> $1) AS similarity
FROM knowledge_entries
WHERE embedding IS NOT NULL
  AND 1 - (embedding <=> $1) > $2
ORDER BY similarity DESC, updated_at DESC
LIMIT $3
`

func (q *Queries) VectorSearchEntries(ctx context.Context, arg VectorSearchParams) ([]VectorSearchRow, error) {
	rows, err := q.db.Query(ctx, vectorSearchSQL, arg.QueryEmbedding, arg.Threshold, arg.ResultLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []VectorSearchRow
	for rows.Next() {
		var row VectorSearchRow
		if err := rows.Scan(
			&row.ID, &row.SourceType, &row.SourceURL, &row.Title, &row.Content,
			&row.Metadata, &row.Embedding, &row.CreatedAt, &row.UpdatedAt,
			&row.Similarity); err != nil {
			return nil, err
		}
		results = append(results, row)
	}
	return results, rows.Err()
}

// toEntry converts a database row into the business model. On a metadata
// parse failure the entry is still returned fully populated (with an empty
// metadata map) alongside the error, so callers can tolerate corruption.
func (row EntryRow) toEntry() (Entry, error) {
	e := Entry{
		ID:         row.ID,
		SourceType: SourceType(row.SourceType),
		Title:      row.Title,
		Content:    row.Content,
		Metadata:   make(map[string]any),
	}
	if row.SourceURL != nil {
		e.SourceURL = *row.SourceURL
	}
	if row.Embedding != nil {
		e.Embedding = row.Embedding.Slice()
	}
	if row.CreatedAt.Valid {
		e.CreatedAt = row.CreatedAt.Time
	}
	if row.UpdatedAt.Valid {
		e.UpdatedAt = row.UpdatedAt.Time
	}

	if len(row.Metadata) > 0 {
		if err := json.Unmarshal(row.Metadata, &e.Metadata); err != nil {
			return e, fmt.Errorf("failed to parse metadata for entry %q: %w", row.ID, err)
		}
	}
	return e, nil
}

var _ Querier = (*Queries)(nil)

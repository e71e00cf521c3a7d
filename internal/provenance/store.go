package provenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/staffv/kbstore/internal/database"
)

// Store persists provenance records in PostgreSQL.
//
// Store is safe for concurrent use. The scraped_urls unique constraint on
// url makes ClaimScrape a single conditional write: concurrent scrapes of
// the same URL converge on one record and one entry id, never a duplicate.
type Store struct {
	db     database.DBTX
	logger *slog.Logger
}

// NewStore creates a provenance Store.
func NewStore(db database.DBTX, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// ClaimScrapeParams are the inputs for ClaimScrape.
type ClaimScrapeParams struct {
	URL             string
	Title           string
	MetaDescription string

	// EntryID is the candidate entry id for a first-time scrape. When the
	// URL already has a record its existing entry id wins and is returned
	// in the claimed record; the candidate is discarded.
	EntryID string
}

const claimScrapeSQL = `
INSERT INTO scraped_urls (id, url, title, meta_description, status, scrape_count, last_scraped_at, entry_id)
VALUES ($1, $2, $3, $4, 'pending', 1, now(), $5)
ON CONFLICT (url) DO UPDATE SET
    title            = EXCLUDED.title,
    meta_description = EXCLUDED.meta_description,
    status           = 'pending',
    scrape_count     = scraped_urls.scrape_count + 1,
    last_scraped_at  = now(),
    entry_id         = COALESCE(scraped_urls.entry_id, EXCLUDED.entry_id)
RETURNING id, url, title, meta_description, status, scrape_count, last_scraped_at, entry_id, created_at
`

// ClaimScrape atomically creates or refreshes the scrape record for a URL
// and claims the entry id the scrape will write to. The returned record's
// EntryID is either the pre-existing entry for this URL (re-scrape, update
// in place) or params.EntryID (first scrape). The record is left in
// StatusPending; callers finish with FinishScrape.
func (s *Store) ClaimScrape(ctx context.Context, params ClaimScrapeParams) (ScrapedURL, error) {
	row := s.db.QueryRow(ctx, claimScrapeSQL,
		uuid.NewString(), params.URL, params.Title, params.MetaDescription, params.EntryID)

	rec, err := scanScrapedURL(row)
	if err != nil {
		return ScrapedURL{}, fmt.Errorf("failed to claim scrape for %q: %w", params.URL, err)
	}

	s.logger.Debug("claimed scrape",
		"url", rec.URL, "scrape_count", rec.ScrapeCount, "entry_id", rec.EntryID)
	return rec, nil
}

const finishScrapeSQL = `UPDATE scraped_urls SET status = $2 WHERE url = $1`

// FinishScrape records the terminal status of a scrape previously claimed
// with ClaimScrape.
func (s *Store) FinishScrape(ctx context.Context, url string, status Status) error {
	tag, err := s.db.Exec(ctx, finishScrapeSQL, url, string(status))
	if err != nil {
		return fmt.Errorf("failed to finish scrape for %q: %w", url, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finish scrape for %q: %w", url, ErrScrapeNotFound)
	}
	return nil
}

const recordScrapeFailureSQL = `
INSERT INTO scraped_urls (id, url, status, scrape_count, last_scraped_at)
VALUES ($1, $2, 'failed', 1, now())
ON CONFLICT (url) DO UPDATE SET
    status          = 'failed',
    scrape_count    = scraped_urls.scrape_count + 1,
    last_scraped_at = now()
`

// RecordScrapeFailure marks a scrape attempt as failed before any entry was
// claimed (e.g. the page had no extractable content). The scrape count and
// last_scraped_at still advance so repeated failures are observable.
func (s *Store) RecordScrapeFailure(ctx context.Context, url string) error {
	_, err := s.db.Exec(ctx, recordScrapeFailureSQL, uuid.NewString(), url)
	if err != nil {
		return fmt.Errorf("failed to record scrape failure for %q: %w", url, err)
	}
	return nil
}

const getScrapeSQL = `
SELECT id, url, title, meta_description, status, scrape_count, last_scraped_at, entry_id, created_at
FROM scraped_urls
WHERE url = $1
`

// GetScrape fetches the scrape record for a URL.
func (s *Store) GetScrape(ctx context.Context, url string) (ScrapedURL, error) {
	rec, err := scanScrapedURL(s.db.QueryRow(ctx, getScrapeSQL, url))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ScrapedURL{}, fmt.Errorf("scrape %q: %w", url, ErrScrapeNotFound)
		}
		return ScrapedURL{}, fmt.Errorf("failed to get scrape for %q: %w", url, err)
	}
	return rec, nil
}

// CreateDocumentParams are the inputs for CreateDocument.
type CreateDocumentParams struct {
	Filename    string
	FileType    string
	FileSize    int64
	StoragePath string
	UploadedBy  string
}

const createDocumentSQL = `
INSERT INTO uploaded_documents (id, filename, file_type, file_size, storage_path, uploaded_by)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, filename, file_type, file_size, storage_path, processed, uploaded_by, entry_id, uploaded_at
`

// CreateDocument records an uploaded file before processing. Processed is
// false and EntryID empty until the pipeline produces an entry.
func (s *Store) CreateDocument(ctx context.Context, params CreateDocumentParams) (UploadedDocument, error) {
	row := s.db.QueryRow(ctx, createDocumentSQL,
		uuid.NewString(), params.Filename, params.FileType, params.FileSize,
		params.StoragePath, params.UploadedBy)

	doc, err := scanUploadedDocument(row)
	if err != nil {
		return UploadedDocument{}, fmt.Errorf("failed to create document record for %q: %w", params.Filename, err)
	}

	s.logger.Debug("created document record", "id", doc.ID, "filename", doc.Filename)
	return doc, nil
}

const markDocumentProcessedSQL = `
UPDATE uploaded_documents SET processed = TRUE, entry_id = $2 WHERE id = $1
`

// MarkDocumentProcessed sets the processed flag and entry back-reference
// once ingestion has produced a knowledge entry from the file.
func (s *Store) MarkDocumentProcessed(ctx context.Context, docID, entryID string) error {
	tag, err := s.db.Exec(ctx, markDocumentProcessedSQL, docID, entryID)
	if err != nil {
		return fmt.Errorf("failed to mark document %q processed: %w", docID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("mark document %q processed: %w", docID, ErrDocumentNotFound)
	}
	return nil
}

const getDocumentSQL = `
SELECT id, filename, file_type, file_size, storage_path, processed, uploaded_by, entry_id, uploaded_at
FROM uploaded_documents
WHERE id = $1
`

// GetDocument fetches an upload record by id.
func (s *Store) GetDocument(ctx context.Context, id string) (UploadedDocument, error) {
	doc, err := scanUploadedDocument(s.db.QueryRow(ctx, getDocumentSQL, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return UploadedDocument{}, fmt.Errorf("document %q: %w", id, ErrDocumentNotFound)
		}
		return UploadedDocument{}, fmt.Errorf("failed to get document %q: %w", id, err)
	}
	return doc, nil
}

func scanScrapedURL(row pgx.Row) (ScrapedURL, error) {
	var (
		rec           ScrapedURL
		status        string
		entryID       *string
		lastScrapedAt pgtype.Timestamptz
		createdAt     pgtype.Timestamptz
	)
	err := row.Scan(&rec.ID, &rec.URL, &rec.Title, &rec.MetaDescription, &status,
		&rec.ScrapeCount, &lastScrapedAt, &entryID, &createdAt)
	if err != nil {
		return ScrapedURL{}, err
	}

	rec.Status = Status(status)
	if entryID != nil {
		rec.EntryID = *entryID
	}
	if lastScrapedAt.Valid {
		rec.LastScrapedAt = lastScrapedAt.Time
	}
	if createdAt.Valid {
		rec.CreatedAt = createdAt.Time
	}
	return rec, nil
}

func scanUploadedDocument(row pgx.Row) (UploadedDocument, error) {
	var (
		doc        UploadedDocument
		entryID    *string
		uploadedAt pgtype.Timestamptz
	)
	err := row.Scan(&doc.ID, &doc.Filename, &doc.FileType, &doc.FileSize,
		&doc.StoragePath, &doc.Processed, &doc.UploadedBy, &entryID, &uploadedAt)
	if err != nil {
		return UploadedDocument{}, err
	}

	if entryID != nil {
		doc.EntryID = *entryID
	}
	if uploadedAt.Valid {
		doc.UploadedAt = uploadedAt.Time
	}
	return doc, nil
}

// Package provenance tracks where knowledge entries came from.
//
// Two satellite records reference the entry store: ScrapedURL (one per
// unique URL, enforcing at most one live entry per URL) and
// UploadedDocument (one per uploaded file). Both hold weak back-references
// to entries: plain identifier fields with no foreign key. Deleting an
// entry never fails a tracker update; a dangling EntryID simply resolves
// to nothing and the caller treats the reference as absent.
package provenance

import (
	"errors"
	"time"
)

// Status is the outcome of the most recent scrape of a URL.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusPending Status = "pending"
)

var (
	// ErrScrapeNotFound indicates no scrape record exists for the URL.
	ErrScrapeNotFound = errors.New("scraped url record not found")

	// ErrDocumentNotFound indicates no upload record exists for the id.
	ErrDocumentNotFound = errors.New("uploaded document record not found")
)

// ScrapedURL records ingestion metadata for one unique URL.
// ScrapeCount starts at 1 and increments on every re-scrape, including
// failed ones; LastScrapedAt always advances so repeated failures stay
// observable.
type ScrapedURL struct {
	ID              string
	URL             string
	Title           string
	MetaDescription string
	Status          Status
	ScrapeCount     int
	LastScrapedAt   time.Time
	EntryID         string // weak reference; empty when unresolved or orphaned
	CreatedAt       time.Time
}

// UploadedDocument records ingestion metadata for one uploaded file.
// Processed stays false until the ingestion pipeline has produced a
// knowledge entry from the file.
type UploadedDocument struct {
	ID          string
	Filename    string
	FileType    string
	FileSize    int64
	StoragePath string
	Processed   bool
	UploadedBy  string
	EntryID     string // weak reference; empty until processed
	UploadedAt  time.Time
}

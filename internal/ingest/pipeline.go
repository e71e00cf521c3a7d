// Package ingest moves raw content through normalization, embedding and
// storage, keeping the provenance trackers consistent along the way.
//
// Every ingestion unit walks the same state machine:
//
//	RECEIVED -> NORMALIZED -> EMBEDDED -> STORED
//	     \___________\____________\____> FAILED
//
// Embedding failure is not terminal: the unit skips EMBEDDED and is stored
// without a vector, reachable through lexical search until re-ingested.
// Normalization and storage failures are terminal.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/staffv/kbstore/internal/embedding"
	"github.com/staffv/kbstore/internal/entry"
	"github.com/staffv/kbstore/internal/provenance"
)

// State identifies an ingestion unit's position in the pipeline.
type State string

const (
	StateReceived   State = "received"
	StateNormalized State = "normalized"
	StateEmbedded   State = "embedded"
	StateStored     State = "stored"
	StateFailed     State = "failed"
)

// EntryWriter is the slice of the entry store the pipeline writes through.
type EntryWriter interface {
	Put(ctx context.Context, e entry.Entry) (string, error)
}

// ScrapeTracker records URL scrape provenance.
type ScrapeTracker interface {
	ClaimScrape(ctx context.Context, params provenance.ClaimScrapeParams) (provenance.ScrapedURL, error)
	FinishScrape(ctx context.Context, url string, status provenance.Status) error
	RecordScrapeFailure(ctx context.Context, url string) error
}

// DocumentTracker records uploaded document provenance.
type DocumentTracker interface {
	CreateDocument(ctx context.Context, params provenance.CreateDocumentParams) (provenance.UploadedDocument, error)
	MarkDocumentProcessed(ctx context.Context, docID, entryID string) error
}

// Result reports where an ingestion unit ended up.
type Result struct {
	EntryID    string
	State      State
	Embedded   bool   // false when the entry was stored without a vector
	DocumentID string // document ingestion only
	Rescrape   bool   // URL ingestion only: an existing entry was updated
}

// Pipeline orchestrates ingestion across the entry store, the provenance
// trackers and the embedding generator. Safe for concurrent use; concurrent
// units for the same source URL converge on one entry via the scrape
// tracker's atomic claim.
type Pipeline struct {
	entries   EntryWriter
	scrapes   ScrapeTracker
	documents DocumentTracker
	generator embedding.Generator
	logger    *slog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(entries EntryWriter, scrapes ScrapeTracker, documents DocumentTracker, generator embedding.Generator, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		entries:   entries,
		scrapes:   scrapes,
		documents: documents,
		generator: generator,
		logger:    logger,
	}
}

// IngestURL ingests a scraped page. Re-ingesting a URL updates the existing
// entry in place and increments the scrape count instead of creating a
// duplicate. Pages with no extractable content are recorded as failed
// scrapes and produce no entry.
func (p *Pipeline) IngestURL(ctx context.Context, rawHTML []byte, sourceURL string) (Result, error) {
	norm, err := NormalizeHTML(rawHTML, sourceURL)
	if err != nil {
		if errors.Is(err, ErrNormalization) {
			// Record the failed attempt even if the caller is gone.
			if recErr := p.scrapes.RecordScrapeFailure(context.WithoutCancel(ctx), sourceURL); recErr != nil {
				p.logger.Warn("failed to record scrape failure", "url", sourceURL, "error", recErr)
			}
		}
		return Result{State: StateFailed}, fmt.Errorf("ingest %q: %w", sourceURL, err)
	}

	// Past normalization the unit completes regardless of caller cancellation:
	// a half-finished unit would leave the tracker claiming an entry that was
	// never written.
	ctx = context.WithoutCancel(ctx)

	rec, err := p.scrapes.ClaimScrape(ctx, provenance.ClaimScrapeParams{
		URL:             sourceURL,
		Title:           norm.Title,
		MetaDescription: norm.MetaDescription,
		EntryID:         uuid.NewString(),
	})
	if err != nil {
		return Result{State: StateFailed}, fmt.Errorf("ingest %q: %w", sourceURL, err)
	}

	vector := p.embed(ctx, norm.Content)

	entryID, err := p.entries.Put(ctx, entry.Entry{
		ID:         rec.EntryID,
		SourceType: entry.SourceTypeURL,
		SourceURL:  sourceURL,
		Title:      norm.Title,
		Content:    norm.Content,
		Metadata:   norm.Metadata,
		Embedding:  vector,
	})
	if err != nil {
		if finErr := p.scrapes.FinishScrape(ctx, sourceURL, provenance.StatusFailed); finErr != nil {
			p.logger.Warn("failed to mark scrape failed", "url", sourceURL, "error", finErr)
		}
		return Result{State: StateFailed}, fmt.Errorf("ingest %q: %w", sourceURL, err)
	}

	if err := p.scrapes.FinishScrape(ctx, sourceURL, provenance.StatusSuccess); err != nil {
		return Result{EntryID: entryID, State: StateStored, Embedded: vector != nil},
			fmt.Errorf("ingest %q: entry stored but scrape record not finalized: %w", sourceURL, err)
	}

	p.logger.Info("ingested url",
		"url", sourceURL, "entry_id", entryID,
		"scrape_count", rec.ScrapeCount, "embedded", vector != nil)
	return Result{
		EntryID:  entryID,
		State:    StateStored,
		Embedded: vector != nil,
		Rescrape: rec.ScrapeCount > 1,
	}, nil
}

// IngestDocument ingests an uploaded file. The upload record is created
// first so a failed extraction still leaves an observable, unprocessed
// record; it is marked processed only after the entry is stored.
func (p *Pipeline) IngestDocument(ctx context.Context, upload provenance.CreateDocumentParams, raw []byte) (Result, error) {
	doc, err := p.documents.CreateDocument(ctx, upload)
	if err != nil {
		return Result{State: StateFailed}, fmt.Errorf("ingest document %q: %w", upload.Filename, err)
	}

	norm, err := NormalizeDocument(raw, upload.Filename)
	if err != nil {
		// The record stays processed=false; re-uploading retries.
		return Result{DocumentID: doc.ID, State: StateFailed},
			fmt.Errorf("ingest document %q: %w", upload.Filename, err)
	}

	ctx = context.WithoutCancel(ctx)

	vector := p.embed(ctx, norm.Content)

	entryID, err := p.entries.Put(ctx, entry.Entry{
		SourceType: entry.SourceTypeDocument,
		Title:      norm.Title,
		Content:    norm.Content,
		Metadata:   norm.Metadata,
		Embedding:  vector,
	})
	if err != nil {
		return Result{DocumentID: doc.ID, State: StateFailed},
			fmt.Errorf("ingest document %q: %w", upload.Filename, err)
	}

	if err := p.documents.MarkDocumentProcessed(ctx, doc.ID, entryID); err != nil {
		return Result{EntryID: entryID, DocumentID: doc.ID, State: StateStored, Embedded: vector != nil},
			fmt.Errorf("ingest document %q: entry stored but record not finalized: %w", upload.Filename, err)
	}

	p.logger.Info("ingested document",
		"filename", upload.Filename, "document_id", doc.ID,
		"entry_id", entryID, "embedded", vector != nil)
	return Result{
		EntryID:    entryID,
		DocumentID: doc.ID,
		State:      StateStored,
		Embedded:   vector != nil,
	}, nil
}

// IngestManual ingests manually entered text. No provenance record is kept.
func (p *Pipeline) IngestManual(ctx context.Context, title, content string) (Result, error) {
	norm, err := NormalizeManual(title, content)
	if err != nil {
		return Result{State: StateFailed}, fmt.Errorf("ingest manual entry: %w", err)
	}

	ctx = context.WithoutCancel(ctx)

	vector := p.embed(ctx, norm.Content)

	entryID, err := p.entries.Put(ctx, entry.Entry{
		SourceType: entry.SourceTypeManual,
		Title:      norm.Title,
		Content:    norm.Content,
		Metadata:   norm.Metadata,
		Embedding:  vector,
	})
	if err != nil {
		return Result{State: StateFailed}, fmt.Errorf("ingest manual entry: %w", err)
	}

	p.logger.Info("ingested manual entry", "entry_id", entryID, "embedded", vector != nil)
	return Result{EntryID: entryID, State: StateStored, Embedded: vector != nil}, nil
}

// embed generates an embedding for content, returning nil on failure.
// Embedding failure is deliberately non-fatal: the entry is stored without
// a vector and remains reachable through lexical search.
func (p *Pipeline) embed(ctx context.Context, content string) []float32 {
	vector, err := p.generator.Embed(ctx, content)
	if err != nil {
		p.logger.Warn("embedding unavailable, storing entry without vector", "error", err)
		return nil
	}
	return vector
}

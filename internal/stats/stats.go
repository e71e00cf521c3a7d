// Package stats reports point-in-time summaries of the knowledge base.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/staffv/kbstore/internal/database"
)

// Snapshot is a consistent point-in-time summary. All counts come from a
// single statement so they agree with each other even under concurrent
// ingestion.
type Snapshot struct {
	TotalEntries     int64
	URLEntries       int64
	DocumentEntries  int64
	ManualEntries    int64
	EmbeddedEntries  int64 // entries with a stored vector
	PendingEmbedding int64 // lexical-only entries awaiting re-ingestion

	TrackedURLs        int64
	UploadedDocuments  int64
	ProcessedDocuments int64

	// LastUpdatedAt is the most recent entry write; zero when the store
	// is empty.
	LastUpdatedAt time.Time
}

// Aggregator computes snapshots.
type Aggregator struct {
	db     database.DBTX
	logger *slog.Logger
}

// NewAggregator creates an Aggregator.
func NewAggregator(db database.DBTX, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{db: db, logger: logger}
}

// Scalar subqueries keep every count inside one statement, so the whole
// snapshot reflects one point in time.
const snapshotSQL = `
SELECT
    count(*),
    count(*) FILTER (WHERE source_type = 'url'),
    count(*) FILTER (WHERE source_type = 'document'),
    count(*) FILTER (WHERE source_type = 'manual'),
    count(*) FILTER (WHERE embedding IS NOT NULL),
    count(*) FILTER (WHERE embedding IS NULL),
    (SELECT count(*) FROM scraped_urls),
    (SELECT count(*) FROM uploaded_documents),
    (SELECT count(*) FROM uploaded_documents WHERE processed),
    max(updated_at)
FROM knowledge_entries
`

// Snapshot computes the current summary.
func (a *Aggregator) Snapshot(ctx context.Context) (Snapshot, error) {
	var (
		snap          Snapshot
		lastUpdatedAt pgtype.Timestamptz
	)
	err := a.db.QueryRow(ctx, snapshotSQL).Scan(
		&snap.TotalEntries,
		&snap.URLEntries,
		&snap.DocumentEntries,
		&snap.ManualEntries,
		&snap.EmbeddedEntries,
		&snap.PendingEmbedding,
		&snap.TrackedURLs,
		&snap.UploadedDocuments,
		&snap.ProcessedDocuments,
		&lastUpdatedAt,
	)
	if err != nil {
		return Snapshot{}, fmt.Errorf("failed to compute stats snapshot: %w", err)
	}

	if lastUpdatedAt.Valid {
		snap.LastUpdatedAt = lastUpdatedAt.Time
	}

	a.logger.Debug("computed stats snapshot",
		"entries", snap.TotalEntries, "embedded", snap.EmbeddedEntries)
	return snap, nil
}

// Package service assembles the knowledge base components into one facade.
//
// Service is the composition root: it owns the connection pool and wires
// the entry store, provenance trackers, ingestion pipeline, search engine,
// interaction logger and stats aggregator. Callers (CLI commands, an API
// layer) talk to Service instead of the individual packages.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/staffv/kbstore/internal/config"
	"github.com/staffv/kbstore/internal/database"
	"github.com/staffv/kbstore/internal/embedding"
	"github.com/staffv/kbstore/internal/entry"
	"github.com/staffv/kbstore/internal/ingest"
	"github.com/staffv/kbstore/internal/interaction"
	"github.com/staffv/kbstore/internal/provenance"
	"github.com/staffv/kbstore/internal/search"
	"github.com/staffv/kbstore/internal/stats"
)

// Service is the application container.
type Service struct {
	Entries      *entry.Store
	Provenance   *provenance.Store
	Pipeline     *ingest.Pipeline
	Engine       *search.Engine
	Interactions *interaction.Logger
	Stats        *stats.Aggregator

	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New connects to the database and wires all components from cfg.
// Close must be called when done.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}

	pool, err := database.NewPool(ctx, cfg.PostgresURL())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	generator, err := embedding.NewOpenAI(cfg.EmbedderModel, cfg.EmbedderDimension, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create embedding generator: %w", err)
	}

	return newService(pool, generator, cfg, logger), nil
}

// newService wires components over an established pool and generator.
// Split out so tests can inject a container database and a deterministic
// generator.
func newService(pool *pgxpool.Pool, generator embedding.Generator, cfg *config.Config, logger *slog.Logger) *Service {
	entries := entry.NewStore(entry.NewQueries(pool), generator.Dimension(), logger)
	prov := provenance.NewStore(pool, logger)

	return &Service{
		Entries:      entries,
		Provenance:   prov,
		Pipeline:     ingest.NewPipeline(entries, prov, prov, generator, logger),
		Engine: search.NewEngine(entries, generator, logger,
			search.WithThreshold(cfg.SearchThreshold),
			search.WithLimit(cfg.SearchLimit)),
		Interactions: interaction.NewLogger(pool, logger),
		Stats:        stats.NewAggregator(pool, logger),
		pool:         pool,
		logger:       logger,
	}
}

// Close releases the connection pool.
func (s *Service) Close() {
	s.logger.Info("shutting down")
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping verifies database connectivity.
func (s *Service) Ping(ctx context.Context) error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Ping(ctx)
}

// Search runs a hybrid search and records the interaction. opts override
// the configured threshold and limit for this call only.
func (s *Service) Search(ctx context.Context, caller, query string, opts ...search.Option) ([]search.Result, error) {
	results, err := s.Engine.SearchWithOptions(ctx, query, opts...)
	if err != nil {
		return nil, err
	}

	entryIDs := make([]string, 0, len(results))
	responseLength := 0
	for _, r := range results {
		entryIDs = append(entryIDs, r.Entry.ID)
		responseLength += len(r.Entry.Content)
	}
	s.Interactions.Log(ctx, interaction.Record{
		Caller:         caller,
		Command:        "search",
		Parameters:     map[string]any{"query": query},
		ResponseLength: responseLength,
		SourceEntryIDs: entryIDs,
	})

	return results, nil
}

// IngestURL ingests scraped page content.
func (s *Service) IngestURL(ctx context.Context, rawHTML []byte, sourceURL string) (ingest.Result, error) {
	return s.Pipeline.IngestURL(ctx, rawHTML, sourceURL)
}

// IngestDocument ingests an uploaded file.
func (s *Service) IngestDocument(ctx context.Context, upload provenance.CreateDocumentParams, raw []byte) (ingest.Result, error) {
	return s.Pipeline.IngestDocument(ctx, upload, raw)
}

// IngestManual ingests manually entered text.
func (s *Service) IngestManual(ctx context.Context, title, content string) (ingest.Result, error) {
	return s.Pipeline.IngestManual(ctx, title, content)
}

// Snapshot returns the current knowledge base summary.
func (s *Service) Snapshot(ctx context.Context) (stats.Snapshot, error) {
	return s.Stats.Snapshot(ctx)
}

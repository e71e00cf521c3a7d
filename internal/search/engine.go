// Package search implements hybrid retrieval over the entry store.
//
// A query runs both search paths: vector similarity over the query's
// embedding and weighted lexical relevance over the text index. The merged
// ranking is deterministic: vector matches first in descending similarity,
// then lexical-only matches in lexical rank order, deduplicated by entry id.
// When the embedding generator is unavailable the engine degrades to
// lexical-only results instead of failing the query.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/staffv/kbstore/internal/embedding"
	"github.com/staffv/kbstore/internal/entry"
)

const (
	// DefaultThreshold is the minimum cosine similarity for vector matches.
	DefaultThreshold = 0.5

	// DefaultLimit caps the merged result count.
	DefaultLimit = 10
)

// Signal records which search path produced a result.
type Signal string

const (
	SignalVector  Signal = "vector"
	SignalLexical Signal = "lexical"
	SignalBoth    Signal = "both"
)

// Result is one hit in the merged ranking. Similarity is zero for
// lexical-only hits.
type Result struct {
	Entry      entry.Entry
	Similarity float64
	Signal     Signal
}

// EntrySearcher is the slice of the entry store the engine reads through.
type EntrySearcher interface {
	LexicalSearch(ctx context.Context, query string, limit int) ([]entry.Entry, error)
	VectorSearch(ctx context.Context, queryEmbedding []float32, threshold float64, limit int) ([]entry.Match, error)
}

// Engine runs hybrid searches. Safe for concurrent use.
type Engine struct {
	store     EntrySearcher
	generator embedding.Generator
	threshold float64
	limit     int
	logger    *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithThreshold sets the minimum cosine similarity for vector matches.
// Matches at exactly the threshold are excluded.
func WithThreshold(threshold float64) Option {
	return func(e *Engine) { e.threshold = threshold }
}

// WithLimit caps the merged result count.
func WithLimit(limit int) Option {
	return func(e *Engine) {
		if limit > 0 {
			e.limit = limit
		}
	}
}

// NewEngine creates a search Engine over store and generator.
func NewEngine(store EntrySearcher, generator embedding.Generator, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		store:     store,
		generator: generator,
		threshold: DefaultThreshold,
		limit:     DefaultLimit,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Search returns the merged hybrid ranking for query. A blank query returns
// no results. Storage failures on either path fail the whole query;
// embedding unavailability does not.
func (e *Engine) Search(ctx context.Context, query string) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	matches, err := e.vectorMatches(ctx, query)
	if err != nil {
		return nil, err
	}

	lexical, err := e.store.LexicalSearch(ctx, query, e.limit)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}

	return e.merge(matches, lexical), nil
}

// SearchWithOptions runs Search with per-call overrides of the engine
// defaults, leaving the engine itself untouched.
func (e *Engine) SearchWithOptions(ctx context.Context, query string, opts ...Option) ([]Result, error) {
	if len(opts) == 0 {
		return e.Search(ctx, query)
	}
	scoped := *e
	for _, opt := range opts {
		opt(&scoped)
	}
	return scoped.Search(ctx, query)
}

// vectorMatches embeds the query and runs the vector path. An unavailable
// generator degrades to no vector matches; any storage failure propagates.
func (e *Engine) vectorMatches(ctx context.Context, query string) ([]entry.Match, error) {
	queryEmbedding, err := e.generator.Embed(ctx, query)
	if err != nil {
		if errors.Is(err, embedding.ErrUnavailable) {
			e.logger.Warn("embedding unavailable, serving lexical-only results", "error", err)
			return nil, nil
		}
		return nil, fmt.Errorf("hybrid search: %w", err)
	}

	matches, err := e.store.VectorSearch(ctx, queryEmbedding, e.threshold, e.limit)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}
	return matches, nil
}

// merge combines the two rankings: vector matches keep their order and
// similarity; lexical hits either upgrade a vector match to SignalBoth or
// append after all vector matches. The output never exceeds the limit.
func (e *Engine) merge(matches []entry.Match, lexical []entry.Entry) []Result {
	results := make([]Result, 0, len(matches)+len(lexical))
	byID := make(map[string]int, len(matches))

	for _, m := range matches {
		byID[m.Entry.ID] = len(results)
		results = append(results, Result{
			Entry:      m.Entry,
			Similarity: m.Similarity,
			Signal:     SignalVector,
		})
	}

	for _, le := range lexical {
		if i, ok := byID[le.ID]; ok {
			results[i].Signal = SignalBoth
			continue
		}
		results = append(results, Result{Entry: le, Signal: SignalLexical})
	}

	if len(results) > e.limit {
		results = results[:e.limit]
	}
	return results
}

// Package embedding provides the embedding generator the ingestion pipeline
// and hybrid search depend on.
//
// Generator is a one-method collaborator: text in, fixed-length vector out.
// The production implementation calls the OpenAI embeddings API; tests use
// a deterministic in-process generator (internal/testutil).
package embedding

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the embedding generator could not produce a
// vector (service down, rate limit budget exhausted, empty response).
// Callers degrade to lexical-only behavior; ingestion treats this as
// non-fatal and stores the entry without an embedding.
var ErrUnavailable = errors.New("embedding generator unavailable")

// Generator produces fixed-length embedding vectors for text.
// Implementations must be safe for concurrent use.
type Generator interface {
	// Embed returns the embedding vector for text, of exactly Dimension()
	// length. Failures wrap ErrUnavailable.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension is the fixed vector length this generator produces.
	// The entry store schema must agree on it.
	Dimension() int
}

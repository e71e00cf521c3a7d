package testutil

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// Generator is a deterministic in-process embedding generator for tests.
//
// Each word is hashed onto one component of the vector, then the vector is
// normalized to unit length. Identical texts always embed identically
// (cosine similarity 1.0), texts sharing words score higher than unrelated
// texts, and no network is involved.
type Generator struct {
	dimension int

	// Err, when set, is returned from every Embed call. Used to simulate
	// an unavailable embedding service.
	Err error
}

// NewGenerator creates a deterministic Generator of the given dimension.
func NewGenerator(dimension int) *Generator {
	return &Generator{dimension: dimension}
}

// Embed returns the deterministic vector for text.
func (g *Generator) Embed(_ context.Context, text string) ([]float32, error) {
	if g.Err != nil {
		return nil, g.Err
	}

	vec := make([]float32, g.dimension)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New64a()
		h.Write([]byte(word))
		vec[h.Sum64()%uint64(g.dimension)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

// Dimension returns the configured vector dimension.
func (g *Generator) Dimension() int {
	return g.dimension
}

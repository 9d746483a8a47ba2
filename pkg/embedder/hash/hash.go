// Package hash provides a deterministic, dependency-free embedder for
// offline development and tests.
//
// Vectors are derived from an FNV hash of the input text, so identical texts
// always map to identical unit vectors. The vectors carry no real semantics;
// use a hosted embedder in production.
package hash

import (
	"context"
	"hash/fnv"
	"math"
)

// Embedder is a deterministic hash-based embedder.Provider.
type Embedder struct {
	dimensions int
}

// New creates a hash embedder with 384 dimensions (the footprint of the
// common all-MiniLM-L6-v2 model, so it can stand in for one).
func New() *Embedder {
	return NewWithDimensions(384)
}

// NewWithDimensions creates a hash embedder with an explicit dimension.
func NewWithDimensions(dims int) *Embedder {
	return &Embedder{dimensions: dims}
}

// Embed derives a deterministic unit vector from the text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	// LCG seeded by the hash gives stable pseudo-random components.
	embedding := make([]float32, e.dimensions)
	for i := 0; i < e.dimensions; i++ {
		seed = seed*6364136223846793005 + 1442695040888963407
		embedding[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}

	return normalize(embedding), nil
}

// EmbedBatch embeds each text independently.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

// Dimensions returns the vector dimension.
func (e *Embedder) Dimensions() int {
	return e.dimensions
}

// Close releases resources. Nothing to release for the hash embedder.
func (e *Embedder) Close() error {
	return nil
}

func normalize(vec []float32) []float32 {
	var norm float32
	for _, v := range vec {
		norm += v * v
	}
	if norm == 0 {
		return vec
	}

	norm = float32(math.Sqrt(float64(norm)))
	for i, v := range vec {
		vec[i] = v / norm
	}
	return vec
}

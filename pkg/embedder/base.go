// Package embedder defines the text-embedding capability used by the
// semantic-search index.
//
// Implementations live in subpackages: openai talks to an embeddings API,
// hash produces deterministic local vectors for offline development and
// tests.
package embedder

import "context"

// Provider converts text into embedding vectors.
type Provider interface {
	// Embed converts a single text into an embedding vector.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch converts multiple texts in one round trip where the backend
	// supports it.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector dimension this provider produces.
	Dimensions() int

	// Close releases provider resources.
	Close() error
}

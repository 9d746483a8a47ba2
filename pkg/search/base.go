// Package search defines the semantic-search capability consumed by the
// memory store.
//
// The store forwards every record's text here for indexing and asks for
// ranked nearest neighbours at retrieval time. The index is a ranking aid,
// not a source of truth: if it is unavailable the store degrades to
// recency+importance ranking over its journal.
package search

import "context"

// Document is one indexed unit of text.
type Document struct {
	// ID is the record identifier, formatted by the caller.
	ID string

	// Owner is the agent that owns the underlying record.
	Owner string

	// Text is the content that gets embedded.
	Text string

	// Tags carries the record's tags, used for cross-cutting owner
	// filtering at retrieval time.
	Tags []string
}

// Hit is one ranked search result.
type Hit struct {
	// Document is the matched document.
	Document Document

	// Similarity is the semantic similarity in [0, 1], highest first.
	Similarity float64
}

// Index is the semantic-search capability.
type Index interface {
	// Upsert adds or replaces a document in the index.
	Upsert(ctx context.Context, doc Document) error

	// Query returns up to limit documents nearest to the query text, best
	// first, dropping hits below minSimilarity. An empty index yields an
	// empty slice, not an error.
	Query(ctx context.Context, query string, limit int, minSimilarity float64) ([]Hit, error)

	// Close releases index resources.
	Close() error
}

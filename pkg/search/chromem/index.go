// Package chromem implements search.Index on chromem-go, a pure-Go embedded
// vector database. Embeddings are produced by an injected embedder.Provider,
// so the index itself never talks to the network.
package chromem

import (
	"context"
	"fmt"
	"strings"
	"sync"

	chromem "github.com/philippgille/chromem-go"

	"github.com/guardianlabs/mindcore-go/pkg/embedder"
	"github.com/guardianlabs/mindcore-go/pkg/search"
)

// Index is a chromem-backed search.Index.
type Index struct {
	db       *chromem.DB
	col      *chromem.Collection
	embedder embedder.Provider
	mu       sync.RWMutex
}

// New creates an index over a single chromem collection.
func New(emb embedder.Provider) (*Index, error) {
	db := chromem.NewDB()

	col, err := db.CreateCollection("memories", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem index: create collection: %w", err)
	}

	return &Index{
		db:       db,
		col:      col,
		embedder: emb,
	}, nil
}

// Upsert embeds the document text and adds it to the collection.
func (i *Index) Upsert(ctx context.Context, doc search.Document) error {
	vec, err := i.embedder.Embed(ctx, doc.Text)
	if err != nil {
		return fmt.Errorf("chromem index: embed: %w", err)
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	err = i.col.AddDocument(ctx, chromem.Document{
		ID:        doc.ID,
		Content:   doc.Text,
		Embedding: vec,
		Metadata: map[string]string{
			"owner": doc.Owner,
			"tags":  strings.Join(doc.Tags, ","),
		},
	})
	if err != nil {
		return fmt.Errorf("chromem index: add document: %w", err)
	}

	return nil
}

// Query embeds the query text and returns the nearest documents.
func (i *Index) Query(ctx context.Context, query string, limit int, minSimilarity float64) ([]search.Hit, error) {
	vec, err := i.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("chromem index: embed query: %w", err)
	}

	i.mu.RLock()
	defer i.mu.RUnlock()

	// chromem rejects nResults larger than the collection.
	count := i.col.Count()
	if count == 0 {
		return nil, nil
	}
	if limit > count {
		limit = count
	}

	results, err := i.col.QueryEmbedding(ctx, vec, limit, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("chromem index: query: %w", err)
	}

	hits := make([]search.Hit, 0, len(results))
	for _, result := range results {
		similarity := float64(result.Similarity)
		if similarity < minSimilarity {
			continue
		}

		var tags []string
		if raw := result.Metadata["tags"]; raw != "" {
			tags = strings.Split(raw, ",")
		}

		hits = append(hits, search.Hit{
			Document: search.Document{
				ID:    result.ID,
				Owner: result.Metadata["owner"],
				Text:  result.Content,
				Tags:  tags,
			},
			Similarity: similarity,
		})
	}

	return hits, nil
}

// Close releases index resources. chromem keeps everything in memory.
func (i *Index) Close() error {
	return nil
}

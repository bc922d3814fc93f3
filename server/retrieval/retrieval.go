// Package retrieval provides the best-effort health document index.
//
// The index is an independent capability from web-search grounding: it is
// exposed to callers as a query tool but is not injected into the
// generation call path. Failures are never surfaced - a broken index
// degrades to an empty result list.
package retrieval

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/semaphore"

	"github.com/askdokita/askdokita/server/ai"
)

const (
	// DefaultTopK is the default number of snippets returned per query.
	DefaultTopK = 3

	// maxConcurrentQueries bounds in-flight index work so a slow driver
	// cannot pile up goroutines under load.
	maxConcurrentQueries = 4
)

// Driver is the storage backend for the document index.
type Driver interface {
	// Insert stores a document snippet with its embedding.
	Insert(ctx context.Context, collection, content string, embedding []float32) error

	// Search returns the contents of the most similar snippets, best first.
	Search(ctx context.Context, collection string, embedding []float32, limit int) ([]string, error)

	Close() error
}

// Index queries a persistent vector index of health documents.
type Index struct {
	driver     Driver
	embedder   ai.Embedder
	collection string
	sem        *semaphore.Weighted
}

// NewIndex creates a document index over the given driver and embedder.
func NewIndex(driver Driver, embedder ai.Embedder, collection string) *Index {
	return &Index{
		driver:     driver,
		embedder:   embedder,
		collection: collection,
		sem:        semaphore.NewWeighted(maxConcurrentQueries),
	}
}

// Query returns up to topK relevant snippets for the text. Retrieval is
// best-effort: on any internal error it logs and returns an empty list
// rather than failing the caller.
func (i *Index) Query(ctx context.Context, text string, topK int) []string {
	if topK <= 0 {
		topK = DefaultTopK
	}

	docs, err := i.query(ctx, text, topK)
	if err != nil {
		slog.Warn("document retrieval failed, returning empty result",
			"collection", i.collection, "error", err)
		return []string{}
	}
	return docs
}

func (i *Index) query(ctx context.Context, text string, topK int) ([]string, error) {
	if err := i.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("failed to acquire query slot: %w", err)
	}
	defer i.sem.Release(1)

	embedding, err := i.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	docs, err := i.driver.Search(ctx, i.collection, embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("index search failed: %w", err)
	}
	return docs, nil
}

// Add chunks a document and stores each chunk with its embedding. Unlike
// Query, ingestion errors are returned to the caller.
func (i *Index) Add(ctx context.Context, content string) (int, error) {
	if err := i.sem.Acquire(ctx, 1); err != nil {
		return 0, fmt.Errorf("failed to acquire ingest slot: %w", err)
	}
	defer i.sem.Release(1)

	chunks := ChunkDocument(content)
	for n, chunk := range chunks {
		embedding, err := i.embedder.Embed(ctx, chunk)
		if err != nil {
			return n, fmt.Errorf("failed to embed chunk %d: %w", n, err)
		}
		if err := i.driver.Insert(ctx, i.collection, chunk, embedding); err != nil {
			return n, fmt.Errorf("failed to store chunk %d: %w", n, err)
		}
	}
	return len(chunks), nil
}

// Close releases the underlying driver.
func (i *Index) Close() error {
	return i.driver.Close()
}

// Package embedding provides text embedding, caching, and the embedding service.
package embedding

import "context"

// Embedder is the model backend that turns text into vectors.
// Implementations are not assumed safe for concurrent mutation; the Service
// serializes calls to them.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

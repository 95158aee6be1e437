// Package keyword provides the exact-term search index that complements
// semantic retrieval. Chunks are indexed by content and source so queries can
// hit literal terms the embedding model would blur.
package keyword

import "context"

// Result is a single keyword search hit.
type Result struct {
	ID      string  `json:"id"`
	Score   float64 `json:"score"`
	Content string  `json:"content,omitempty"`
	Source  string  `json:"source,omitempty"`
}

// Index defines keyword search operations over stored chunks.
type Index interface {
	Index(ctx context.Context, id, content, source string) error
	Search(ctx context.Context, query string, limit int) ([]*Result, error)
	Delete(ctx context.Context, id string) error
	Count() (uint64, error)
	Close() error
}

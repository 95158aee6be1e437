// Package vector provides document vector stores: a FAISS-backed primary
// store and a self-managed flat fallback index, selected once at construction.
package vector

import (
	"context"

	"github.com/kensaku-ai/kensaku/internal/models"
)

// SearchResult is a single similarity-search hit.
//
// Similarity values are comparable across calls only within one store
// implementation and configuration; the primary and fallback stores score on
// different scales and must not be compared numerically.
type SearchResult struct {
	ID         string                 `json:"id"`
	Content    string                 `json:"content"`
	Metadata   map[string]interface{} `json:"metadata"`
	Similarity float64                `json:"similarity"`
	Distance   float64                `json:"distance"`
}

// Info describes a store's current state.
type Info struct {
	Backend       string `json:"backend"`
	DocumentCount int    `json:"document_count"`
	IndexSize     int    `json:"index_size"`
	Dimensions    int    `json:"dimensions"`
	PersistDir    string `json:"persist_dir"`
}

// Store is the vector index contract shared by both implementations.
//
// Per-call failures follow the availability-first policy: Get returns nil for
// a missing id, Delete returns false, List and Count degrade to empty/zero.
// Only Add and Search return errors, and those are absorbed by the retriever.
type Store interface {
	// Add embeds and stores the documents, returning their ids in input order.
	Add(ctx context.Context, docs []*models.Document) ([]string, error)
	// Search returns up to n documents similar to the query text, subject to
	// the metadata filter (equality conjunction) and the store's similarity
	// threshold.
	Search(ctx context.Context, query string, n int, filter map[string]interface{}) ([]*SearchResult, error)
	// Get returns the document with the given id, or nil when absent.
	Get(ctx context.Context, id string) *models.Document
	// Update re-embeds and replaces an existing document.
	Update(ctx context.Context, doc *models.Document) error
	// Delete removes the document; false when the id does not exist.
	Delete(ctx context.Context, id string) bool
	// DeleteMany removes the given ids and returns how many existed.
	DeleteMany(ctx context.Context, ids []string) int
	// List returns documents matching the filter, up to limit (0 = no limit).
	List(ctx context.Context, filter map[string]interface{}, limit int) []*models.Document
	// Count returns the number of documents matching the filter.
	Count(ctx context.Context, filter map[string]interface{}) int
	// Clear removes every document.
	Clear(ctx context.Context) bool
	// Info returns store statistics.
	Info(ctx context.Context) *Info
	Close() error
}

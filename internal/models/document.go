// Package models defines core data structures for documents and retrieval results.
package models

import (
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Document represents a stored text chunk with metadata.
type Document struct {
	ID        string                 `json:"id"`
	Content   string                 `json:"content"`
	Metadata  map[string]interface{} `json:"metadata"`
	CreatedAt time.Time              `json:"created_at"`
}

// NewDocument creates a document with system metadata populated.
// When id is empty a UUID is generated. System keys ("created_at",
// "content_length") are written before the caller's metadata is merged in,
// so caller keys with the same names override them. Callers depend on this
// precedence; do not reorder.
func NewDocument(content string, metadata map[string]interface{}, id string) *Document {
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now()
	md := map[string]interface{}{
		"created_at":     now.Format(time.RFC3339),
		"content_length": len(content),
	}
	for k, v := range metadata {
		md[k] = v
	}
	return &Document{
		ID:        id,
		Content:   content,
		Metadata:  md,
		CreatedAt: now,
	}
}

// MatchesFilter reports whether the document's metadata satisfies every
// key/value pair in filter (equality conjunction). A nil or empty filter
// matches everything. DeepEqual because metadata values may be uncomparable
// (nested maps and slices survive a JSON round trip).
func (d *Document) MatchesFilter(filter map[string]interface{}) bool {
	for k, want := range filter {
		got, ok := d.Metadata[k]
		if !ok || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

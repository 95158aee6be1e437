package models

// RetrievalResult is a read-only projection of a document produced per query.
// It is never persisted.
type RetrievalResult struct {
	Content    string                 `json:"content"`
	Metadata   map[string]interface{} `json:"metadata"`
	Similarity float64                `json:"similarity"`
	DocID      string                 `json:"doc_id"`
}

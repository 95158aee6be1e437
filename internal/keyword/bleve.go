package keyword

import (
	"context"
	"fmt"
	"os"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
)

// chunkEntry is the shape Bleve indexes for each stored chunk.
type chunkEntry struct {
	Content string `json:"content"`
	Source  string `json:"source"`
}

// BleveIndex implements Index using Bleve.
type BleveIndex struct {
	index bleve.Index
}

// NewBleveIndex creates or opens a Bleve index at path. An existing index at
// the path is reopened as-is; remove the directory to force a mapping change
// to take effect.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming) so literal terms
	// match exactly.
	textFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("content", textFieldMapping)
	docMapping.AddFieldMappingsAt("source", textFieldMapping)
	im.AddDocumentMapping("chunk", docMapping)
	im.DefaultType = "chunk"
	im.DefaultMapping = docMapping

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("open keyword index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("create keyword index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index adds or replaces a chunk in the index.
func (b *BleveIndex) Index(ctx context.Context, id, content, source string) error {
	return b.index.Index(id, chunkEntry{Content: content, Source: source})
}

// Search runs a match query over content and source and returns up to limit
// hits with their stored fields.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int) ([]*Result, error) {
	if limit <= 0 {
		return nil, nil
	}
	req := bleve.NewSearchRequest(bleve.NewMatchQuery(query))
	req.Size = limit
	req.Fields = []string{"content", "source"}
	results, err := b.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("keyword search failed: %w", err)
	}
	out := make([]*Result, len(results.Hits))
	for i, hit := range results.Hits {
		res := &Result{ID: hit.ID, Score: hit.Score}
		if content, ok := hit.Fields["content"].(string); ok {
			res.Content = content
		}
		if source, ok := hit.Fields["source"].(string); ok {
			res.Source = source
		}
		out[i] = res
	}
	return out, nil
}

// Delete removes a chunk from the index.
func (b *BleveIndex) Delete(ctx context.Context, id string) error {
	return b.index.Delete(id)
}

// Count returns the number of indexed chunks.
func (b *BleveIndex) Count() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the underlying index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

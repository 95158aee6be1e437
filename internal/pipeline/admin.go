package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/kensaku-ai/kensaku/internal/models"
	"github.com/kensaku-ai/kensaku/internal/storage"
)

// ListResult is a page of stored documents.
type ListResult struct {
	Success    bool               `json:"success"`
	Error      string             `json:"error,omitempty"`
	Documents  []*models.Document `json:"documents"`
	Count      int                `json:"count"`
	TotalCount int                `json:"total_count"`
}

// ListDocuments returns stored documents matching the filter.
func (p *Pipeline) ListDocuments(ctx context.Context, filter map[string]interface{}, limit int) *ListResult {
	docs := p.store.List(ctx, filter, limit)
	return &ListResult{
		Success:    true,
		Documents:  docs,
		Count:      len(docs),
		TotalCount: p.store.Count(ctx, nil),
	}
}

// GetDocument returns a stored chunk, or nil when the id is unknown.
func (p *Pipeline) GetDocument(ctx context.Context, docID string) *models.Document {
	return p.store.Get(ctx, docID)
}

// DeleteResult reports a deletion outcome.
type DeleteResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	DocID   string `json:"doc_id,omitempty"`
	Deleted int    `json:"deleted,omitempty"`
	Message string `json:"message,omitempty"`
}

// DeleteDocument removes a single chunk from the vector store and keyword
// index. Deleting an unknown id reports success=false, not an error.
func (p *Pipeline) DeleteDocument(ctx context.Context, docID string) *DeleteResult {
	deleted := p.store.Delete(ctx, docID)
	if deleted && p.keyword != nil {
		if err := p.keyword.Delete(ctx, docID); err != nil {
			p.logger.Warn("keyword delete failed", zap.String("doc_id", docID), zap.Error(err))
		}
	}
	message := "document deleted successfully"
	if !deleted {
		message = "document not found"
	}
	return &DeleteResult{Success: deleted, DocID: docID, Message: message}
}

// DeleteSource removes every chunk of a source from all indexes and drops its
// registry record.
func (p *Pipeline) DeleteSource(ctx context.Context, sourceID string) *DeleteResult {
	if p.registry == nil {
		return &DeleteResult{Success: false, Error: "source tracking is not enabled"}
	}
	chunkIDs, err := p.registry.DeleteSource(ctx, sourceID)
	if err != nil {
		p.logger.Error("source delete failed", zap.String("source_id", sourceID), zap.Error(err))
		return &DeleteResult{Success: false, Error: err.Error()}
	}
	deleted := p.store.DeleteMany(ctx, chunkIDs)
	if p.keyword != nil {
		for _, id := range chunkIDs {
			if err := p.keyword.Delete(ctx, id); err != nil {
				p.logger.Warn("keyword delete failed", zap.String("doc_id", id), zap.Error(err))
			}
		}
	}
	return &DeleteResult{
		Success: true,
		Deleted: deleted,
		Message: fmt.Sprintf("source removed with %d chunks", deleted),
	}
}

// ListSources returns the registered sources, newest first.
func (p *Pipeline) ListSources(ctx context.Context, offset, limit int) ([]*storage.Source, error) {
	if p.registry == nil {
		return nil, nil
	}
	return p.registry.ListSources(ctx, offset, limit)
}

// ClearAll removes every document from all indexes and the registry.
func (p *Pipeline) ClearAll(ctx context.Context) *DeleteResult {
	// Evict keyword entries before the store forgets the ids.
	if p.keyword != nil {
		for _, doc := range p.store.List(ctx, nil, 0) {
			if err := p.keyword.Delete(ctx, doc.ID); err != nil {
				p.logger.Warn("keyword delete failed", zap.String("doc_id", doc.ID), zap.Error(err))
			}
		}
	}
	if !p.store.Clear(ctx) {
		return &DeleteResult{Success: false, Error: "failed to clear vector store"}
	}
	if p.registry != nil {
		if err := p.registry.Clear(ctx); err != nil {
			p.logger.Warn("registry clear failed", zap.Error(err))
		}
	}
	return &DeleteResult{Success: true, Message: "all documents cleared successfully"}
}

// SystemInfo describes the running engine.
type SystemInfo struct {
	SystemStatus   string                 `json:"system_status"`
	VectorStore    map[string]interface{} `json:"vector_store"`
	EmbeddingModel map[string]interface{} `json:"embedding_model"`
	Sources        map[string]interface{} `json:"sources,omitempty"`
	KeywordIndex   map[string]interface{} `json:"keyword_index,omitempty"`
	SupportedTypes []string               `json:"supported_file_types"`
	DiskUsageBytes int64                  `json:"disk_usage_bytes"`
}

// GetSystemInfo reports the state of every component.
func (p *Pipeline) GetSystemInfo(ctx context.Context, diskPaths ...string) *SystemInfo {
	storeInfo := p.store.Info(ctx)
	info := &SystemInfo{
		SystemStatus: "healthy",
		VectorStore: map[string]interface{}{
			"backend":        storeInfo.Backend,
			"document_count": storeInfo.DocumentCount,
			"index_size":     storeInfo.IndexSize,
			"dimensions":     storeInfo.Dimensions,
			"persist_dir":    storeInfo.PersistDir,
		},
		EmbeddingModel: map[string]interface{}{
			"model_name": p.embedder.ModelName(),
			"dimensions": p.embedder.Dimensions(),
		},
		SupportedTypes: p.extractor.SupportedTypes(),
	}
	if p.registry != nil {
		sourceCount, err := p.registry.CountSources(ctx)
		if err != nil {
			p.logger.Warn("source count failed", zap.Error(err))
		}
		chunkCount, err := p.registry.CountChunks(ctx)
		if err != nil {
			p.logger.Warn("chunk count failed", zap.Error(err))
		}
		info.Sources = map[string]interface{}{
			"source_count": sourceCount,
			"chunk_count":  chunkCount,
		}
	}
	if p.keyword != nil {
		count, err := p.keyword.Count()
		if err != nil {
			p.logger.Warn("keyword count failed", zap.Error(err))
		}
		info.KeywordIndex = map[string]interface{}{"document_count": count}
	}
	if usage, err := storage.DiskUsageBytes(diskPaths...); err == nil {
		info.DiskUsageBytes = usage
	}
	return info
}

// exportedDocument is the knowledge base export record for one chunk.
type exportedDocument struct {
	ID       string                 `json:"id"`
	Content  string                 `json:"content"`
	Metadata map[string]interface{} `json:"metadata"`
}

// TransferResult reports an export or import outcome.
type TransferResult struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	Path      string `json:"path"`
	Documents int    `json:"documents"`
}

// ExportKnowledgeBase writes every stored document to a JSON file.
func (p *Pipeline) ExportKnowledgeBase(ctx context.Context, path string) *TransferResult {
	docs := p.store.List(ctx, nil, 0)
	exported := make([]exportedDocument, len(docs))
	for i, doc := range docs {
		exported[i] = exportedDocument{ID: doc.ID, Content: doc.Content, Metadata: doc.Metadata}
	}
	data, err := json.MarshalIndent(exported, "", "  ")
	if err != nil {
		return &TransferResult{Success: false, Error: err.Error(), Path: path}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return &TransferResult{Success: false, Error: err.Error(), Path: path}
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		p.logger.Error("knowledge base export failed", zap.String("path", path), zap.Error(err))
		return &TransferResult{Success: false, Error: err.Error(), Path: path}
	}
	p.logger.Info("exported knowledge base", zap.String("path", path), zap.Int("documents", len(exported)))
	return &TransferResult{Success: true, Path: path, Documents: len(exported)}
}

// ImportKnowledgeBase loads documents from a JSON export, re-embedding each
// one. Existing ids are overwritten by the imported content.
func (p *Pipeline) ImportKnowledgeBase(ctx context.Context, path string) *TransferResult {
	data, err := os.ReadFile(path)
	if err != nil {
		return &TransferResult{Success: false, Error: err.Error(), Path: path}
	}
	var imported []exportedDocument
	if err := json.Unmarshal(data, &imported); err != nil {
		return &TransferResult{Success: false, Error: err.Error(), Path: path}
	}

	docs := make([]*models.Document, len(imported))
	for i, rec := range imported {
		docs[i] = models.NewDocument(rec.Content, rec.Metadata, rec.ID)
	}
	ids, err := p.store.Add(ctx, docs)
	if err != nil {
		p.logger.Error("knowledge base import failed", zap.String("path", path), zap.Error(err))
		return &TransferResult{Success: false, Error: err.Error(), Path: path}
	}
	p.indexKeyword(ctx, docs, "import:"+filepath.Base(path))
	p.logger.Info("imported knowledge base", zap.String("path", path), zap.Int("documents", len(ids)))
	return &TransferResult{Success: true, Path: path, Documents: len(ids)}
}

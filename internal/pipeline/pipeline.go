// Package pipeline wires ingestion, retrieval, and generation into the
// operations the server and CLI expose. Failures are absorbed into
// result objects with a success flag so one bad document or query never
// takes the service down.
package pipeline

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kensaku-ai/kensaku/internal/embedding"
	"github.com/kensaku-ai/kensaku/internal/keyword"
	"github.com/kensaku-ai/kensaku/internal/models"
	"github.com/kensaku-ai/kensaku/internal/retriever"
	"github.com/kensaku-ai/kensaku/internal/storage"
	"github.com/kensaku-ai/kensaku/internal/vector"
)

// Pipeline coordinates the vector store, retriever, keyword index, and source
// registry behind the public operations.
type Pipeline struct {
	store     vector.Store
	retriever *retriever.Retriever
	embedder  *embedding.Service
	registry  *storage.Registry // nil disables source tracking
	keyword   keyword.Index     // nil disables keyword indexing
	splitter  Splitter
	extractor Extractor
	generator Generator
	topK      int
	logger    *zap.Logger
}

// Options configures optional pipeline collaborators. Nil fields get the
// built-in defaults (overlap splitter, plain-text extractor, context-only
// generator); Registry and Keyword stay nil when not provided.
type Options struct {
	Splitter  Splitter
	Extractor Extractor
	Generator Generator
	Registry  *storage.Registry
	Keyword   keyword.Index
	TopK      int
}

// New creates a pipeline over the given store, retriever, and embedder.
func New(store vector.Store, retr *retriever.Retriever, embedder *embedding.Service, opts Options, logger *zap.Logger) *Pipeline {
	if opts.Splitter == nil {
		opts.Splitter = NewOverlapSplitter(1000, 200)
	}
	if opts.Extractor == nil {
		opts.Extractor = NewPlainTextExtractor(0)
	}
	if opts.Generator == nil {
		opts.Generator = NewContextGenerator()
	}
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	return &Pipeline{
		store:     store,
		retriever: retr,
		embedder:  embedder,
		registry:  opts.Registry,
		keyword:   opts.Keyword,
		splitter:  opts.Splitter,
		extractor: opts.Extractor,
		generator: opts.Generator,
		topK:      opts.TopK,
		logger:    logger,
	}
}

// IngestResult reports the outcome of a single ingestion.
type IngestResult struct {
	Success          bool                   `json:"success"`
	Error            string                 `json:"error,omitempty"`
	FilePath         string                 `json:"file_path,omitempty"`
	SourceName       string                 `json:"source_name,omitempty"`
	SourceID         string                 `json:"source_id,omitempty"`
	DocumentsCreated int                    `json:"documents_created"`
	DocumentIDs      []string               `json:"document_ids,omitempty"`
	Metadata         map[string]interface{} `json:"metadata,omitempty"`
}

// IngestText splits raw text into chunks and stores them. The source id is the
// md5 of the text, so re-ingesting the same text replaces its registry record
// rather than duplicating it.
func (p *Pipeline) IngestText(ctx context.Context, text, sourceName string, customMetadata map[string]interface{}) *IngestResult {
	if sourceName == "" {
		sourceName = "text_input"
	}
	chunks := p.splitter.Split(text)
	if len(chunks) == 0 {
		return &IngestResult{Success: false, Error: "no documents generated from text", SourceName: sourceName}
	}

	textHash := md5Hex([]byte(text))
	processedAt := time.Now().Format(time.RFC3339)
	docs := make([]*models.Document, len(chunks))
	for i, chunk := range chunks {
		metadata := map[string]interface{}{
			"source":               sourceName,
			"source_type":          "text",
			"text_hash":            textHash,
			"chunk_index":          i,
			"total_chunks":         len(chunks),
			"chunk_size":           len(chunk),
			"processed_at":         processedAt,
			"original_text_length": len(text),
		}
		for k, v := range customMetadata {
			metadata[k] = v
		}
		docs[i] = models.NewDocument(chunk, metadata, fmt.Sprintf("%s_chunk_%d", textHash, i))
	}

	ids, err := p.store.Add(ctx, docs)
	if err != nil {
		p.logger.Error("text ingestion failed", zap.String("source", sourceName), zap.Error(err))
		return &IngestResult{Success: false, Error: err.Error(), SourceName: sourceName}
	}
	p.indexKeyword(ctx, docs, sourceName)
	p.recordSource(ctx, &storage.Source{
		ID:        textHash,
		Name:      sourceName,
		SizeBytes: int64(len(text)),
	}, ids)

	p.logger.Info("ingested text", zap.String("source", sourceName), zap.Int("chunks", len(ids)))
	return &IngestResult{
		Success:          true,
		SourceName:       sourceName,
		SourceID:         textHash,
		DocumentsCreated: len(ids),
		DocumentIDs:      ids,
		Metadata: map[string]interface{}{
			"text_length":    len(text),
			"total_chunks":   len(ids),
			"avg_chunk_size": avgChunkSize(docs),
		},
	}
}

// IngestFile extracts text from a file, splits it, and stores the chunks. The
// source id is the md5 of the extracted text, so unchanged files re-ingest
// idempotently.
func (p *Pipeline) IngestFile(ctx context.Context, path string, customMetadata map[string]interface{}) *IngestResult {
	ext := filepath.Ext(path)
	if !p.extractor.Supports(ext) {
		return &IngestResult{Success: false, Error: fmt.Sprintf("unsupported file type: %s", ext), FilePath: path}
	}
	text, extractionMeta, err := p.extractor.Extract(path)
	if err != nil {
		p.logger.Error("extraction failed", zap.String("path", path), zap.Error(err))
		return &IngestResult{Success: false, Error: err.Error(), FilePath: path}
	}
	chunks := p.splitter.Split(text)
	if len(chunks) == 0 {
		return &IngestResult{Success: false, Error: "no documents generated from file", FilePath: path}
	}

	fileHash := md5Hex([]byte(text))
	fileName := filepath.Base(path)
	processedAt := time.Now().Format(time.RFC3339)
	docs := make([]*models.Document, len(chunks))
	for i, chunk := range chunks {
		metadata := map[string]interface{}{
			"source_file":  path,
			"file_name":    fileName,
			"file_type":    strings.ToLower(ext),
			"file_hash":    fileHash,
			"chunk_index":  i,
			"total_chunks": len(chunks),
			"chunk_size":   len(chunk),
			"processed_at": processedAt,
		}
		for k, v := range extractionMeta {
			metadata[k] = v
		}
		for k, v := range customMetadata {
			metadata[k] = v
		}
		docs[i] = models.NewDocument(chunk, metadata, fmt.Sprintf("%s_chunk_%d", fileHash, i))
	}

	ids, err := p.store.Add(ctx, docs)
	if err != nil {
		p.logger.Error("file ingestion failed", zap.String("path", path), zap.Error(err))
		return &IngestResult{Success: false, Error: err.Error(), FilePath: path}
	}
	p.indexKeyword(ctx, docs, fileName)

	var sizeBytes int64
	if info, statErr := os.Stat(path); statErr == nil {
		sizeBytes = info.Size()
	}
	p.recordSource(ctx, &storage.Source{
		ID:        fileHash,
		Name:      fileName,
		FileType:  strings.ToLower(ext),
		SizeBytes: sizeBytes,
	}, ids)

	p.logger.Info("ingested file", zap.String("path", path), zap.Int("chunks", len(ids)))
	return &IngestResult{
		Success:          true,
		FilePath:         path,
		SourceName:       fileName,
		SourceID:         fileHash,
		DocumentsCreated: len(ids),
		DocumentIDs:      ids,
		Metadata: map[string]interface{}{
			"file_name":      fileName,
			"file_type":      strings.ToLower(ext),
			"total_chunks":   len(ids),
			"avg_chunk_size": avgChunkSize(docs),
		},
	}
}

// BatchResult summarizes a batch ingestion.
type BatchResult struct {
	TotalFiles     int             `json:"total_files"`
	Successful     int             `json:"successful"`
	Failed         int             `json:"failed"`
	TotalDocuments int             `json:"total_documents"`
	Results        []*IngestResult `json:"results"`
}

// IngestBatch ingests each file in turn; one failing file never aborts the rest.
func (p *Pipeline) IngestBatch(ctx context.Context, paths []string, customMetadata map[string]interface{}) *BatchResult {
	batch := &BatchResult{TotalFiles: len(paths), Results: make([]*IngestResult, 0, len(paths))}
	for _, path := range paths {
		result := p.IngestFile(ctx, path, customMetadata)
		batch.Results = append(batch.Results, result)
		if result.Success {
			batch.Successful++
			batch.TotalDocuments += result.DocumentsCreated
		} else {
			batch.Failed++
		}
	}
	p.logger.Info("batch ingestion completed",
		zap.Int("successful", batch.Successful), zap.Int("failed", batch.Failed))
	return batch
}

func (p *Pipeline) indexKeyword(ctx context.Context, docs []*models.Document, source string) {
	if p.keyword == nil {
		return
	}
	for _, doc := range docs {
		if err := p.keyword.Index(ctx, doc.ID, doc.Content, source); err != nil {
			p.logger.Warn("keyword indexing failed", zap.String("doc_id", doc.ID), zap.Error(err))
		}
	}
}

func (p *Pipeline) recordSource(ctx context.Context, src *storage.Source, chunkIDs []string) {
	if p.registry == nil {
		return
	}
	if err := p.registry.RecordSource(ctx, src, chunkIDs); err != nil {
		p.logger.Warn("source registry update failed", zap.String("source_id", src.ID), zap.Error(err))
	}
}

// SupportedTypes returns the file extensions the pipeline can ingest.
func (p *Pipeline) SupportedTypes() []string {
	return p.extractor.SupportedTypes()
}

func md5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}

func avgChunkSize(docs []*models.Document) float64 {
	if len(docs) == 0 {
		return 0
	}
	total := 0
	for _, doc := range docs {
		total += len(doc.Content)
	}
	return float64(total) / float64(len(docs))
}

//go:build faiss && cgo
// +build faiss,cgo

package vector

/*
#cgo CFLAGS: -I/opt/homebrew/include -I/usr/local/include
#cgo LDFLAGS: -L/opt/homebrew/lib -L/usr/local/lib -lfaiss_c

#include <stdlib.h>
#include <faiss/c_api/Index_c.h>
#include <faiss/c_api/IndexFlat_c.h>
#include <faiss/c_api/index_io_c.h>
#include <faiss/c_api/error_c.h>
*/
import "C"

import (
	"context"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"unsafe"

	"go.uber.org/zap"

	"github.com/kensaku-ai/kensaku/internal/embedding"
	"github.com/kensaku-ai/kensaku/internal/models"
)

const faissCompiledIn = true

// FAISSStore is the primary vector store, delegating similarity search to a
// FAISS IndexFlatL2. Similarity is reported as 1 - L2 distance, which is not
// on the same scale as the fallback store's inner-product score.
//
// IndexFlat does not support removal, so Delete only drops the ID mappings;
// the underlying rows remain and are skipped at search time.
type FAISSStore struct {
	index      *C.FaissIndexFlat
	embedder   *embedding.Service
	logger     *zap.Logger
	dir        string
	threshold  float64
	dimensions int

	idToIntID map[string]int64
	intIDToID map[int64]string
	nextID    int64
	docs      map[string]*models.Document
	mu        sync.RWMutex
}

// NewFAISSStore creates the primary store, loading a persisted index from dir
// when present. Load failures fall back to a fresh index with a logged
// warning; only index creation itself is fatal.
func NewFAISSStore(dir string, threshold float64, embedder *embedding.Service, logger *zap.Logger) (*FAISSStore, error) {
	dimensions := embedder.Dimensions()
	if dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", dimensions)
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create persist dir: %w", err)
	}

	var index *C.FaissIndexFlat
	ret := C.faiss_IndexFlatL2_new_with(&index, C.idx_t(dimensions))
	if ret != 0 {
		return nil, fmt.Errorf("create FAISS index: %s", faissLastError())
	}

	s := &FAISSStore{
		index:      index,
		embedder:   embedder,
		logger:     logger,
		dir:        dir,
		threshold:  threshold,
		dimensions: dimensions,
		idToIntID:  make(map[string]int64),
		intIDToID:  make(map[int64]string),
		docs:       make(map[string]*models.Document),
	}
	if err := s.load(); err != nil {
		logger.Warn("failed to load persisted FAISS index, starting fresh", zap.Error(err))
		s.idToIntID = make(map[string]int64)
		s.intIDToID = make(map[int64]string)
		s.docs = make(map[string]*models.Document)
		s.nextID = 0
	}
	return s, nil
}

func faissLastError() string {
	cErr := C.faiss_get_last_error()
	if cErr == nil {
		return "unknown error"
	}
	return C.GoString(cErr)
}

// Add embeds the documents and appends their vectors to the index.
func (s *FAISSStore) Add(ctx context.Context, docs []*models.Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, nil
	}
	texts := make([]string, len(docs))
	for i, doc := range docs {
		texts[i] = doc.Content
	}
	embeddings, err := s.embedder.EncodeBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed documents: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := len(embeddings)
	flat := make([]float32, n*s.dimensions)
	for i, vec := range embeddings {
		if len(vec) != s.dimensions {
			return nil, fmt.Errorf("embedding dimension mismatch: got %d, index has %d", len(vec), s.dimensions)
		}
		copy(flat[i*s.dimensions:(i+1)*s.dimensions], normalizedCopy(vec))
	}
	ret := C.faiss_Index_add(s.index, C.idx_t(n), (*C.float)(unsafe.Pointer(&flat[0])))
	if ret != 0 {
		return nil, fmt.Errorf("add vectors to FAISS index: %s", faissLastError())
	}

	ids := make([]string, len(docs))
	for i, doc := range docs {
		if oldIntID, ok := s.idToIntID[doc.ID]; ok {
			// Re-adding an existing id orphans its old row, matching the soft
			// removal in Delete; otherwise a search could return it twice.
			delete(s.intIDToID, oldIntID)
		}
		s.idToIntID[doc.ID] = s.nextID
		s.intIDToID[s.nextID] = doc.ID
		s.nextID++
		s.docs[doc.ID] = doc
		ids[i] = doc.ID
	}
	if err := s.persistLocked(); err != nil {
		s.logger.Error("failed to persist FAISS index", zap.Error(err))
	}
	return ids, nil
}

// Search embeds the query and runs a FAISS k-NN search, over-fetching 2xN
// candidates so removed rows and filter misses can be skipped.
func (s *FAISSStore) Search(ctx context.Context, query string, n int, filter map[string]interface{}) ([]*SearchResult, error) {
	if n <= 0 {
		return nil, nil
	}
	queryVec, err := s.embedder.Encode(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	queryVec = normalizedCopy(queryVec)
	if len(queryVec) != s.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, index has %d", len(queryVec), s.dimensions)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ntotal := int(C.faiss_Index_ntotal(s.index))
	if ntotal == 0 {
		return nil, nil
	}
	k := 2 * n
	if k > ntotal {
		k = ntotal
	}

	distances := make([]float32, k)
	labels := make([]int64, k)
	ret := C.faiss_Index_search(
		s.index,
		1,
		(*C.float)(unsafe.Pointer(&queryVec[0])),
		C.idx_t(k),
		(*C.float)(unsafe.Pointer(&distances[0])),
		(*C.idx_t)(unsafe.Pointer(&labels[0])),
	)
	if ret != 0 {
		return nil, fmt.Errorf("FAISS search failed: %s", faissLastError())
	}

	results := make([]*SearchResult, 0, n)
	for i := 0; i < k; i++ {
		label := labels[i]
		if label < 0 {
			continue
		}
		id, ok := s.intIDToID[label]
		if !ok {
			continue // removed
		}
		doc, ok := s.docs[id]
		if !ok {
			continue
		}
		if !doc.MatchesFilter(filter) {
			continue
		}
		distance := float64(distances[i])
		similarity := 1 - distance
		if similarity < s.threshold {
			continue
		}
		results = append(results, &SearchResult{
			ID:         id,
			Content:    doc.Content,
			Metadata:   doc.Metadata,
			Similarity: similarity,
			Distance:   distance,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	if len(results) > n {
		results = results[:n]
	}
	return results, nil
}

// Get returns the document with the given id, or nil when absent.
func (s *FAISSStore) Get(ctx context.Context, id string) *models.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs[id]
}

// Update re-embeds the document, appending the new vector and remapping the id.
func (s *FAISSStore) Update(ctx context.Context, doc *models.Document) error {
	s.mu.RLock()
	_, exists := s.idToIntID[doc.ID]
	s.mu.RUnlock()
	if !exists {
		return fmt.Errorf("document not found: %s", doc.ID)
	}
	vec, err := s.embedder.Encode(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("embed document: %w", err)
	}
	vec = normalizedCopy(vec)

	s.mu.Lock()
	defer s.mu.Unlock()
	oldIntID, exists := s.idToIntID[doc.ID]
	if !exists {
		return fmt.Errorf("document not found: %s", doc.ID)
	}
	ret := C.faiss_Index_add(s.index, 1, (*C.float)(unsafe.Pointer(&vec[0])))
	if ret != 0 {
		return fmt.Errorf("add vector to FAISS index: %s", faissLastError())
	}
	delete(s.intIDToID, oldIntID)
	s.idToIntID[doc.ID] = s.nextID
	s.intIDToID[s.nextID] = doc.ID
	s.nextID++
	s.docs[doc.ID] = doc
	if err := s.persistLocked(); err != nil {
		s.logger.Error("failed to persist FAISS index", zap.Error(err))
	}
	return nil
}

// Delete removes the document's mappings and metadata.
func (s *FAISSStore) Delete(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(id, true)
}

// DeleteMany removes the given ids, persisting once.
func (s *FAISSStore) DeleteMany(ctx context.Context, ids []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, id := range ids {
		if s.deleteLocked(id, false) {
			count++
		}
	}
	if count > 0 {
		if err := s.persistLocked(); err != nil {
			s.logger.Error("failed to persist FAISS index", zap.Error(err))
		}
	}
	return count
}

func (s *FAISSStore) deleteLocked(id string, persist bool) bool {
	if _, ok := s.docs[id]; !ok {
		return false
	}
	if intID, ok := s.idToIntID[id]; ok {
		delete(s.intIDToID, intID)
		delete(s.idToIntID, id)
	}
	delete(s.docs, id)
	if persist {
		if err := s.persistLocked(); err != nil {
			s.logger.Error("failed to persist FAISS index", zap.Error(err))
		}
	}
	return true
}

// List returns documents matching the filter, newest first, up to limit
// (0 = no limit).
func (s *FAISSStore) List(ctx context.Context, filter map[string]interface{}, limit int) []*models.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := make([]*models.Document, 0, len(s.docs))
	for _, doc := range s.docs {
		if doc.MatchesFilter(filter) {
			docs = append(docs, doc)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
	if limit > 0 && len(docs) > limit {
		docs = docs[:limit]
	}
	return docs
}

// Count returns the number of documents matching the filter.
func (s *FAISSStore) Count(ctx context.Context, filter map[string]interface{}) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(filter) == 0 {
		return len(s.docs)
	}
	count := 0
	for _, doc := range s.docs {
		if doc.MatchesFilter(filter) {
			count++
		}
	}
	return count
}

// Clear replaces the FAISS index with a fresh one and drops all documents.
func (s *FAISSStore) Clear(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	var index *C.FaissIndexFlat
	ret := C.faiss_IndexFlatL2_new_with(&index, C.idx_t(s.dimensions))
	if ret != 0 {
		s.logger.Error("failed to recreate FAISS index", zap.String("error", faissLastError()))
		return false
	}
	C.faiss_Index_free(s.index)
	s.index = index
	s.idToIntID = make(map[string]int64)
	s.intIDToID = make(map[int64]string)
	s.docs = make(map[string]*models.Document)
	s.nextID = 0
	if err := s.persistLocked(); err != nil {
		s.logger.Error("failed to persist cleared FAISS index", zap.Error(err))
		return false
	}
	return true
}

// Info returns store statistics. IndexSize counts FAISS rows including rows
// whose mappings were removed.
func (s *FAISSStore) Info(ctx context.Context) *Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Info{
		Backend:       "faiss",
		DocumentCount: len(s.docs),
		IndexSize:     int(C.faiss_Index_ntotal(s.index)),
		Dimensions:    s.dimensions,
		PersistDir:    s.dir,
	}
}

// Close frees the FAISS index resources.
func (s *FAISSStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index != nil {
		C.faiss_Index_free(s.index)
		s.index = nil
	}
	return nil
}

type faissSidecar struct {
	IDToIntID map[string]int64
	IntIDToID map[int64]string
	NextID    int64
	Documents map[string]*models.Document
}

func (s *FAISSStore) indexPath() string   { return filepath.Join(s.dir, "index.faiss") }
func (s *FAISSStore) sidecarPath() string { return filepath.Join(s.dir, "index.sidecar") }

// persistLocked writes the FAISS index and the gob sidecar holding mappings
// and documents. Callers must hold the write lock.
func (s *FAISSStore) persistLocked() error {
	cPath := C.CString(s.indexPath())
	defer C.free(unsafe.Pointer(cPath))
	ret := C.faiss_write_index_fname(s.index, cPath)
	if ret != 0 {
		return fmt.Errorf("write FAISS index: %s", faissLastError())
	}

	f, err := os.Create(s.sidecarPath())
	if err != nil {
		return fmt.Errorf("create sidecar file: %w", err)
	}
	defer f.Close()
	sidecar := faissSidecar{
		IDToIntID: s.idToIntID,
		IntIDToID: s.intIDToID,
		NextID:    s.nextID,
		Documents: s.docs,
	}
	if err := gob.NewEncoder(f).Encode(sidecar); err != nil {
		return fmt.Errorf("encode sidecar: %w", err)
	}
	return nil
}

func (s *FAISSStore) load() error {
	if _, err := os.Stat(s.indexPath()); os.IsNotExist(err) {
		return nil
	}

	cPath := C.CString(s.indexPath())
	defer C.free(unsafe.Pointer(cPath))
	var newIndex *C.FaissIndex
	ret := C.faiss_read_index_fname(cPath, 0, &newIndex)
	if ret != 0 {
		return fmt.Errorf("read FAISS index: %s", faissLastError())
	}

	f, err := os.Open(s.sidecarPath())
	if err != nil {
		C.faiss_Index_free(newIndex)
		return fmt.Errorf("open sidecar file: %w", err)
	}
	defer f.Close()
	var sidecar faissSidecar
	if err := gob.NewDecoder(f).Decode(&sidecar); err != nil {
		C.faiss_Index_free(newIndex)
		return fmt.Errorf("decode sidecar: %w", err)
	}

	C.faiss_Index_free(s.index)
	s.index = newIndex
	s.idToIntID = sidecar.IDToIntID
	s.intIDToID = sidecar.IntIDToID
	s.nextID = sidecar.NextID
	s.docs = sidecar.Documents
	s.logger.Info("loaded FAISS index",
		zap.Int("documents", len(s.docs)),
		zap.Int64("index_size", int64(C.faiss_Index_ntotal(s.index))))
	return nil
}

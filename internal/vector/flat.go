package vector

import (
	"context"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/kensaku-ai/kensaku/internal/embedding"
	"github.com/kensaku-ai/kensaku/internal/models"
)

const (
	flatVectorsFile  = "vectors.bin"
	flatMetadataFile = "metadata.gob"

	// flatMaxThreshold caps the similarity threshold applied by the fallback
	// store. Inner-product scores over normalized vectors sit on a different
	// scale than the primary store's distance-derived similarity, so the
	// configured cutoff is not applied verbatim here.
	flatMaxThreshold = 0.1
)

func init() {
	// Metadata maps carry arbitrary scalar values through gob.
	gob.Register(map[string]interface{}{})
	gob.Register([]interface{}{})
	gob.Register(time.Time{})
}

// FlatStore is a self-managed vector index: a flat arena of unit-normalized
// vectors addressed by dense positions, with id<->position mappings and a
// document map. Deleting a document removes its mappings but leaves the arena
// row in place (tombstone); Compact reclaims the space.
//
// A read-write lock guards the arena and mappings so concurrent searches never
// observe a partially-applied mutation.
type FlatStore struct {
	embedder  *embedding.Service
	logger    *zap.Logger
	dir       string
	threshold float64

	// mu also covers the append+persist critical section so position
	// assignment is atomic.
	mu         sync.RWMutex
	dimensions int
	vectors    [][]float32
	idToPos    map[string]int
	posToID    map[int]string
	docs       map[string]*models.Document
}

// NewFlatStore creates the fallback store, loading persisted state from dir
// when present. Missing or unreadable files are never fatal: a fresh index
// sized to the embedding service's dimension is created with a logged warning.
func NewFlatStore(dir string, threshold float64, embedder *embedding.Service, logger *zap.Logger) (*FlatStore, error) {
	if embedder.Dimensions() <= 0 {
		return nil, fmt.Errorf("embedding dimension must be positive, got %d", embedder.Dimensions())
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create persist dir: %w", err)
	}
	s := &FlatStore{
		embedder:  embedder,
		logger:    logger,
		dir:       dir,
		threshold: threshold,
	}
	if err := s.load(); err != nil {
		logger.Warn("failed to load persisted index, starting fresh", zap.Error(err))
		s.reset()
	}
	return s, nil
}

func (s *FlatStore) reset() {
	s.dimensions = s.embedder.Dimensions()
	s.vectors = nil
	s.idToPos = make(map[string]int)
	s.posToID = make(map[int]string)
	s.docs = make(map[string]*models.Document)
}

// Add normalizes and appends each document's embedding, assigns dense
// positions, and persists before returning the ids in input order.
func (s *FlatStore) Add(ctx context.Context, docs []*models.Document) ([]string, error) {
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
	for i := range embeddings {
		if len(embeddings[i]) != s.dimensions {
			return nil, fmt.Errorf("embedding dimension mismatch: got %d, index has %d", len(embeddings[i]), s.dimensions)
		}
	}
	ids := make([]string, len(docs))
	for i, doc := range docs {
		if oldPos, ok := s.idToPos[doc.ID]; ok {
			// Re-adding an existing id tombstones its old row, as Update does;
			// otherwise a search could return the same document twice.
			delete(s.posToID, oldPos)
		}
		pos := len(s.vectors)
		s.vectors = append(s.vectors, normalizedCopy(embeddings[i]))
		s.idToPos[doc.ID] = pos
		s.posToID[pos] = doc.ID
		s.docs[doc.ID] = doc
		ids[i] = doc.ID
	}
	if err := s.persist(); err != nil {
		s.logger.Error("failed to persist index", zap.Error(err))
	}
	s.logger.Debug("added documents to flat index", zap.Int("count", len(docs)), zap.Int("arena_size", len(s.vectors)))
	return ids, nil
}

// Search embeds the query and scores it against every arena row by inner
// product. It over-fetches 2xN candidates, skips tombstoned rows, applies the
// metadata filter and threshold, and returns the top n by similarity.
func (s *FlatStore) Search(ctx context.Context, query string, n int, filter map[string]interface{}) ([]*SearchResult, error) {
	if n <= 0 {
		return nil, nil
	}
	queryVec, err := s.embedder.Encode(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	queryVec = normalizedCopy(queryVec)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.vectors) == 0 {
		return nil, nil
	}

	type scored struct {
		pos   int
		score float64
	}
	scores := make([]scored, len(s.vectors))
	for pos, vec := range s.vectors {
		scores[pos] = scored{pos: pos, score: InnerProduct(queryVec, vec)}
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].score > scores[j].score })

	fetch := 2 * n
	if fetch > len(scores) {
		fetch = len(scores)
	}

	threshold := math.Min(flatMaxThreshold, s.threshold)
	results := make([]*SearchResult, 0, n)
	for _, cand := range scores[:fetch] {
		id, live := s.posToID[cand.pos]
		if !live {
			continue // tombstoned row
		}
		doc, ok := s.docs[id]
		if !ok {
			continue
		}
		if !doc.MatchesFilter(filter) {
			continue
		}
		if cand.score < threshold {
			continue
		}
		results = append(results, &SearchResult{
			ID:         id,
			Content:    doc.Content,
			Metadata:   doc.Metadata,
			Similarity: cand.score,
			Distance:   1 - cand.score,
		})
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Similarity > results[j].Similarity })
	if len(results) > n {
		results = results[:n]
	}
	return results, nil
}

// Get returns the document with the given id, or nil when absent.
func (s *FlatStore) Get(ctx context.Context, id string) *models.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.docs[id]
}

// Update re-embeds the document and appends the new vector, remapping the id
// to the fresh position. The old row becomes a tombstone.
func (s *FlatStore) Update(ctx context.Context, doc *models.Document) error {
	s.mu.RLock()
	_, exists := s.idToPos[doc.ID]
	s.mu.RUnlock()
	if !exists {
		return fmt.Errorf("document not found: %s", doc.ID)
	}
	vec, err := s.embedder.Encode(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("embed document: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	oldPos, exists := s.idToPos[doc.ID]
	if !exists {
		return fmt.Errorf("document not found: %s", doc.ID)
	}
	delete(s.posToID, oldPos)
	pos := len(s.vectors)
	s.vectors = append(s.vectors, normalizedCopy(vec))
	s.idToPos[doc.ID] = pos
	s.posToID[pos] = doc.ID
	s.docs[doc.ID] = doc
	if err := s.persist(); err != nil {
		s.logger.Error("failed to persist index", zap.Error(err))
	}
	return nil
}

// Delete removes the document's mappings and metadata. The arena row stays in
// place but is unreachable by any search.
func (s *FlatStore) Delete(ctx context.Context, id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deleteLocked(id, true)
}

// DeleteMany removes the given ids, persisting once, and returns how many existed.
func (s *FlatStore) DeleteMany(ctx context.Context, ids []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for _, id := range ids {
		if s.deleteLocked(id, false) {
			count++
		}
	}
	if count > 0 {
		if err := s.persist(); err != nil {
			s.logger.Error("failed to persist index", zap.Error(err))
		}
	}
	return count
}

func (s *FlatStore) deleteLocked(id string, persist bool) bool {
	if _, ok := s.docs[id]; !ok {
		return false
	}
	if pos, ok := s.idToPos[id]; ok {
		delete(s.posToID, pos)
		delete(s.idToPos, id)
	}
	delete(s.docs, id)
	if persist {
		if err := s.persist(); err != nil {
			s.logger.Error("failed to persist index", zap.Error(err))
		}
	}
	return true
}

// List returns documents matching the filter, newest first, up to limit
// (0 = no limit).
func (s *FlatStore) List(ctx context.Context, filter map[string]interface{}, limit int) []*models.Document {
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
func (s *FlatStore) Count(ctx context.Context, filter map[string]interface{}) int {
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

// Clear discards every document and the whole arena.
func (s *FlatStore) Clear(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
	if err := s.persist(); err != nil {
		s.logger.Error("failed to persist cleared index", zap.Error(err))
		return false
	}
	return true
}

// Compact rebuilds the arena with only live rows, reassigning dense positions.
// Recommended for callers who delete frequently; skipping it is a valid, if
// wasteful, steady state.
func (s *FlatStore) Compact(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	live := make([]int, 0, len(s.idToPos))
	for pos := range s.posToID {
		live = append(live, pos)
	}
	sort.Ints(live)

	vectors := make([][]float32, 0, len(live))
	idToPos := make(map[string]int, len(live))
	posToID := make(map[int]string, len(live))
	for newPos, oldPos := range live {
		id := s.posToID[oldPos]
		vectors = append(vectors, s.vectors[oldPos])
		idToPos[id] = newPos
		posToID[newPos] = id
	}
	reclaimed := len(s.vectors) - len(vectors)
	s.vectors = vectors
	s.idToPos = idToPos
	s.posToID = posToID
	if err := s.persist(); err != nil {
		return fmt.Errorf("persist compacted index: %w", err)
	}
	s.logger.Info("compacted flat index", zap.Int("live", len(vectors)), zap.Int("reclaimed", reclaimed))
	return nil
}

// Info returns store statistics. IndexSize counts arena rows including
// tombstones; DocumentCount counts live documents.
func (s *FlatStore) Info(ctx context.Context) *Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &Info{
		Backend:       "flat",
		DocumentCount: len(s.docs),
		IndexSize:     len(s.vectors),
		Dimensions:    s.dimensions,
		PersistDir:    s.dir,
	}
}

// Close is a no-op; state is persisted after every mutation.
func (s *FlatStore) Close() error {
	return nil
}

type flatMetadata struct {
	Documents map[string]*models.Document
	IDToPos   map[string]int
	PosToID   map[int]string
}

// persist writes the arena and mappings. Callers must hold the write lock.
func (s *FlatStore) persist() error {
	if err := s.writeVectors(); err != nil {
		return err
	}
	return s.writeMetadata()
}

// writeVectors serializes the arena: dimension (4 bytes), row count (4 bytes),
// then each row as dimension*4 bytes, little endian.
func (s *FlatStore) writeVectors() error {
	f, err := os.Create(filepath.Join(s.dir, flatVectorsFile))
	if err != nil {
		return fmt.Errorf("create vectors file: %w", err)
	}
	defer f.Close()
	if err := binary.Write(f, binary.LittleEndian, uint32(s.dimensions)); err != nil {
		return fmt.Errorf("write dimensions: %w", err)
	}
	if err := binary.Write(f, binary.LittleEndian, uint32(len(s.vectors))); err != nil {
		return fmt.Errorf("write count: %w", err)
	}
	for _, vec := range s.vectors {
		if _, err := f.Write(float32SliceToBytes(vec)); err != nil {
			return fmt.Errorf("write vector: %w", err)
		}
	}
	return nil
}

func (s *FlatStore) writeMetadata() error {
	f, err := os.Create(filepath.Join(s.dir, flatMetadataFile))
	if err != nil {
		return fmt.Errorf("create metadata file: %w", err)
	}
	defer f.Close()
	meta := flatMetadata{Documents: s.docs, IDToPos: s.idToPos, PosToID: s.posToID}
	if err := gob.NewEncoder(f).Encode(meta); err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	return nil
}

// load reads the persisted arena and mappings. A missing file pair yields a
// fresh index without error; decode failures are returned so the constructor
// can log and reset.
func (s *FlatStore) load() error {
	vecPath := filepath.Join(s.dir, flatVectorsFile)
	metaPath := filepath.Join(s.dir, flatMetadataFile)
	if _, err := os.Stat(vecPath); os.IsNotExist(err) {
		s.reset()
		return nil
	}
	if _, err := os.Stat(metaPath); os.IsNotExist(err) {
		s.reset()
		return nil
	}

	vf, err := os.Open(vecPath)
	if err != nil {
		return fmt.Errorf("open vectors file: %w", err)
	}
	defer vf.Close()
	var dim, n uint32
	if err := binary.Read(vf, binary.LittleEndian, &dim); err != nil {
		return fmt.Errorf("read dimensions: %w", err)
	}
	if int(dim) != s.embedder.Dimensions() {
		return fmt.Errorf("dimension mismatch: file has %d, model produces %d", dim, s.embedder.Dimensions())
	}
	if err := binary.Read(vf, binary.LittleEndian, &n); err != nil {
		return fmt.Errorf("read count: %w", err)
	}
	vectors := make([][]float32, 0, n)
	buf := make([]byte, int(dim)*4)
	for i := uint32(0); i < n; i++ {
		if _, err := io.ReadFull(vf, buf); err != nil {
			return fmt.Errorf("read vector %d: %w", i, err)
		}
		vectors = append(vectors, bytesToFloat32Slice(buf))
	}

	mf, err := os.Open(metaPath)
	if err != nil {
		return fmt.Errorf("open metadata file: %w", err)
	}
	defer mf.Close()
	var meta flatMetadata
	if err := gob.NewDecoder(mf).Decode(&meta); err != nil {
		return fmt.Errorf("decode metadata: %w", err)
	}

	s.dimensions = int(dim)
	s.vectors = vectors
	s.docs = meta.Documents
	s.idToPos = meta.IDToPos
	s.posToID = meta.PosToID
	s.logger.Info("loaded flat index",
		zap.Int("documents", len(s.docs)),
		zap.Int("arena_size", len(s.vectors)))
	return nil
}

func float32SliceToBytes(s []float32) []byte {
	const size = 4
	out := make([]byte, len(s)*size)
	for i, v := range s {
		binary.LittleEndian.PutUint32(out[i*size:(i+1)*size], math.Float32bits(v))
	}
	return out
}

func bytesToFloat32Slice(b []byte) []float32 {
	const size = 4
	out := make([]float32, len(b)/size)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*size : (i+1)*size]))
	}
	return out
}

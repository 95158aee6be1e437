package embedding

import (
	"context"
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

// ServiceOptions configures a Service.
type ServiceOptions struct {
	// ModelName namespaces the disk cache; two models never share entries.
	ModelName string
	// CacheDir is the disk cache root. Ignored when CacheEnabled is false.
	CacheDir     string
	CacheEnabled bool
	// BatchSize is the number of texts per model invocation in EncodeBatch.
	BatchSize int
	// MaxWorkers bounds the worker pool used by EncodeAsync. Defaults to 4.
	MaxWorkers int
	// HotCacheSize is the capacity of the in-memory LRU layer. Defaults to 10000.
	HotCacheSize int
}

// Service turns text into embeddings, caching results by (model, text).
// It is safe for concurrent use; calls into the underlying model are
// serialized because the model is not assumed thread-safe.
type Service struct {
	embedder Embedder
	disk     *DiskCache // nil when caching is disabled
	hot      *lruCache
	opts     ServiceOptions
	sem      *semaphore.Weighted
	logger   *zap.Logger
	mu       sync.Mutex // guards model invocations
}

// NewService creates an embedding service around the given model backend.
// A nil embedder or a failed cache directory is a construction error; model
// load failures surface from the Embedder's own constructor before this point.
func NewService(embedder Embedder, opts ServiceOptions, logger *zap.Logger) (*Service, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 32
	}
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 4
	}
	if opts.HotCacheSize <= 0 {
		opts.HotCacheSize = 10000
	}
	s := &Service{
		embedder: embedder,
		hot:      newLRUCache(opts.HotCacheSize),
		opts:     opts,
		sem:      semaphore.NewWeighted(int64(opts.MaxWorkers)),
		logger:   logger,
	}
	if opts.CacheEnabled {
		disk, err := NewDiskCache(opts.CacheDir, opts.ModelName, logger)
		if err != nil {
			return nil, err
		}
		s.disk = disk
	}
	return s, nil
}

// Encode returns the embedding for text, computing it only when no cached
// vector exists for (model, text).
func (s *Service) Encode(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := s.lookup(text); ok {
		return vec, nil
	}
	s.mu.Lock()
	vec, err := s.embedder.Embed(ctx, text)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("embed failed: %w", err)
	}
	s.store(text, vec)
	return vec, nil
}

// EncodeBatch returns embeddings for texts in input order. Cached texts are
// never re-sent to the model, even when the same text appears twice in one
// call; uncached texts are computed in groups of the configured batch size.
func (s *Service) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	out := make([][]float32, len(texts))

	// Partition into cached and uncached, deduplicating uncached texts so one
	// model invocation serves every occurrence.
	uncached := make([]string, 0, len(texts))
	positions := make(map[string][]int)
	for i, text := range texts {
		if vec, ok := s.lookup(text); ok {
			out[i] = vec
			continue
		}
		if _, seen := positions[text]; !seen {
			uncached = append(uncached, text)
		}
		positions[text] = append(positions[text], i)
	}
	if len(uncached) == 0 {
		return out, nil
	}

	s.logger.Debug("computing uncached embeddings", zap.Int("count", len(uncached)))
	for start := 0; start < len(uncached); start += s.opts.BatchSize {
		end := start + s.opts.BatchSize
		if end > len(uncached) {
			end = len(uncached)
		}
		batch := uncached[start:end]

		s.mu.Lock()
		vecs, err := s.embedder.EmbedBatch(ctx, batch)
		s.mu.Unlock()
		if err != nil {
			return nil, fmt.Errorf("embed batch failed: %w", err)
		}
		for j, text := range batch {
			s.store(text, vecs[j])
			for _, pos := range positions[text] {
				out[pos] = vecs[j]
			}
		}
	}
	return out, nil
}

// EncodeResult is the outcome of an asynchronous encode.
type EncodeResult struct {
	Vector []float32
	Err    error
}

// EncodeAsync computes the embedding on a bounded worker pool and delivers the
// result on the returned channel. The caller is never blocked; backpressure is
// applied inside the worker via the semaphore.
func (s *Service) EncodeAsync(ctx context.Context, text string) <-chan EncodeResult {
	ch := make(chan EncodeResult, 1)
	go func() {
		if err := s.sem.Acquire(ctx, 1); err != nil {
			ch <- EncodeResult{Err: err}
			return
		}
		defer s.sem.Release(1)
		vec, err := s.Encode(ctx, text)
		ch <- EncodeResult{Vector: vec, Err: err}
	}()
	return ch
}

// Similarity returns the cosine similarity of two vectors. When either vector
// has zero norm it returns 0.0 rather than failing on division by zero.
func (s *Service) Similarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Dimensions returns the embedding dimension of the underlying model.
func (s *Service) Dimensions() int {
	return s.embedder.Dimensions()
}

// ModelName returns the configured model identifier.
func (s *Service) ModelName() string {
	return s.opts.ModelName
}

// ClearCache empties both cache layers.
func (s *Service) ClearCache() error {
	s.hot.Purge()
	if s.disk != nil {
		return s.disk.Clear()
	}
	return nil
}

// Close releases the underlying model.
func (s *Service) Close() error {
	return s.embedder.Close()
}

func (s *Service) lookup(text string) ([]float32, bool) {
	if vec, ok := s.hot.Get(text); ok {
		return vec, true
	}
	if s.disk != nil {
		if vec, ok := s.disk.Get(text); ok {
			s.hot.Set(text, vec)
			return vec, true
		}
	}
	return nil, false
}

func (s *Service) store(text string, vec []float32) {
	s.hot.Set(text, vec)
	if s.disk != nil {
		s.disk.Set(text, vec)
	}
}

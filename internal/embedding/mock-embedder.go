package embedding

import (
	"context"
	"math"
	"strings"
	"sync/atomic"
)

// MockEmbedder is a deterministic embedder for tests. It returns a fixed-dimension
// unit vector derived from word hashes so that the same text always gets the same
// embedding and texts sharing words get similar embeddings.
type MockEmbedder struct {
	dimensions int
	calls      atomic.Int64
}

// NewMockEmbedder returns an embedder producing deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns a deterministic embedding built from a bag-of-words hash so
// that overlapping vocabularies produce correlated vectors.
func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls.Add(1)
	vec := make([]float32, e.dimensions)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		h := hashString(word)
		for i := 0; i < e.dimensions; i++ {
			vec[i] += float32(math.Sin(float64(h * (i + 1))))
		}
	}
	var sum float64
	for _, v := range vec {
		sum += float64(v * v)
	}
	if sum > 0 {
		norm := float32(1.0 / math.Sqrt(sum))
		for i := range vec {
			vec[i] *= norm
		}
	}
	return vec, nil
}

// EmbedBatch calls Embed for each text.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vecs[i] = v
	}
	return vecs, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Calls returns how many times the model was invoked. Used by tests to verify
// that cached texts never reach the model a second time.
func (e *MockEmbedder) Calls() int64 {
	return e.calls.Load()
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}

//go:build !faiss || !cgo
// +build !faiss !cgo

package vector

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/kensaku-ai/kensaku/internal/embedding"
	"github.com/kensaku-ai/kensaku/internal/models"
)

const faissCompiledIn = false

// FAISSStore is a stub that reports FAISS as unavailable. Build with
// -tags=faiss to enable the real implementation.
type FAISSStore struct{}

// NewFAISSStore returns an error because FAISS support is not compiled in.
func NewFAISSStore(dir string, threshold float64, embedder *embedding.Service, logger *zap.Logger) (*FAISSStore, error) {
	return nil, fmt.Errorf("FAISS not available: build with -tags=faiss and install the FAISS library")
}

func (s *FAISSStore) Add(ctx context.Context, docs []*models.Document) ([]string, error) {
	return nil, fmt.Errorf("FAISS not available")
}

func (s *FAISSStore) Search(ctx context.Context, query string, n int, filter map[string]interface{}) ([]*SearchResult, error) {
	return nil, fmt.Errorf("FAISS not available")
}

func (s *FAISSStore) Get(ctx context.Context, id string) *models.Document { return nil }

func (s *FAISSStore) Update(ctx context.Context, doc *models.Document) error {
	return fmt.Errorf("FAISS not available")
}

func (s *FAISSStore) Delete(ctx context.Context, id string) bool { return false }

func (s *FAISSStore) DeleteMany(ctx context.Context, ids []string) int { return 0 }

func (s *FAISSStore) List(ctx context.Context, filter map[string]interface{}, limit int) []*models.Document {
	return nil
}

func (s *FAISSStore) Count(ctx context.Context, filter map[string]interface{}) int { return 0 }

func (s *FAISSStore) Clear(ctx context.Context) bool { return false }

func (s *FAISSStore) Info(ctx context.Context) *Info { return &Info{Backend: "faiss"} }

func (s *FAISSStore) Close() error { return nil }

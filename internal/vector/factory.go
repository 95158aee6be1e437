// Package vector provides vector store implementations and a factory that
// selects between them at construction time.
package vector

import (
	"go.uber.org/zap"

	"github.com/kensaku-ai/kensaku/internal/embedding"
)

// NewStore creates the best available vector store. It probes the FAISS
// backend first and falls back to the self-managed flat store when FAISS is
// not compiled in or fails to initialize. The choice is made once and holds
// for the life of the process.
func NewStore(dir string, threshold float64, embedder *embedding.Service, logger *zap.Logger) (Store, error) {
	faissStore, err := NewFAISSStore(dir, threshold, embedder, logger)
	if err == nil {
		logger.Info("using FAISS vector store", zap.String("persist_dir", dir))
		return faissStore, nil
	}
	logger.Warn("FAISS unavailable, using flat vector store", zap.Error(err))

	flat, err := NewFlatStore(dir, threshold, embedder, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("using flat vector store", zap.String("persist_dir", dir))
	return flat, nil
}

// IsFAISSAvailable reports whether FAISS support is compiled in. Determined by
// the -tags=faiss build tag and library presence, not by runtime probing of
// any particular index.
func IsFAISSAvailable() bool {
	return faissCompiledIn
}

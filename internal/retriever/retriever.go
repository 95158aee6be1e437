// Package retriever turns queries into ranked retrieval results by searching
// the vector store, applying thresholds and reranking, and optionally merging
// semantic results with keyword results.
package retriever

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kensaku-ai/kensaku/internal/embedding"
	"github.com/kensaku-ai/kensaku/internal/models"
	"github.com/kensaku-ai/kensaku/internal/vector"
)

// Defaults holds the construction-time retrieval defaults. Per-call options
// shadow them for that call only.
type Defaults struct {
	TopK                int
	SimilarityThreshold float64
	SemanticWeight      float64
	KeywordWeight       float64
}

// Options are per-call overrides for a retrieval. Zero values fall back to the
// retriever's defaults; Rerank defaults to true (use NoRerank to disable).
type Options struct {
	TopK                int
	SimilarityThreshold float64 // applied on top of the store's own cutoff when > 0
	Filter              map[string]interface{}
	NoRerank            bool
}

// Retriever performs semantic retrieval over a vector store. Retrieval
// failures are absorbed: every public method returns an empty (never nil
// error) result list with the cause logged, so one bad query never takes
// down a caller.
type Retriever struct {
	store    vector.Store
	embedder *embedding.Service
	defaults Defaults
	logger   *zap.Logger
}

// New creates a retriever over the given store and embedding service.
func New(store vector.Store, embedder *embedding.Service, defaults Defaults, logger *zap.Logger) *Retriever {
	if defaults.TopK <= 0 {
		defaults.TopK = 5
	}
	if defaults.SemanticWeight == 0 && defaults.KeywordWeight == 0 {
		defaults.SemanticWeight = 0.7
		defaults.KeywordWeight = 0.3
	}
	return &Retriever{
		store:    store,
		embedder: embedder,
		defaults: defaults,
		logger:   logger,
	}
}

// Retrieve returns the most relevant documents for a query. When reranking is
// on (the default) it fetches twice the requested candidates and re-scores
// them with a blend of similarity, content length, freshness, and metadata
// relevance before truncating to top-k.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts Options) []*models.RetrievalResult {
	topK := opts.TopK
	if topK <= 0 {
		topK = r.defaults.TopK
	}
	rerank := !opts.NoRerank

	fetch := topK
	if rerank {
		fetch = 2 * topK
	}
	searchResults, err := r.store.Search(ctx, query, fetch, opts.Filter)
	if err != nil {
		r.logger.Error("retrieval search failed", zap.Error(err), zap.Int("top_k", topK))
		return []*models.RetrievalResult{}
	}

	results := make([]*models.RetrievalResult, 0, len(searchResults))
	for _, sr := range searchResults {
		if opts.SimilarityThreshold > 0 && sr.Similarity < opts.SimilarityThreshold {
			continue
		}
		results = append(results, &models.RetrievalResult{
			Content:    sr.Content,
			Metadata:   sr.Metadata,
			Similarity: sr.Similarity,
			DocID:      sr.ID,
		})
	}

	// Rerank only when more candidates were fetched than requested; a short
	// result set keeps its store-assigned order.
	if rerank && len(results) > topK {
		results = r.rerank(query, results)[:topK]
	}
	if len(results) > topK {
		results = results[:topK]
	}
	r.logger.Debug("retrieved documents", zap.Int("count", len(results)), zap.Int("top_k", topK))
	return results
}

// RetrieveByKeywords joins the keywords into a single query and runs the
// standard retrieval path.
func (r *Retriever) RetrieveByKeywords(ctx context.Context, keywords []string, opts Options) []*models.RetrievalResult {
	return r.Retrieve(ctx, joinKeywords(keywords), opts)
}

// RetrieveSimilarToDocument retrieves documents similar to a stored document,
// using its content as the query and excluding the document itself.
func (r *Retriever) RetrieveSimilarToDocument(ctx context.Context, docID string, opts Options) []*models.RetrievalResult {
	ref := r.store.Get(ctx, docID)
	if ref == nil {
		r.logger.Error("reference document not found", zap.String("doc_id", docID))
		return []*models.RetrievalResult{}
	}

	topK := opts.TopK
	if topK <= 0 {
		topK = r.defaults.TopK
	}
	inner := opts
	inner.TopK = topK + 1 // the reference document will match itself
	results := r.Retrieve(ctx, ref.Content, inner)

	filtered := make([]*models.RetrievalResult, 0, len(results))
	for _, res := range results {
		if res.DocID != docID {
			filtered = append(filtered, res)
		}
	}
	if len(filtered) > topK {
		filtered = filtered[:topK]
	}
	return filtered
}

// RetrieveByMetadata bypasses similarity search and returns documents matching
// the filter. Every result carries a sentinel similarity of 1.0 because no
// vector comparison occurred.
func (r *Retriever) RetrieveByMetadata(ctx context.Context, filter map[string]interface{}, topK int) []*models.RetrievalResult {
	if topK <= 0 {
		topK = r.defaults.TopK
	}
	docs := r.store.List(ctx, filter, topK)
	results := make([]*models.RetrievalResult, 0, len(docs))
	for _, doc := range docs {
		results = append(results, &models.RetrievalResult{
			Content:    doc.Content,
			Metadata:   doc.Metadata,
			Similarity: 1.0,
			DocID:      doc.ID,
		})
	}
	return results
}

func joinKeywords(keywords []string) string {
	return strings.Join(keywords, " ")
}

func sortBySimilarity(results []*models.RetrievalResult) {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Similarity > results[j].Similarity
	})
}

package retriever

import (
	"context"

	"github.com/kensaku-ai/kensaku/internal/models"
)

// HybridOptions configures a hybrid retrieval. Weights of exactly zero fall
// back to the retriever's defaults; to run a purely semantic query set
// SemanticWeight to 1 and pass no keywords.
type HybridOptions struct {
	TopK                int
	SimilarityThreshold float64
	Filter              map[string]interface{}
	Keywords            []string
	SemanticWeight      float64
	KeywordWeight       float64
}

// RetrieveHybrid runs semantic retrieval and keyword retrieval independently,
// both un-reranked, and merges them by document id with a weighted score sum.
// A document found by both paths gets the sum of its weighted scores; a
// document found by one path keeps its single weighted score.
func (r *Retriever) RetrieveHybrid(ctx context.Context, query string, opts HybridOptions) []*models.RetrievalResult {
	topK := opts.TopK
	if topK <= 0 {
		topK = r.defaults.TopK
	}
	semanticWeight := opts.SemanticWeight
	keywordWeight := opts.KeywordWeight
	if semanticWeight == 0 && keywordWeight == 0 {
		semanticWeight = r.defaults.SemanticWeight
		keywordWeight = r.defaults.KeywordWeight
	}

	base := Options{
		TopK:                topK,
		SimilarityThreshold: opts.SimilarityThreshold,
		Filter:              opts.Filter,
		NoRerank:            true,
	}
	semantic := r.Retrieve(ctx, query, base)

	var keyword []*models.RetrievalResult
	if len(opts.Keywords) > 0 {
		keyword = r.RetrieveByKeywords(ctx, opts.Keywords, base)
	}

	merged := mergeHybrid(semantic, keyword, semanticWeight, keywordWeight)
	if len(merged) > topK {
		merged = merged[:topK]
	}
	return merged
}

func mergeHybrid(semantic, keyword []*models.RetrievalResult, semanticWeight, keywordWeight float64) []*models.RetrievalResult {
	byID := make(map[string]*models.RetrievalResult, len(semantic)+len(keyword))
	order := make([]string, 0, len(semantic)+len(keyword))

	for _, res := range semantic {
		byID[res.DocID] = &models.RetrievalResult{
			Content:    res.Content,
			Metadata:   res.Metadata,
			Similarity: res.Similarity * semanticWeight,
			DocID:      res.DocID,
		}
		order = append(order, res.DocID)
	}
	for _, res := range keyword {
		if existing, ok := byID[res.DocID]; ok {
			existing.Similarity += res.Similarity * keywordWeight
			continue
		}
		byID[res.DocID] = &models.RetrievalResult{
			Content:    res.Content,
			Metadata:   res.Metadata,
			Similarity: res.Similarity * keywordWeight,
			DocID:      res.DocID,
		}
		order = append(order, res.DocID)
	}

	merged := make([]*models.RetrievalResult, 0, len(order))
	for _, id := range order {
		merged = append(merged, byID[id])
	}
	sortBySimilarity(merged)
	return merged
}

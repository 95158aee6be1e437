package retriever

import (
	"context"

	"go.uber.org/zap"

	"github.com/kensaku-ai/kensaku/internal/models"
)

// Stats summarizes a retrieval result set.
type Stats struct {
	Query              string         `json:"query,omitempty"`
	TotalResults       int            `json:"total_results"`
	AvgSimilarity      float64        `json:"avg_similarity"`
	MaxSimilarity      float64        `json:"max_similarity"`
	MinSimilarity      float64        `json:"min_similarity"`
	TotalContentLength int            `json:"total_content_length"`
	AvgContentLength   float64        `json:"avg_content_length"`
	UniqueSources      int            `json:"unique_sources"`
	Distribution       map[string]int `json:"similarity_distribution,omitempty"`
}

// RetrievalStats computes summary statistics for a result set.
func (r *Retriever) RetrievalStats(query string, results []*models.RetrievalResult) *Stats {
	if len(results) == 0 {
		return &Stats{}
	}

	stats := &Stats{
		Query:         query,
		TotalResults:  len(results),
		MaxSimilarity: results[0].Similarity,
		MinSimilarity: results[0].Similarity,
		Distribution:  map[string]int{"above_0.8": 0, "above_0.6": 0, "above_0.4": 0, "below_0.4": 0},
	}
	sources := make(map[string]struct{})
	var simSum float64
	for _, res := range results {
		simSum += res.Similarity
		if res.Similarity > stats.MaxSimilarity {
			stats.MaxSimilarity = res.Similarity
		}
		if res.Similarity < stats.MinSimilarity {
			stats.MinSimilarity = res.Similarity
		}
		stats.TotalContentLength += len(res.Content)

		if src, ok := res.Metadata["source_file"]; ok {
			sources[toString(src)] = struct{}{}
		} else if src, ok := res.Metadata["source"]; ok {
			sources[toString(src)] = struct{}{}
		}

		switch {
		case res.Similarity >= 0.8:
			stats.Distribution["above_0.8"]++
		case res.Similarity >= 0.6:
			stats.Distribution["above_0.6"]++
		case res.Similarity >= 0.4:
			stats.Distribution["above_0.4"]++
		default:
			stats.Distribution["below_0.4"]++
		}
	}
	stats.AvgSimilarity = simSum / float64(len(results))
	stats.AvgContentLength = float64(stats.TotalContentLength) / float64(len(results))
	stats.UniqueSources = len(sources)
	return stats
}

// Explanation breaks a single result's score down into its factors.
type Explanation struct {
	Query          string                 `json:"query"`
	DocID          string                 `json:"doc_id"`
	Similarity     float64                `json:"similarity"`
	ContentPreview string                 `json:"content_preview"`
	Factors        map[string]interface{} `json:"factors"`
}

// ExplainRetrieval explains why a document was retrieved by recomputing its
// base semantic similarity and metadata relevance against the query.
func (r *Retriever) ExplainRetrieval(ctx context.Context, query string, result *models.RetrievalResult) *Explanation {
	preview := result.Content
	if len(preview) > 200 {
		preview = preview[:200] + "..."
	}
	exp := &Explanation{
		Query:          query,
		DocID:          result.DocID,
		Similarity:     result.Similarity,
		ContentPreview: preview,
		Factors:        make(map[string]interface{}),
	}

	queryVec, qErr := r.embedder.Encode(ctx, query)
	contentVec, cErr := r.embedder.Encode(ctx, result.Content)
	if qErr == nil && cErr == nil {
		base := r.embedder.Similarity(queryVec, contentVec)
		exp.Factors["semantic_similarity"] = base
		exp.Factors["metadata_bonus"] = result.Similarity - base
	} else {
		r.logger.Warn("could not compute similarity factors",
			zap.NamedError("query_error", qErr), zap.NamedError("content_error", cErr))
	}

	exp.Factors["metadata_relevance"] = metadataRelevance(query, result.Metadata)
	exp.Factors["content_length"] = len(result.Content)
	if idx, ok := result.Metadata["chunk_index"]; ok {
		exp.Factors["chunk_position"] = idx
	} else {
		exp.Factors["chunk_position"] = "unknown"
	}
	return exp
}

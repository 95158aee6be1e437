package retriever

import (
	"math"
	"strings"

	"github.com/kensaku-ai/kensaku/internal/models"
)

const (
	similarityWeight = 0.6
	lengthWeight     = 0.2
	freshnessWeight  = 0.1
	metadataWeight   = 0.1

	// optimalChunkLength is the content length the length score peaks at.
	optimalChunkLength = 500
)

// rerank re-scores candidates with a fixed-weight blend of the store
// similarity, a content-length score, a freshness discount, and metadata
// relevance, then sorts descending. It never adds candidates, only reorders.
func (r *Retriever) rerank(query string, results []*models.RetrievalResult) []*models.RetrievalResult {
	for _, res := range results {
		res.Similarity = res.Similarity*similarityWeight +
			lengthScore(len(res.Content))*lengthWeight +
			freshnessScore(res.Metadata)*freshnessWeight +
			metadataRelevance(query, res.Metadata)*metadataWeight
	}
	sortBySimilarity(results)
	return results
}

// lengthScore prefers chunks near the optimal length, clamped to [0.1, 1.0].
func lengthScore(contentLength int) float64 {
	score := 1.0 - math.Abs(float64(contentLength-optimalChunkLength))/optimalChunkLength
	return math.Max(0.1, math.Min(1.0, score))
}

// freshnessScore applies a constant discount when a processing timestamp is
// present. A simplified recency proxy, not a decay function.
func freshnessScore(metadata map[string]interface{}) float64 {
	if _, ok := metadata["processed_at"]; ok {
		return 0.8
	}
	return 1.0
}

// metadataRelevance rewards query-word matches in the file name and source,
// text-like file types, and earlier chunk positions. Capped at 1.0.
func metadataRelevance(query string, metadata map[string]interface{}) float64 {
	score := 0.0
	queryWords := strings.Fields(strings.ToLower(query))

	if fileName, ok := metadata["file_name"]; ok {
		if containsAnyWord(strings.ToLower(toString(fileName)), queryWords) {
			score += 0.3
		}
	}
	if source, ok := metadata["source"]; ok {
		if containsAnyWord(strings.ToLower(toString(source)), queryWords) {
			score += 0.2
		}
	}
	if fileType, ok := metadata["file_type"]; ok {
		switch strings.ToLower(toString(fileType)) {
		case ".txt", ".md", ".markdown":
			score += 0.1
		}
	}

	// Earlier chunks usually carry the important content.
	if chunkIndex, ok := numericValue(metadata["chunk_index"]); ok {
		if totalChunks, ok := numericValue(metadata["total_chunks"]); ok && totalChunks > 1 {
			score += (1.0 - chunkIndex/totalChunks) * 0.2
		}
	}

	return math.Min(score, 1.0)
}

func containsAnyWord(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// numericValue extracts a float from the scalar types that survive metadata
// round trips (json decodes numbers as float64, gob preserves ints).
func numericValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

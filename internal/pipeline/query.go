package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/kensaku-ai/kensaku/internal/models"
	"github.com/kensaku-ai/kensaku/internal/retriever"
)

// QueryOptions are per-call overrides for Query and the generation operations.
type QueryOptions struct {
	TopK                int
	SimilarityThreshold float64
	Filter              map[string]interface{}
}

// QueryResult is the answer to a question with its retrieval context.
type QueryResult struct {
	Success            bool                     `json:"success"`
	Error              string                   `json:"error,omitempty"`
	Query              string                   `json:"query"`
	Answer             string                   `json:"answer,omitempty"`
	RetrievedDocuments int                      `json:"retrieved_documents"`
	ContextUsed        []map[string]interface{} `json:"context_used,omitempty"`
	Metadata           map[string]interface{}   `json:"metadata,omitempty"`
	RetrievalStats     *retriever.Stats         `json:"retrieval_stats,omitempty"`
}

// Query retrieves relevant chunks and generates an answer from them. An empty
// retrieval is reported as an unsuccessful result, not an error.
func (p *Pipeline) Query(ctx context.Context, question string, opts QueryOptions) *QueryResult {
	results := p.retriever.Retrieve(ctx, question, retriever.Options{
		TopK:                opts.TopK,
		SimilarityThreshold: opts.SimilarityThreshold,
		Filter:              opts.Filter,
	})
	if len(results) == 0 {
		return &QueryResult{Success: false, Error: "no relevant documents found", Query: question}
	}

	generated, err := p.generator.GenerateAnswer(ctx, question, results)
	if err != nil {
		p.logger.Error("answer generation failed", zap.Error(err))
		return &QueryResult{Success: false, Error: err.Error(), Query: question, RetrievedDocuments: len(results)}
	}
	return &QueryResult{
		Success:            true,
		Query:              question,
		Answer:             generated.Response,
		RetrievedDocuments: len(results),
		ContextUsed:        generated.ContextUsed,
		Metadata:           generated.Metadata,
		RetrievalStats:     p.retriever.RetrievalStats(question, results),
	}
}

// QuizResult is a generated quiz with its context.
type QuizResult struct {
	Success     bool                     `json:"success"`
	Error       string                   `json:"error,omitempty"`
	Topic       string                   `json:"topic"`
	Quiz        string                   `json:"quiz,omitempty"`
	ContextUsed []map[string]interface{} `json:"context_used,omitempty"`
	Metadata    map[string]interface{}   `json:"metadata,omitempty"`
}

// GenerateQuiz retrieves extra context (twice the default top-k) and generates
// quiz questions on the topic.
func (p *Pipeline) GenerateQuiz(ctx context.Context, topic string, numQuestions int, difficulty string, filter map[string]interface{}) *QuizResult {
	results := p.retriever.Retrieve(ctx, topic, retriever.Options{
		TopK:   p.topK * 2,
		Filter: filter,
	})
	if len(results) == 0 {
		return &QuizResult{Success: false, Error: "no relevant documents found for quiz generation", Topic: topic}
	}
	generated, err := p.generator.GenerateQuiz(ctx, topic, results, numQuestions, difficulty)
	if err != nil {
		p.logger.Error("quiz generation failed", zap.Error(err))
		return &QuizResult{Success: false, Error: err.Error(), Topic: topic}
	}
	return &QuizResult{
		Success:     true,
		Topic:       topic,
		Quiz:        generated.Response,
		ContextUsed: generated.ContextUsed,
		Metadata:    generated.Metadata,
	}
}

// SummaryResult is a generated summary with its context.
type SummaryResult struct {
	Success     bool                     `json:"success"`
	Error       string                   `json:"error,omitempty"`
	Query       string                   `json:"query"`
	Summary     string                   `json:"summary,omitempty"`
	ContextUsed []map[string]interface{} `json:"context_used,omitempty"`
	Metadata    map[string]interface{}   `json:"metadata,omitempty"`
}

// Summarize retrieves extra context and produces a bounded-length summary.
func (p *Pipeline) Summarize(ctx context.Context, query string, maxLength int, filter map[string]interface{}) *SummaryResult {
	results := p.retriever.Retrieve(ctx, query, retriever.Options{
		TopK:   p.topK * 2,
		Filter: filter,
	})
	if len(results) == 0 {
		return &SummaryResult{Success: false, Error: "no relevant documents found for summarization", Query: query}
	}
	generated, err := p.generator.GenerateSummary(ctx, query, results, maxLength)
	if err != nil {
		p.logger.Error("summary generation failed", zap.Error(err))
		return &SummaryResult{Success: false, Error: err.Error(), Query: query}
	}
	return &SummaryResult{
		Success:     true,
		Query:       query,
		Summary:     generated.Response,
		ContextUsed: generated.ContextUsed,
		Metadata:    generated.Metadata,
	}
}

// SimilarResult lists documents similar to a reference document.
type SimilarResult struct {
	Success          bool                      `json:"success"`
	Error            string                    `json:"error,omitempty"`
	ReferenceDocID   string                    `json:"reference_doc_id"`
	SimilarDocuments []*models.RetrievalResult `json:"similar_documents"`
	Count            int                       `json:"count"`
}

// SimilarDocuments finds documents similar to the given one, excluding itself.
func (p *Pipeline) SimilarDocuments(ctx context.Context, docID string, topK int) *SimilarResult {
	results := p.retriever.RetrieveSimilarToDocument(ctx, docID, retriever.Options{TopK: topK})
	return &SimilarResult{
		Success:          true,
		ReferenceDocID:   docID,
		SimilarDocuments: results,
		Count:            len(results),
	}
}

// Search runs raw retrieval without generation, for callers that want the
// ranked chunks themselves.
func (p *Pipeline) Search(ctx context.Context, query string, opts QueryOptions) []*models.RetrievalResult {
	return p.retriever.Retrieve(ctx, query, retriever.Options{
		TopK:                opts.TopK,
		SimilarityThreshold: opts.SimilarityThreshold,
		Filter:              opts.Filter,
	})
}

// SearchHybrid runs hybrid semantic+keyword retrieval.
func (p *Pipeline) SearchHybrid(ctx context.Context, query string, keywords []string, opts QueryOptions) []*models.RetrievalResult {
	return p.retriever.RetrieveHybrid(ctx, query, retriever.HybridOptions{
		TopK:                opts.TopK,
		SimilarityThreshold: opts.SimilarityThreshold,
		Filter:              opts.Filter,
		Keywords:            keywords,
	})
}

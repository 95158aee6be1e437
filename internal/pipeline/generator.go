package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kensaku-ai/kensaku/internal/models"
)

// GenerationResult is the output of answer, quiz, or summary generation.
type GenerationResult struct {
	Response    string                   `json:"response"`
	ContextUsed []map[string]interface{} `json:"context_used"`
	Metadata    map[string]interface{}   `json:"metadata"`
}

// Generator produces answers, quizzes, and summaries from retrieved context.
// The default implementation assembles context-only responses; an LLM-backed
// generator plugs in behind the same interface.
type Generator interface {
	GenerateAnswer(ctx context.Context, query string, results []*models.RetrievalResult) (*GenerationResult, error)
	GenerateQuiz(ctx context.Context, topic string, results []*models.RetrievalResult, numQuestions int, difficulty string) (*GenerationResult, error)
	GenerateSummary(ctx context.Context, query string, results []*models.RetrievalResult, maxLength int) (*GenerationResult, error)
}

// ContextGenerator is the built-in generator. It returns the retrieved context
// itself, formatted, so the system stays useful without a language model.
type ContextGenerator struct{}

// NewContextGenerator returns the built-in context-only generator.
func NewContextGenerator() *ContextGenerator {
	return &ContextGenerator{}
}

// GenerateAnswer formats the retrieved chunks as a sourced context answer.
func (g *ContextGenerator) GenerateAnswer(ctx context.Context, query string, results []*models.RetrievalResult) (*GenerationResult, error) {
	if len(results) == 0 {
		return nil, fmt.Errorf("no context to answer from")
	}
	var b strings.Builder
	b.WriteString("Based on the stored documents:\n\n")
	for i, res := range results {
		fmt.Fprintf(&b, "[%d] %s\n\n", i+1, strings.TrimSpace(res.Content))
	}
	return &GenerationResult{
		Response:    b.String(),
		ContextUsed: contextMetadata(results),
		Metadata: map[string]interface{}{
			"generator":    "context",
			"generated_at": time.Now().Format(time.RFC3339),
			"query":        query,
		},
	}, nil
}

// GenerateQuiz turns the retrieved chunks into fill-in style prompts, one per
// question, cycling through the context.
func (g *ContextGenerator) GenerateQuiz(ctx context.Context, topic string, results []*models.RetrievalResult, numQuestions int, difficulty string) (*GenerationResult, error) {
	if len(results) == 0 {
		return nil, fmt.Errorf("no context for quiz generation")
	}
	if numQuestions <= 0 {
		numQuestions = 5
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Quiz on %q (%s):\n\n", topic, difficulty)
	for i := 0; i < numQuestions; i++ {
		res := results[i%len(results)]
		sentence := firstSentence(res.Content)
		fmt.Fprintf(&b, "%d. Explain the following statement in your own words:\n   %q\n\n", i+1, sentence)
	}
	return &GenerationResult{
		Response:    b.String(),
		ContextUsed: contextMetadata(results),
		Metadata: map[string]interface{}{
			"generator":     "context",
			"generated_at":  time.Now().Format(time.RFC3339),
			"topic":         topic,
			"num_questions": numQuestions,
			"difficulty":    difficulty,
		},
	}, nil
}

// GenerateSummary concatenates leading sentences from each chunk up to
// maxLength characters.
func (g *ContextGenerator) GenerateSummary(ctx context.Context, query string, results []*models.RetrievalResult, maxLength int) (*GenerationResult, error) {
	if len(results) == 0 {
		return nil, fmt.Errorf("no context for summarization")
	}
	if maxLength <= 0 {
		maxLength = 500
	}
	var b strings.Builder
	for _, res := range results {
		sentence := firstSentence(res.Content)
		if b.Len()+len(sentence)+1 > maxLength {
			break
		}
		b.WriteString(sentence)
		b.WriteString(" ")
	}
	summary := strings.TrimSpace(b.String())
	if summary == "" {
		summary = truncate(firstSentence(results[0].Content), maxLength)
	}
	return &GenerationResult{
		Response:    summary,
		ContextUsed: contextMetadata(results),
		Metadata: map[string]interface{}{
			"generator":    "context",
			"generated_at": time.Now().Format(time.RFC3339),
			"query":        query,
			"max_length":   maxLength,
		},
	}, nil
}

func contextMetadata(results []*models.RetrievalResult) []map[string]interface{} {
	used := make([]map[string]interface{}, len(results))
	for i, res := range results {
		used[i] = map[string]interface{}{
			"doc_id":     res.DocID,
			"similarity": res.Similarity,
			"metadata":   res.Metadata,
		}
	}
	return used
}

func firstSentence(text string) string {
	text = strings.TrimSpace(text)
	for i, r := range text {
		if r == '.' || r == '!' || r == '?' {
			return text[:i+1]
		}
	}
	return truncate(text, 200)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

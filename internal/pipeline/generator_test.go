package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/kensaku-ai/kensaku/internal/models"
)

func contextResults(contents ...string) []*models.RetrievalResult {
	results := make([]*models.RetrievalResult, len(contents))
	for i, content := range contents {
		results[i] = &models.RetrievalResult{
			DocID:      "doc-" + string(rune('a'+i)),
			Content:    content,
			Similarity: 0.9 - float64(i)*0.1,
			Metadata:   map[string]interface{}{"source": "test"},
		}
	}
	return results
}

func TestContextGenerator_Answer(t *testing.T) {
	g := NewContextGenerator()
	ctx := context.Background()
	results := contextResults("Paris is the capital of France.", "France is in Europe.")

	out, err := g.GenerateAnswer(ctx, "capital of France", results)
	if err != nil {
		t.Fatalf("GenerateAnswer: %v", err)
	}
	if !strings.Contains(out.Response, "[1]") || !strings.Contains(out.Response, "Paris") {
		t.Errorf("response = %q", out.Response)
	}
	if len(out.ContextUsed) != 2 {
		t.Errorf("ContextUsed = %d entries", len(out.ContextUsed))
	}
	if out.ContextUsed[0]["doc_id"] != "doc-a" {
		t.Errorf("context entry = %v", out.ContextUsed[0])
	}
}

func TestContextGenerator_AnswerNoContext(t *testing.T) {
	g := NewContextGenerator()
	if _, err := g.GenerateAnswer(context.Background(), "anything", nil); err == nil {
		t.Error("expected error for empty context")
	}
}

func TestContextGenerator_Quiz(t *testing.T) {
	g := NewContextGenerator()
	ctx := context.Background()
	results := contextResults("Water boils at 100 degrees Celsius.", "Ice melts at 0 degrees.")

	out, err := g.GenerateQuiz(ctx, "thermodynamics", results, 3, "easy")
	if err != nil {
		t.Fatalf("GenerateQuiz: %v", err)
	}
	// Three questions, cycling over two context chunks.
	if n := strings.Count(out.Response, "Explain the following statement"); n != 3 {
		t.Errorf("question count = %d, want 3", n)
	}
	if out.Metadata["difficulty"] != "easy" {
		t.Errorf("metadata = %v", out.Metadata)
	}
}

func TestContextGenerator_Summary(t *testing.T) {
	g := NewContextGenerator()
	ctx := context.Background()
	results := contextResults(
		"The first sentence of the first chunk. Trailing detail that should not appear.",
		"The lone sentence of the second chunk.",
	)

	out, err := g.GenerateSummary(ctx, "overview", results, 200)
	if err != nil {
		t.Fatalf("GenerateSummary: %v", err)
	}
	if len(out.Response) > 200 {
		t.Errorf("summary length %d exceeds limit", len(out.Response))
	}
	if !strings.Contains(out.Response, "The first sentence of the first chunk.") {
		t.Errorf("summary = %q", out.Response)
	}
	if strings.Contains(out.Response, "Trailing detail") {
		t.Errorf("summary includes text past the first sentence: %q", out.Response)
	}
}

func TestContextGenerator_SummaryRespectsMaxLength(t *testing.T) {
	g := NewContextGenerator()
	long := strings.Repeat("word ", 100) + "."
	out, err := g.GenerateSummary(context.Background(), "q", contextResults(long), 50)
	if err != nil {
		t.Fatalf("GenerateSummary: %v", err)
	}
	if len(out.Response) > 50 {
		t.Errorf("summary length %d exceeds 50", len(out.Response))
	}
}

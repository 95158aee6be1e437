package retriever

import (
	"context"
	"testing"
)

func TestRetrieveHybrid_SemanticOnlyMatchesPureSemantic(t *testing.T) {
	r, store := newTestRetriever(t)
	addCapitals(t, store)
	ctx := context.Background()

	semantic := r.Retrieve(ctx, "capital of France", Options{TopK: 3, NoRerank: true})
	hybrid := r.RetrieveHybrid(ctx, "capital of France", HybridOptions{
		TopK:           3,
		SemanticWeight: 1.0,
		KeywordWeight:  0.0,
	})

	if len(hybrid) != len(semantic) {
		t.Fatalf("hybrid returned %d results, semantic returned %d", len(hybrid), len(semantic))
	}
	for i := range semantic {
		if hybrid[i].DocID != semantic[i].DocID {
			t.Errorf("rank %d: hybrid=%s, semantic=%s", i, hybrid[i].DocID, semantic[i].DocID)
		}
	}
}

func TestRetrieveHybrid_CombinesScores(t *testing.T) {
	r, store := newTestRetriever(t)
	addCapitals(t, store)
	ctx := context.Background()

	results := r.RetrieveHybrid(ctx, "capital of France", HybridOptions{
		TopK:     3,
		Keywords: []string{"Paris", "France"},
	})
	if len(results) == 0 {
		t.Fatal("expected results")
	}
	if results[0].DocID != "paris" {
		t.Errorf("top hybrid result = %s, want paris", results[0].DocID)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Similarity > results[i-1].Similarity {
			t.Errorf("hybrid results not sorted at rank %d", i)
		}
	}
}

func TestRetrieveHybrid_TruncatesToTopK(t *testing.T) {
	r, store := newTestRetriever(t)
	addCapitals(t, store)

	results := r.RetrieveHybrid(context.Background(), "capital programming language", HybridOptions{
		TopK:     1,
		Keywords: []string{"Python", "Berlin"},
	})
	if len(results) > 1 {
		t.Errorf("got %d results, want at most 1", len(results))
	}
}

func TestMergeHybrid_DocumentInBothPaths(t *testing.T) {
	semantic := resultList("a", 0.9, "b", 0.5)
	keyword := resultList("a", 0.6, "c", 0.8)

	merged := mergeHybrid(semantic, keyword, 0.7, 0.3)
	scores := make(map[string]float64)
	for _, res := range merged {
		scores[res.DocID] = res.Similarity
	}

	if got, want := scores["a"], 0.9*0.7+0.6*0.3; !almostEqual(got, want) {
		t.Errorf("a score = %f, want %f", got, want)
	}
	if got, want := scores["b"], 0.5*0.7; !almostEqual(got, want) {
		t.Errorf("b score = %f, want %f", got, want)
	}
	if got, want := scores["c"], 0.8*0.3; !almostEqual(got, want) {
		t.Errorf("c score = %f, want %f", got, want)
	}
	if merged[0].DocID != "a" {
		t.Errorf("top merged = %s, want a", merged[0].DocID)
	}
}

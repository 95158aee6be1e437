package vector

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/kensaku-ai/kensaku/internal/embedding"
	"github.com/kensaku-ai/kensaku/internal/models"
)

func newTestService(t *testing.T) *embedding.Service {
	t.Helper()
	svc, err := embedding.NewService(embedding.NewMockEmbedder(64), embedding.ServiceOptions{
		ModelName:    "mock",
		CacheEnabled: false,
	}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return svc
}

func newTestFlatStore(t *testing.T, dir string) *FlatStore {
	t.Helper()
	store, err := NewFlatStore(dir, 0.1, newTestService(t), zap.NewNop())
	if err != nil {
		t.Fatalf("NewFlatStore: %v", err)
	}
	return store
}

func TestFlatStore_AddAndSearch(t *testing.T) {
	store := newTestFlatStore(t, t.TempDir())
	defer store.Close()
	ctx := context.Background()

	docs := []*models.Document{
		models.NewDocument("the quick brown fox jumps over the lazy dog", nil, "fox"),
		models.NewDocument("database indexing performance tuning guide", nil, "db"),
	}
	ids, err := store.Add(ctx, docs)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(ids) != 2 || ids[0] != "fox" || ids[1] != "db" {
		t.Fatalf("ids=%v, want [fox db]", ids)
	}

	results, err := store.Search(ctx, "quick brown fox", 2, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one result")
	}
	if results[0].ID != "fox" {
		t.Errorf("top result = %s, want fox", results[0].ID)
	}
	for i := 1; i < len(results); i++ {
		if results[i].Similarity > results[i-1].Similarity {
			t.Errorf("results not sorted: %f > %f", results[i].Similarity, results[i-1].Similarity)
		}
	}
}

func TestFlatStore_ReAddSameIDTombstonesOldRow(t *testing.T) {
	store := newTestFlatStore(t, t.TempDir())
	defer store.Close()
	ctx := context.Background()

	if _, err := store.Add(ctx, []*models.Document{
		models.NewDocument("the capital of France is Paris", nil, "doc-1"),
	}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if _, err := store.Add(ctx, []*models.Document{
		models.NewDocument("the capital of France is Paris, on the Seine", nil, "doc-1"),
	}); err != nil {
		t.Fatalf("re-Add: %v", err)
	}

	if got := store.Count(ctx, nil); got != 1 {
		t.Fatalf("Count=%d, want 1", got)
	}
	results, err := store.Search(ctx, "capital of France", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	seen := 0
	for _, r := range results {
		if r.ID == "doc-1" {
			seen++
			if r.Content != "the capital of France is Paris, on the Seine" {
				t.Errorf("stale content returned: %q", r.Content)
			}
		}
	}
	if seen != 1 {
		t.Errorf("doc-1 appeared %d times in one search, want 1", seen)
	}
}

func TestFlatStore_VectorsAreNormalized(t *testing.T) {
	store := newTestFlatStore(t, t.TempDir())
	defer store.Close()

	_, err := store.Add(context.Background(), []*models.Document{
		models.NewDocument("some content for normalization", nil, "a"),
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	for _, vec := range store.vectors {
		norm := L2Norm(vec)
		if math.Abs(norm-1.0) > 1e-5 {
			t.Errorf("stored vector norm = %f, want 1.0", norm)
		}
	}
}

func TestFlatStore_DeleteTombstones(t *testing.T) {
	store := newTestFlatStore(t, t.TempDir())
	defer store.Close()
	ctx := context.Background()

	_, err := store.Add(ctx, []*models.Document{
		models.NewDocument("alpha content here", nil, "a"),
		models.NewDocument("beta content here", nil, "b"),
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	if !store.Delete(ctx, "a") {
		t.Fatal("Delete(a) = false, want true")
	}
	if store.Delete(ctx, "a") {
		t.Error("second Delete(a) = true, want false")
	}
	if store.Delete(ctx, "missing") {
		t.Error("Delete(missing) = true, want false")
	}

	if doc := store.Get(ctx, "a"); doc != nil {
		t.Error("Get(a) returned document after delete")
	}
	if got := store.Count(ctx, nil); got != 1 {
		t.Errorf("Count=%d, want 1", got)
	}

	// The arena row stays until Compact.
	info := store.Info(ctx)
	if info.IndexSize != 2 {
		t.Errorf("IndexSize=%d, want 2 (tombstone retained)", info.IndexSize)
	}
	if info.DocumentCount != 1 {
		t.Errorf("DocumentCount=%d, want 1", info.DocumentCount)
	}

	results, err := store.Search(ctx, "alpha content here", 5, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range results {
		if r.ID == "a" {
			t.Error("deleted document returned by Search")
		}
	}
}

func TestFlatStore_Compact(t *testing.T) {
	store := newTestFlatStore(t, t.TempDir())
	defer store.Close()
	ctx := context.Background()

	_, err := store.Add(ctx, []*models.Document{
		models.NewDocument("first document text", nil, "a"),
		models.NewDocument("second document text", nil, "b"),
		models.NewDocument("third document text", nil, "c"),
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	store.Delete(ctx, "b")

	if err := store.Compact(ctx); err != nil {
		t.Fatalf("Compact: %v", err)
	}
	info := store.Info(ctx)
	if info.IndexSize != 2 {
		t.Errorf("IndexSize=%d after compact, want 2", info.IndexSize)
	}
	if info.DocumentCount != 2 {
		t.Errorf("DocumentCount=%d after compact, want 2", info.DocumentCount)
	}

	results, err := store.Search(ctx, "third document text", 3, nil)
	if err != nil {
		t.Fatalf("Search after compact: %v", err)
	}
	if len(results) == 0 || results[0].ID != "c" {
		t.Errorf("Search after compact: top = %v, want c", results)
	}
}

func TestFlatStore_Filter(t *testing.T) {
	store := newTestFlatStore(t, t.TempDir())
	defer store.Close()
	ctx := context.Background()

	_, err := store.Add(ctx, []*models.Document{
		models.NewDocument("report about quarterly sales", map[string]interface{}{"source": "crm"}, "r1"),
		models.NewDocument("report about quarterly sales figures", map[string]interface{}{"source": "wiki"}, "r2"),
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	results, err := store.Search(ctx, "quarterly sales report", 5, map[string]interface{}{"source": "wiki"})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range results {
		if r.Metadata["source"] != "wiki" {
			t.Errorf("filter leaked document %s with source=%v", r.ID, r.Metadata["source"])
		}
	}

	if got := store.Count(ctx, map[string]interface{}{"source": "crm"}); got != 1 {
		t.Errorf("Count(source=crm)=%d, want 1", got)
	}
	docs := store.List(ctx, map[string]interface{}{"source": "crm"}, 0)
	if len(docs) != 1 || docs[0].ID != "r1" {
		t.Errorf("List(source=crm)=%v, want [r1]", docs)
	}
}

func TestFlatStore_ThresholdCapped(t *testing.T) {
	// Even with a high configured threshold, the flat store caps the cutoff at
	// 0.1 because its inner-product scores sit on a different scale.
	svc := newTestService(t)
	store, err := NewFlatStore(t.TempDir(), 0.9, svc, zap.NewNop())
	if err != nil {
		t.Fatalf("NewFlatStore: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	_, err = store.Add(ctx, []*models.Document{
		models.NewDocument("machine learning model training", nil, "ml"),
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	results, err := store.Search(ctx, "machine learning model training", 1, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("exact-match query returned %d results, want 1", len(results))
	}
}

func TestFlatStore_Update(t *testing.T) {
	store := newTestFlatStore(t, t.TempDir())
	defer store.Close()
	ctx := context.Background()

	doc := models.NewDocument("original content about cats", nil, "u1")
	if _, err := store.Add(ctx, []*models.Document{doc}); err != nil {
		t.Fatalf("Add: %v", err)
	}

	updated := models.NewDocument("revised content about distributed systems", nil, "u1")
	if err := store.Update(ctx, updated); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got := store.Get(ctx, "u1")
	if got == nil || got.Content != updated.Content {
		t.Fatalf("Get after update = %+v, want revised content", got)
	}
	// The old row becomes a tombstone.
	if info := store.Info(ctx); info.IndexSize != 2 || info.DocumentCount != 1 {
		t.Errorf("Info after update = %+v, want IndexSize=2 DocumentCount=1", info)
	}

	results, err := store.Search(ctx, "distributed systems", 1, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "u1" {
		t.Errorf("Search after update = %v, want u1", results)
	}

	if err := store.Update(ctx, models.NewDocument("x", nil, "missing")); err == nil {
		t.Error("Update of missing document succeeded, want error")
	}
}

func TestFlatStore_PersistenceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	store := newTestFlatStore(t, dir)
	_, err := store.Add(ctx, []*models.Document{
		models.NewDocument("persisted document one", map[string]interface{}{"source": "disk"}, "p1"),
		models.NewDocument("persisted document two", nil, "p2"),
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	store.Delete(ctx, "p2")
	store.Close()

	reopened := newTestFlatStore(t, dir)
	defer reopened.Close()
	if got := reopened.Count(ctx, nil); got != 1 {
		t.Fatalf("Count after reload=%d, want 1", got)
	}
	doc := reopened.Get(ctx, "p1")
	if doc == nil || doc.Metadata["source"] != "disk" {
		t.Fatalf("Get(p1) after reload = %+v", doc)
	}
	results, err := reopened.Search(ctx, "persisted document one", 2, nil)
	if err != nil {
		t.Fatalf("Search after reload: %v", err)
	}
	if len(results) == 0 || results[0].ID != "p1" {
		t.Errorf("Search after reload = %v, want p1 first", results)
	}
}

func TestFlatStore_CorruptFilesStartFresh(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "vectors.bin"), []byte("not a real index"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "metadata.gob"), []byte("garbage"), 0644); err != nil {
		t.Fatal(err)
	}

	store := newTestFlatStore(t, dir)
	defer store.Close()
	ctx := context.Background()
	if got := store.Count(ctx, nil); got != 0 {
		t.Errorf("Count=%d from corrupt files, want 0", got)
	}

	// The fresh index must be writable.
	if _, err := store.Add(ctx, []*models.Document{models.NewDocument("recovered", nil, "r")}); err != nil {
		t.Fatalf("Add after recovery: %v", err)
	}
}

func TestFlatStore_Clear(t *testing.T) {
	store := newTestFlatStore(t, t.TempDir())
	defer store.Close()
	ctx := context.Background()

	if _, err := store.Add(ctx, []*models.Document{models.NewDocument("to be cleared", nil, "x")}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if !store.Clear(ctx) {
		t.Fatal("Clear returned false")
	}
	if got := store.Count(ctx, nil); got != 0 {
		t.Errorf("Count after clear=%d, want 0", got)
	}
	if info := store.Info(ctx); info.IndexSize != 0 {
		t.Errorf("IndexSize after clear=%d, want 0", info.IndexSize)
	}
}

func TestFlatStore_DeleteMany(t *testing.T) {
	store := newTestFlatStore(t, t.TempDir())
	defer store.Close()
	ctx := context.Background()

	_, err := store.Add(ctx, []*models.Document{
		models.NewDocument("one", nil, "1"),
		models.NewDocument("two", nil, "2"),
		models.NewDocument("three", nil, "3"),
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got := store.DeleteMany(ctx, []string{"1", "3", "missing"}); got != 2 {
		t.Errorf("DeleteMany=%d, want 2", got)
	}
	if got := store.Count(ctx, nil); got != 1 {
		t.Errorf("Count=%d, want 1", got)
	}
}

func TestFlatStore_SearchEmptyIndex(t *testing.T) {
	store := newTestFlatStore(t, t.TempDir())
	defer store.Close()

	results, err := store.Search(context.Background(), "anything", 5, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results from empty index", len(results))
	}
}

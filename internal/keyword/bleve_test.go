package keyword

import (
	"context"
	"path/filepath"
	"testing"
)

func newTestIndex(t *testing.T) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex(filepath.Join(t.TempDir(), "keyword.bleve"))
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func TestBleveIndex_IndexAndSearch(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	if err := idx.Index(ctx, "c1", "kubernetes deployment rollout strategy", "infra.md"); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if err := idx.Index(ctx, "c2", "recipe for sourdough bread", "cooking.md"); err != nil {
		t.Fatalf("Index: %v", err)
	}

	results, err := idx.Search(ctx, "kubernetes rollout", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one hit")
	}
	if results[0].ID != "c1" {
		t.Errorf("top hit = %s, want c1", results[0].ID)
	}
	if results[0].Content != "kubernetes deployment rollout strategy" {
		t.Errorf("stored content not returned: %q", results[0].Content)
	}
	if results[0].Source != "infra.md" {
		t.Errorf("stored source not returned: %q", results[0].Source)
	}
}

func TestBleveIndex_SourceFieldSearchable(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	if err := idx.Index(ctx, "c1", "unrelated text", "quarterly_report.txt"); err != nil {
		t.Fatalf("Index: %v", err)
	}
	results, err := idx.Search(ctx, "quarterly", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].ID != "c1" {
		t.Errorf("search by source = %v, want [c1]", results)
	}
}

func TestBleveIndex_Delete(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	if err := idx.Index(ctx, "c1", "ephemeral content", "tmp.txt"); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if err := idx.Delete(ctx, "c1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	results, err := idx.Search(ctx, "ephemeral", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("deleted chunk still returned: %v", results)
	}
	count, err := idx.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Errorf("Count=%d, want 0", count)
	}
}

func TestBleveIndex_ReopenExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keyword.bleve")
	ctx := context.Background()

	idx, err := NewBleveIndex(path)
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	if err := idx.Index(ctx, "c1", "persisted keyword entry", "a.txt"); err != nil {
		t.Fatalf("Index: %v", err)
	}
	idx.Close()

	reopened, err := NewBleveIndex(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	results, err := reopened.Search(ctx, "persisted", 10)
	if err != nil {
		t.Fatalf("Search after reopen: %v", err)
	}
	if len(results) != 1 || results[0].ID != "c1" {
		t.Errorf("reopened search = %v, want [c1]", results)
	}
}

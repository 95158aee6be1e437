package models

import (
	"testing"
)

func TestNewDocument_GeneratesID(t *testing.T) {
	doc := NewDocument("hello", nil, "")
	if doc.ID == "" {
		t.Fatal("expected generated ID")
	}
	other := NewDocument("hello", nil, "")
	if doc.ID == other.ID {
		t.Error("expected unique IDs")
	}
}

func TestNewDocument_SystemMetadata(t *testing.T) {
	doc := NewDocument("hello", nil, "doc-1")
	if doc.ID != "doc-1" {
		t.Errorf("ID = %q, want doc-1", doc.ID)
	}
	if doc.Metadata["content_length"] != 5 {
		t.Errorf("content_length = %v, want 5", doc.Metadata["content_length"])
	}
	if _, ok := doc.Metadata["created_at"]; !ok {
		t.Error("expected created_at in metadata")
	}
}

func TestNewDocument_CallerKeysOverrideSystemKeys(t *testing.T) {
	doc := NewDocument("hello", map[string]interface{}{
		"content_length": 999,
		"source":         "notes.txt",
	}, "")
	// Caller-supplied keys win on collision with system keys.
	if doc.Metadata["content_length"] != 999 {
		t.Errorf("content_length = %v, want caller value 999", doc.Metadata["content_length"])
	}
	if doc.Metadata["source"] != "notes.txt" {
		t.Errorf("source = %v", doc.Metadata["source"])
	}
}

func TestDocument_MatchesFilter_NestedMetadata(t *testing.T) {
	nested := map[string]interface{}{"lang": "fr", "tags": []interface{}{"a", "b"}}
	doc := NewDocument("x", map[string]interface{}{"extra": nested}, "")
	if !doc.MatchesFilter(map[string]interface{}{"extra": map[string]interface{}{"lang": "fr", "tags": []interface{}{"a", "b"}}}) {
		t.Error("equal nested metadata should match")
	}
	if doc.MatchesFilter(map[string]interface{}{"extra": map[string]interface{}{"lang": "de"}}) {
		t.Error("different nested metadata should not match")
	}
}

func TestDocument_MatchesFilter(t *testing.T) {
	doc := NewDocument("x", map[string]interface{}{"topic": "go", "level": 2}, "")
	tests := []struct {
		name   string
		filter map[string]interface{}
		want   bool
	}{
		{"nil filter", nil, true},
		{"empty filter", map[string]interface{}{}, true},
		{"single match", map[string]interface{}{"topic": "go"}, true},
		{"conjunction match", map[string]interface{}{"topic": "go", "level": 2}, true},
		{"value mismatch", map[string]interface{}{"topic": "rust"}, false},
		{"missing key", map[string]interface{}{"absent": 1}, false},
		{"partial conjunction", map[string]interface{}{"topic": "go", "level": 3}, false},
		{"uncomparable filter value", map[string]interface{}{"topic": map[string]interface{}{"nested": true}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := doc.MatchesFilter(tt.filter); got != tt.want {
				t.Errorf("MatchesFilter(%v) = %v, want %v", tt.filter, got, tt.want)
			}
		})
	}
}

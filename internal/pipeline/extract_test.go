package pipeline

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPlainTextExtractor_Extract(t *testing.T) {
	e := NewPlainTextExtractor(0)
	path := filepath.Join(t.TempDir(), "notes.txt")
	content := "plain text body"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	text, metadata, err := e.Extract(path)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if text != content {
		t.Errorf("text = %q", text)
	}
	if metadata["text_length"] != len(content) {
		t.Errorf("metadata = %v", metadata)
	}
}

func TestPlainTextExtractor_Supports(t *testing.T) {
	e := NewPlainTextExtractor(0)
	for _, ext := range []string{".txt", ".md", ".markdown", ".TXT", ".MD"} {
		if !e.Supports(ext) {
			t.Errorf("Supports(%q) = false", ext)
		}
	}
	for _, ext := range []string{".pdf", ".docx", ".png", ""} {
		if e.Supports(ext) {
			t.Errorf("Supports(%q) = true", ext)
		}
	}
}

func TestPlainTextExtractor_RejectsOversized(t *testing.T) {
	e := NewPlainTextExtractor(10)
	path := filepath.Join(t.TempDir(), "big.txt")
	if err := os.WriteFile(path, []byte(strings.Repeat("x", 11)), 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := e.Extract(path); err == nil {
		t.Error("expected size limit error")
	}
}

func TestPlainTextExtractor_RejectsInvalidUTF8(t *testing.T) {
	e := NewPlainTextExtractor(0)
	path := filepath.Join(t.TempDir(), "bad.txt")
	if err := os.WriteFile(path, []byte{0xff, 0xfe, 0xfd}, 0644); err != nil {
		t.Fatal(err)
	}
	if _, _, err := e.Extract(path); err == nil {
		t.Error("expected UTF-8 validation error")
	}
}

func TestPlainTextExtractor_MissingFile(t *testing.T) {
	e := NewPlainTextExtractor(0)
	if _, _, err := e.Extract(filepath.Join(t.TempDir(), "absent.md")); err == nil {
		t.Error("expected error for missing file")
	}
}

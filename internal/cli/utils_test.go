package cli

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/kensaku-ai/kensaku/internal/models"
)

func sampleResults() []*models.RetrievalResult {
	return []*models.RetrievalResult{
		{
			DocID:      "abc_chunk_0",
			Content:    "Paris is the capital of France.",
			Similarity: 0.92,
			Metadata:   map[string]interface{}{"source": "geo"},
		},
		{
			DocID:      "def_chunk_1",
			Content:    strings.Repeat("long ", 100),
			Similarity: 0.41,
			Metadata:   map[string]interface{}{"file_name": "notes.md"},
		},
	}
}

func TestWriteResults_Text(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResults(&buf, sampleResults(), OutputText); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "Found 2 result(s)") {
		t.Errorf("missing header: %s", out)
	}
	if !strings.Contains(out, "abc_chunk_0") || !strings.Contains(out, "Similarity: 0.9200") {
		t.Errorf("missing result fields: %s", out)
	}
	if !strings.Contains(out, "Source: geo") || !strings.Contains(out, "Source: notes.md") {
		t.Errorf("missing source labels: %s", out)
	}
	// Long content is truncated for display.
	if !strings.Contains(out, "...") {
		t.Errorf("long content not truncated: %s", out)
	}
}

func TestWriteResults_JSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteResults(&buf, sampleResults(), OutputJSON); err != nil {
		t.Fatal(err)
	}
	var decoded []*models.RetrievalResult
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}
	if len(decoded) != 2 || decoded[0].DocID != "abc_chunk_0" {
		t.Errorf("decoded = %+v", decoded)
	}
}

func TestParseOutputFormat(t *testing.T) {
	if f, err := ParseOutputFormat("json"); err != nil || f != OutputJSON {
		t.Errorf("json: %v, %v", f, err)
	}
	if f, err := ParseOutputFormat(""); err != nil || f != OutputText {
		t.Errorf("empty: %v, %v", f, err)
	}
	if _, err := ParseOutputFormat("yaml"); err == nil {
		t.Error("expected error for unknown format")
	}
}

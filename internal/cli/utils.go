// Package cli provides CLI output helpers for Kensaku.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/kensaku-ai/kensaku/internal/models"
	"github.com/kensaku-ai/kensaku/pkg/utils"
)

// OutputFormat is the format for result output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat maps a flag value to an OutputFormat.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch s {
	case "json":
		return OutputJSON, nil
	case "text", "":
		return OutputText, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text or json", s)
	}
}

// WriteResults writes retrieval results to w in the given format.
func WriteResults(w io.Writer, results []*models.RetrievalResult, format OutputFormat) error {
	if format == OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	}
	fmt.Fprintf(w, "\nFound %d result(s)\n\n", len(results))
	for i, result := range results {
		writeOneResult(w, i+1, result)
	}
	return nil
}

func writeOneResult(w io.Writer, rank int, result *models.RetrievalResult) {
	fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
	fmt.Fprintf(w, "Rank: %d | Similarity: %.4f\n", rank, result.Similarity)
	fmt.Fprintf(w, "ID: %s\n", result.DocID)
	if source := sourceLabel(result.Metadata); source != "" {
		fmt.Fprintf(w, "Source: %s\n", source)
	}
	fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(result.Content, 200))
}

func sourceLabel(metadata map[string]interface{}) string {
	for _, key := range []string{"source_file", "file_name", "source"} {
		if v, ok := metadata[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// WriteJSON writes any payload as indented JSON, for --output json modes.
func WriteJSON(w io.Writer, payload interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(payload)
}

// PrintResults prints retrieval results to stdout in text format.
func PrintResults(results []*models.RetrievalResult) {
	_ = WriteResults(os.Stdout, results, OutputText)
}

package e2e

import (
	"strings"
	"testing"

	"github.com/kensaku-ai/kensaku/internal/extract"
)

func TestFixtureBytes_AllTypesExtractable(t *testing.T) {
	e := extract.NewDocumentExtractor(0)
	const sample = "searchable fixture content"
	for _, ext := range FixtureExtensions {
		t.Run(ext, func(t *testing.T) {
			if !e.Supports(ext) {
				t.Fatalf("extractor does not support %s", ext)
			}
			content, err := FixtureBytes(ext, sample)
			if err != nil {
				t.Fatalf("FixtureBytes: %v", err)
			}
			if len(content) == 0 {
				t.Fatal("empty fixture")
			}
			got, err := e.ExtractBytes(content, ext)
			if err != nil {
				t.Fatalf("ExtractBytes: %v", err)
			}
			if !strings.Contains(got, sample) {
				t.Errorf("extracted %q, want it to contain %q", got, sample)
			}
		})
	}
}

func TestFixtureBytes_UnknownExtension(t *testing.T) {
	if _, err := FixtureBytes(".wav", "x"); err == nil {
		t.Fatal("expected error for unknown extension")
	}
}

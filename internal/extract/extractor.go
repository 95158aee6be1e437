// Package extract provides text extraction from document formats for ingestion.
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const defaultMaxFileSize = 50 << 20

// handler extracts text from raw file bytes.
type handler func(content []byte) (string, error)

// supportedFormats maps extensions to their extraction functions, in the order
// reported by SupportedTypes.
var supportedFormats = []struct {
	ext     string
	extract handler
}{
	{".txt", extractPlain},
	{".md", extractPlain},
	{".markdown", extractPlain},
	{".rst", extractPlain},
	{".pdf", extractPDF},
	{".docx", extractDOCX},
	{".odt", extractODT},
	{".xlsx", extractExcel},
	{".pptx", extractPPTX},
	{".odp", extractODP},
	{".ods", extractODS},
}

// DocumentExtractor pulls plain text and extraction metadata out of document
// files for the ingestion pipeline. Plain text formats are returned as-is
// (UTF-8 repaired); PDF, Office, and OpenDocument formats are parsed.
type DocumentExtractor struct {
	maxFileSize int64
}

// NewDocumentExtractor creates an extractor with the given size limit in
// bytes (0 = 50MB default).
func NewDocumentExtractor(maxFileSize int64) *DocumentExtractor {
	if maxFileSize <= 0 {
		maxFileSize = defaultMaxFileSize
	}
	return &DocumentExtractor{maxFileSize: maxFileSize}
}

// Supports reports whether the extension can be extracted.
func (e *DocumentExtractor) Supports(ext string) bool {
	return lookupHandler(ext) != nil
}

// SupportedTypes returns the handled extensions.
func (e *DocumentExtractor) SupportedTypes() []string {
	types := make([]string, len(supportedFormats))
	for i, f := range supportedFormats {
		types[i] = f.ext
	}
	return types
}

// Extract reads the file and returns its text with extraction metadata.
func (e *DocumentExtractor) Extract(path string) (string, map[string]interface{}, error) {
	ext := strings.ToLower(filepath.Ext(path))
	extract := lookupHandler(ext)
	if extract == nil {
		return "", nil, fmt.Errorf("unsupported file type: %s", ext)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", nil, err
	}
	if info.Size() > e.maxFileSize {
		return "", nil, fmt.Errorf("file too large: %d bytes (max %d)", info.Size(), e.maxFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return "", nil, fmt.Errorf("read file: %w", err)
	}
	text, err := extract(content)
	if err != nil {
		return "", nil, err
	}
	metadata := map[string]interface{}{
		"text_length": len(text),
	}
	return text, metadata, nil
}

// ExtractBytes extracts text from content based on the given extension.
// ext should include the leading dot (e.g. ".pdf").
func (e *DocumentExtractor) ExtractBytes(content []byte, ext string) (string, error) {
	extract := lookupHandler(strings.ToLower(ext))
	if extract == nil {
		return "", fmt.Errorf("unsupported file type: %s", ext)
	}
	return extract(content)
}

func lookupHandler(ext string) handler {
	ext = strings.ToLower(ext)
	for _, f := range supportedFormats {
		if f.ext == ext {
			return f.extract
		}
	}
	return nil
}

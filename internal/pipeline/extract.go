package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"
)

// Extractor pulls plain text out of a file. Rich formats (PDF, office
// documents) are handled by external extractors plugged in here; the pipeline
// itself only needs the text and any extraction metadata back.
type Extractor interface {
	Extract(path string) (text string, metadata map[string]interface{}, err error)
	Supports(ext string) bool
	SupportedTypes() []string
}

// PlainTextExtractor reads .txt, .md and .markdown files as-is.
type PlainTextExtractor struct {
	maxFileSize int64
}

// NewPlainTextExtractor creates an extractor with the given size limit in
// bytes (0 = 10MB default).
func NewPlainTextExtractor(maxFileSize int64) *PlainTextExtractor {
	if maxFileSize <= 0 {
		maxFileSize = 10 << 20
	}
	return &PlainTextExtractor{maxFileSize: maxFileSize}
}

var plainTextExtensions = []string{".txt", ".md", ".markdown"}

// Supports reports whether the extension can be extracted.
func (e *PlainTextExtractor) Supports(ext string) bool {
	ext = strings.ToLower(ext)
	for _, supported := range plainTextExtensions {
		if ext == supported {
			return true
		}
	}
	return false
}

// SupportedTypes returns the handled extensions.
func (e *PlainTextExtractor) SupportedTypes() []string {
	return append([]string(nil), plainTextExtensions...)
}

// Extract reads the file and returns its text with extraction metadata.
func (e *PlainTextExtractor) Extract(path string) (string, map[string]interface{}, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if !e.Supports(ext) {
		return "", nil, fmt.Errorf("unsupported file type: %s", ext)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", nil, err
	}
	if info.Size() > e.maxFileSize {
		return "", nil, fmt.Errorf("file too large: %d bytes (max %d)", info.Size(), e.maxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", nil, err
	}
	if !utf8.Valid(data) {
		return "", nil, fmt.Errorf("file is not valid UTF-8 text: %s", path)
	}
	text := string(data)
	metadata := map[string]interface{}{
		"text_length": len(text),
	}
	return text, metadata, nil
}

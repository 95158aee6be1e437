// Package fileid derives stable document identifiers from file paths. The
// watcher keys its path-to-source tracking on these, so a file keeps its
// identity across repeated write events.
package fileid

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

const prefix = "file:"

// FileDocID returns the identifier for a file path. Paths are cleaned first,
// so equivalent spellings of the same path agree.
func FileDocID(path string) string {
	sum := sha256.Sum256([]byte(filepath.Clean(path)))
	return prefix + hex.EncodeToString(sum[:])
}

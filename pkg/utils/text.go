// Package utils holds small helpers shared by the CLI and server entrypoints.
package utils

// Truncate caps s at maxLen bytes, marking the cut with "...". Non-positive
// maxLen disables truncation.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

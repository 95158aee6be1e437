package utils

import "go.uber.org/zap"

// NewLogger builds the process logger: human-readable debug output when debug
// is set, production JSON at info level otherwise.
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

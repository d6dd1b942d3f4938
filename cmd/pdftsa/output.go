package main

import (
	"path/filepath"
	"strings"
)

// generateOutputFilename derives the default --output path, per spec §8
// scenario 3: insert "-timestamped" immediately before the last extension,
// or at the end when the input has none.
func generateOutputFilename(input string) string {
	ext := filepath.Ext(input)
	base := strings.TrimSuffix(input, ext)
	return base + "-timestamped" + ext
}

package rowio

import (
	"os"
	"testing"
)

// createTempFile writes content to a new temp file matching pattern and
// returns its path.
func createTempFile(t *testing.T, content string, pattern string) string {
	t.Helper()
	tempFile, err := os.CreateTemp(t.TempDir(), pattern)
	if err != nil {
		t.Fatalf("failed to create temp file (pattern: %s): %v", pattern, err)
	}
	filePath := tempFile.Name()
	if _, err := tempFile.WriteString(content); err != nil {
		_ = tempFile.Close()
		t.Fatalf("failed to write to temp file %s: %v", filePath, err)
	}
	if err := tempFile.Close(); err != nil {
		t.Fatalf("failed to close temp file %s: %v", filePath, err)
	}
	return filePath
}

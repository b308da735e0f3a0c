package testutil

import (
	"path/filepath"
	"testing"
)

// WriteFiles writes each relative path in files under root, creating
// directories as needed, and returns root.
func WriteFiles(t *testing.T, root string, files map[string]string) string {
	t.Helper()
	for name, content := range files {
		writeFile(t, filepath.Join(root, name), []byte(content))
	}
	return root
}

// FunctionsDir creates a temporary functions path holding files.
func FunctionsDir(t *testing.T, files map[string]string) string {
	t.Helper()
	return WriteFiles(t, t.TempDir(), files)
}

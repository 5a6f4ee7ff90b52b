package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDir creates the directory containing path (with parents) if it does
// not exist yet and returns the cleaned path.
func EnsureDir(path string) (string, error) {
	dir := filepath.Clean(path)

	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	return dir, nil
}

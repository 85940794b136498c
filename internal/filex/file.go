// Package filex contains small filesystem helpers shared by the blob
// store and the app wiring.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureSubDir creates (if needed) and returns the subdirectory name
// under parent. An existing directory is left untouched.
func EnsureSubDir(parent, name string) (string, error) {
	dir := filepath.Join(parent, name)

	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	return dir, nil
}

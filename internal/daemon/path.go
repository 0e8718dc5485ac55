package daemon

import (
	"fmt"
	"path/filepath"
)

// canonicalize resolves path the same way the folder package's validator
// does, so the path persisted to config and stored in the FMDM matches what
// Validate already checked.
func canonicalize(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path: %w", err)
	}
	return filepath.Clean(abs), nil
}

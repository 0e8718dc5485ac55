// Package paths resolves the daemon's per-user state directory, with the
// same env-override-then-fallback discipline the rest of the lineage uses
// for its config directory.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
)

// ConfigDirEnv overrides the resolved state directory. Tests set this (or,
// more commonly, bypass resolution entirely by constructing stores directly
// against an afero.NewMemMapFs()).
const ConfigDirEnv = "FOLDERD_CONFIG_DIR"

// StateDir resolves the directory folderd persists its registry and folder
// configuration under. It never creates the directory; callers create it
// (or its files) lazily through their afero.Fs.
func StateDir() (string, error) {
	if dir := os.Getenv(ConfigDirEnv); dir != "" {
		return filepath.Abs(dir)
	}
	cfg, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve user config dir: %w", err)
	}
	return filepath.Join(cfg, "folderd"), nil
}

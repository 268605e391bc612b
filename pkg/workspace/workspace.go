package workspace

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sambigeara/sadb/pkg/perm"
)

const (
	rootDir = ".sadb"
	envDir  = "SADB_DIR"
)

// EnsureDir creates and returns the data directory. An empty dir resolves
// to $SADB_DIR, then ~/.sadb.
func EnsureDir(dir string) (string, error) {
	if dir == "" {
		dir = os.Getenv(envDir)
	}
	if dir == "" {
		base, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("unable to retrieve user home dir: %w", err)
		}
		dir = filepath.Join(base, rootDir)
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("unable to create sadb dir: %w", err)
	}
	if err := perm.SetGroupDir(dir); err != nil {
		return "", err
	}
	return dir, nil
}

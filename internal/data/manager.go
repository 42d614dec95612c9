// Package data implements the chunked array-backed driving dataset and the
// local data manager that resolves dataset keys beneath a root folder.
package data

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/avstack-dev/drivekit/internal/security"
)

// DataFolderEnv is the environment variable naming the dataset root.
const DataFolderEnv = "DRIVEKIT_DATA_FOLDER"

// LocalDataManager resolves dataset keys to absolute paths under a local
// root folder. An empty root falls back to the DRIVEKIT_DATA_FOLDER
// environment variable.
type LocalDataManager struct {
	root string
}

// NewLocalDataManager creates a manager rooted at root. If root is empty the
// DRIVEKIT_DATA_FOLDER environment variable is used instead.
func NewLocalDataManager(root string) (*LocalDataManager, error) {
	if root == "" {
		root = os.Getenv(DataFolderEnv)
	}
	if root == "" {
		return nil, fmt.Errorf("no data root: pass a path or set %s", DataFolderEnv)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("data root %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("data root %s is not a directory", root)
	}
	return &LocalDataManager{root: root}, nil
}

// Root returns the resolved root folder.
func (m *LocalDataManager) Root() string { return m.root }

// Require resolves key to an absolute path and errors if it does not exist
// or escapes the root folder.
func (m *LocalDataManager) Require(key string) (string, error) {
	path := filepath.Join(m.root, filepath.Clean(key))
	if err := security.ValidatePathWithinDirectory(path, m.root); err != nil {
		return "", fmt.Errorf("dataset key %q: %w", key, err)
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("dataset key %q: %w", key, err)
	}
	return path, nil
}

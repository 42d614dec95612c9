// Package security holds filesystem path validation shared by components
// that resolve user-supplied keys under a managed root.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// ValidatePathWithinDirectory checks that path stays inside safeDir once
// cleaned and made absolute, rejecting traversal via ".." components.
func ValidatePathWithinDirectory(path, safeDir string) error {
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	absSafe, err := filepath.Abs(safeDir)
	if err != nil {
		return fmt.Errorf("resolve safe directory: %w", err)
	}
	if absPath != absSafe && !strings.HasPrefix(absPath, absSafe+string(filepath.Separator)) {
		return fmt.Errorf("path %q escapes directory %q", path, safeDir)
	}
	return nil
}

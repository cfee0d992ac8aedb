package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Scratch keeps a local copy of every generated artifact before it is uploaded, so a
// failed upload still leaves the bytes on disk for inspection.
type Scratch struct {
	dir string
}

// NewScratch prepares dir (created when missing) as the scratch root.
func NewScratch(dir string) (*Scratch, error) {
	if dir == "" {
		return nil, errors.New("storage: scratch dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create scratch dir: %w", err)
	}
	return &Scratch{dir: dir}, nil
}

// Write stores data at <dir>/<objectPath> and returns the local path.
func (s *Scratch) Write(objectPath string, data []byte) (string, error) {
	if s == nil {
		return "", errors.New("storage: scratch is not configured")
	}
	path := filepath.Join(s.dir, filepath.FromSlash(objectPath))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("storage: create scratch subdir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write scratch file: %w", err)
	}
	return path, nil
}

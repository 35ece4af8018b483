// Package blob implements library.BlobStore on the local filesystem.
// Blobs are addressed by slash-separated relative paths under a root
// directory; writes go through a temp file and rename.
package blob

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Store is a filesystem-backed blob store rooted at a directory.
type Store struct {
	root string
}

// New creates the root directory if needed and returns the store.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create blob root %q: %w", root, err)
	}
	return &Store{root: root}, nil
}

// Store writes data at relPath, replacing any existing blob.
func (s *Store) Store(data []byte, relPath string) error {
	dest, err := s.resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("create blob dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".blob-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp blob: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write blob %q: %w", relPath, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close blob %q: %w", relPath, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("commit blob %q: %w", relPath, err)
	}
	return nil
}

// Open returns a reader for the blob at relPath.
func (s *Store) Open(relPath string) (io.ReadCloser, error) {
	p, err := s.resolve(relPath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("open blob %q: %w", relPath, err)
	}
	return f, nil
}

// Delete removes the blob at relPath; a missing blob is not an error.
func (s *Store) Delete(relPath string) error {
	p, err := s.resolve(relPath)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete blob %q: %w", relPath, err)
	}
	return nil
}

// resolve maps relPath under the root and rejects traversal outside it.
func (s *Store) resolve(relPath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(relPath))
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid blob path %q", relPath)
	}
	return filepath.Join(s.root, clean), nil
}

// Package system wraps the host operations the orchestrator and port
// allocator perform, so tests can substitute them.
package system

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// FileSystem covers server data and script directories on the host.
type FileSystem interface {
	MkdirAll(path string, perm fs.FileMode) error
	WriteFile(path string, data []byte, perm fs.FileMode) error

	// RemoveAll removes path recursively. A missing path is not an error.
	RemoveAll(path string) error

	Exists(path string) bool
}

// DefaultFS returns the host filesystem.
func DefaultFS() FileSystem {
	return hostFS{}
}

type hostFS struct{}

func (hostFS) MkdirAll(path string, perm fs.FileMode) error {
	return os.MkdirAll(path, perm)
}

// WriteFile truncates in place, so a bind mount of path sees the new
// content.
func (hostFS) WriteFile(path string, data []byte, perm fs.FileMode) error {
	return os.WriteFile(path, data, perm)
}

func (hostFS) RemoveAll(path string) error {
	clean := filepath.Clean(path)
	if !filepath.IsAbs(clean) || clean == string(filepath.Separator) {
		return fmt.Errorf("refusing to remove %q", path)
	}
	return os.RemoveAll(clean)
}

func (hostFS) Exists(path string) bool {
	_, err := os.Lstat(path)
	return err == nil || !errors.Is(err, fs.ErrNotExist)
}

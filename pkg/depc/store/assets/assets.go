// Package assets manages externally stored column payloads.
//
// Large binary values are kept out of the database: the row's column holds a
// file name and the payload lives in a flat directory, keyed by node name,
// native row id, and column name. Files are removed together with their rows
// so no orphaned payloads accumulate.
package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Dir is an external-payload directory.
type Dir struct {
	path string
}

// NewDir creates the directory if needed and returns a handle.
func NewDir(path string) (*Dir, error) {
	if path == "" {
		return nil, errors.New("assets directory path is empty")
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating assets directory %s: %w", path, err)
	}
	return &Dir{path: path}, nil
}

// Path returns the directory's absolute location.
func (d *Dir) Path() string {
	return d.path
}

// FileName returns the payload file name for one external column value.
func FileName(node string, rowid int64, column string) string {
	return fmt.Sprintf("%s_%d_%s.bin", node, rowid, column)
}

// Write stores a payload and returns its file name.
func (d *Dir) Write(node string, rowid int64, column string, data []byte) (string, error) {
	name := FileName(node, rowid, column)
	if err := os.WriteFile(filepath.Join(d.path, name), data, 0o644); err != nil {
		return "", fmt.Errorf("writing asset %s: %w", name, err)
	}
	return name, nil
}

// Read loads a payload by file name.
func (d *Dir) Read(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(d.path, name))
	if err != nil {
		return nil, fmt.Errorf("reading asset %s: %w", name, err)
	}
	return data, nil
}

// Remove deletes a payload. Removing a payload that does not exist is not an
// error, so row deletion stays idempotent.
func (d *Dir) Remove(name string) error {
	err := os.Remove(filepath.Join(d.path, name))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing asset %s: %w", name, err)
	}
	return nil
}

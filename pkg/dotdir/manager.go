// Package dotdir manages the .wbia/ and ~/.wbia directories that hold the
// config file, the databases, and the download cache.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dirName is the name of the wbia dot directory.
	dirName = ".wbia"

	// downloadsDirName is the download cache subdirectory.
	downloadsDirName = "downloads"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the absolute path to the resolved .wbia/ directory.
// Order of precedence is as follows:
//  1. Provided override (created if missing)
//  2. Local ./.wbia/ dir
//  3. Home ~/.wbia/ dir
//
// Returns the empty string when no override is given and neither the local
// nor the home directory exists.
func (m *Manager) Target(overrideDir string) (string, error) {
	if overrideDir != "" {
		if err := os.MkdirAll(overrideDir, 0o755); err != nil {
			return "", fmt.Errorf("creating wbia directory %s: %w", overrideDir, err)
		}
		return filepath.Abs(overrideDir)
	}

	if dir, ok := m.localDir(); ok {
		return filepath.Abs(dir)
	}
	if dir, ok := m.homeDir(); ok {
		return filepath.Abs(dir)
	}
	return "", nil
}

// EnsureTarget resolves like Target but never returns empty: when nothing
// exists it creates ~/.wbia. Commands that write state use this.
func (m *Manager) EnsureTarget(overrideDir string) (string, error) {
	dir, err := m.Target(overrideDir)
	if err != nil || dir != "" {
		return dir, err
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	dir = filepath.Join(home, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating wbia directory %s: %w", dir, err)
	}
	return filepath.Abs(dir)
}

// DownloadCacheDir returns (and creates) the download cache under the
// resolved .wbia/ directory.
func (m *Manager) DownloadCacheDir(overrideDir string) (string, error) {
	target, err := m.EnsureTarget(overrideDir)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(target, downloadsDirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating download cache %s: %w", dir, err)
	}
	return dir, nil
}

// localDir checks for a .wbia/ directory in the current working directory.
func (m *Manager) localDir() (string, bool) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false
	}
	dir := filepath.Join(cwd, dirName)
	info, err := os.Stat(dir)
	return dir, err == nil && info.IsDir()
}

// homeDir checks for a .wbia/ directory in the user's home directory.
func (m *Manager) homeDir() (string, bool) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", false
	}
	dir := filepath.Join(home, dirName)
	info, err := os.Stat(dir)
	return dir, err == nil && info.IsDir()
}

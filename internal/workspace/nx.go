// Package workspace locates the git repository and the Nx workspace that the
// affected-project query runs against.
package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Marker files that identify an Nx workspace directory.
const (
	NxConfigFile    = "nx.json"
	PackageManifest = "package.json"

	// DefaultDirName is the conventional Nx workspace directory under the repository root.
	DefaultDirName = "nx"
)

var (
	// ErrNotGitRepository is returned when neither the directory nor its parent is a git checkout.
	ErrNotGitRepository = errors.New("not in a git repository")

	// ErrWorkspaceNotFound is returned when no directory with nx.json and package.json exists.
	ErrWorkspaceNotFound = errors.New("nx workspace not found")
)

// NxConfig holds the subset of nx.json that detection cares about.
type NxConfig struct {
	DefaultBase string `json:"defaultBase"`
	Affected    struct {
		DefaultBase string `json:"defaultBase"`
	} `json:"affected"`
}

// Base returns the configured default base branch, preferring the legacy
// affected.defaultBase key when both are set.
func (c NxConfig) Base() string {
	if c.Affected.DefaultBase != "" {
		return c.Affected.DefaultBase
	}
	return c.DefaultBase
}

// FindRepoRoot returns dir when it contains .git, otherwise its parent when
// the parent does.
func FindRepoRoot(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	if exists(filepath.Join(abs, ".git")) {
		return abs, nil
	}

	parent := filepath.Dir(abs)
	if exists(filepath.Join(parent, ".git")) {
		return parent, nil
	}

	return "", ErrNotGitRepository
}

// FindNxWorkspace returns the conventional nx/ directory under repoRoot if it
// holds both marker files.
func FindNxWorkspace(repoRoot string) (string, error) {
	dir := filepath.Join(repoRoot, DefaultDirName)
	if !HasNxWorkspace(dir) {
		return "", fmt.Errorf("%w: expected '%s' directory with %s and %s",
			ErrWorkspaceNotFound, DefaultDirName, NxConfigFile, PackageManifest)
	}
	return dir, nil
}

// ValidateNxWorkspace checks an explicitly supplied workspace directory and
// returns its absolute path.
func ValidateNxWorkspace(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s: %w", dir, err)
	}

	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return "", fmt.Errorf("%w: %s is not a directory", ErrWorkspaceNotFound, abs)
	}

	if !HasNxWorkspace(abs) {
		return "", fmt.Errorf("%w: %s must contain %s and %s",
			ErrWorkspaceNotFound, abs, NxConfigFile, PackageManifest)
	}
	return abs, nil
}

// HasNxWorkspace reports whether dir contains nx.json and package.json.
func HasNxWorkspace(dir string) bool {
	return exists(filepath.Join(dir, NxConfigFile)) && exists(filepath.Join(dir, PackageManifest))
}

// ReadNxConfig parses nx.json from the workspace directory.
func ReadNxConfig(dir string) (*NxConfig, error) {
	data, err := os.ReadFile(filepath.Join(dir, NxConfigFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", NxConfigFile, err)
	}

	var cfg NxConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", NxConfigFile, err)
	}
	return &cfg, nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

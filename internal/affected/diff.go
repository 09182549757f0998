package affected

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sourcegraph/go-diff/diff"
)

const devNull = "/dev/null"

// ChangedFiles parses a unified diff and returns every path it touches, in
// diff order without duplicates. Deleted files are reported by their
// original name.
func ChangedFiles(patch []byte) ([]string, error) {
	fileDiffs, err := diff.ParseMultiFileDiff(patch)
	if err != nil {
		return nil, fmt.Errorf("failed to parse diff: %w", err)
	}

	seen := make(map[string]bool)
	var files []string
	add := func(name string) {
		name = stripPrefix(name)
		if name == "" || name == devNull || seen[name] {
			return
		}
		seen[name] = true
		files = append(files, name)
	}

	for _, fd := range fileDiffs {
		if fd.NewName != devNull {
			add(fd.NewName)
		}
		// Renames touch both sides.
		if fd.OrigName != devNull && stripPrefix(fd.OrigName) != stripPrefix(fd.NewName) {
			add(fd.OrigName)
		}
	}
	return files, nil
}

// ChangedFilesFromPath reads a diff file and returns the paths it touches.
func ChangedFilesFromPath(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read diff file: %w", err)
	}
	return ChangedFiles(data)
}

// RebaseFiles rewrites paths relative to fromDir as slash-separated paths
// relative to toDir, which is where nx resolves --files. Paths outside toDir
// keep their ../ prefix and match no project.
func RebaseFiles(files []string, fromDir, toDir string) []string {
	rebased := make([]string, 0, len(files))
	for _, f := range files {
		rel, err := filepath.Rel(toDir, filepath.Join(fromDir, filepath.FromSlash(f)))
		if err != nil {
			rebased = append(rebased, f)
			continue
		}
		rebased = append(rebased, filepath.ToSlash(rel))
	}
	return rebased
}

func stripPrefix(name string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "a/") || strings.HasPrefix(name, "b/") {
		return name[2:]
	}
	return name
}

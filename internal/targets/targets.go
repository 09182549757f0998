// Package targets reads and writes the impacted targets file, the JSON array
// of project names handed from the detect step to the upload step.
package targets

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
)

// DefaultFilename is the conventional targets file name.
const DefaultFilename = "impacted_targets_json_tmp"

// Normalize returns the names deduplicated and sorted. The result is never nil.
func Normalize(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	result := make([]string, 0, len(names))
	for _, name := range names {
		if _, ok := seen[name]; ok {
			continue
		}
		seen[name] = struct{}{}
		result = append(result, name)
	}
	sort.Strings(result)
	return result
}

// Write normalizes names and writes them as a JSON array to path,
// overwriting any existing file. It returns the list that was written.
func Write(path string, names []string) ([]string, error) {
	normalized := Normalize(names)

	data, err := json.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal targets: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("error writing to %s: %w", path, err)
	}
	return normalized, nil
}

// Read loads a targets file. The file must hold a JSON array of strings;
// element order is preserved as written.
func Read(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("targets file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read targets file %s: %w", path, err)
	}

	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("invalid JSON in targets file: %w", err)
	}

	items, ok := raw.([]any)
	if !ok {
		return nil, fmt.Errorf("expected JSON array in %s", path)
	}

	names := make([]string, 0, len(items))
	for i, item := range items {
		name, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("expected JSON array of strings in %s (item %d is %T)", path, i, item)
		}
		names = append(names, name)
	}
	return names, nil
}

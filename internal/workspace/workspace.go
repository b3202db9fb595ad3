// Package workspace manages the storage directory a project keeps its
// patchloop state in (".patchloop" by default).
//
// Layout:
//
//	state/<run_id>.json          agent state, rewritten after every transition
//	events/<run_id>.ndjson       append-only event ledger
//	history/snapshots/<key>.json last observed snapshot per entry file
package workspace

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultStorageDir is the storage directory name under the project root
const DefaultStorageDir = ".patchloop"

// GetRequiredDirectories returns the directories that must exist under a storage dir
func GetRequiredDirectories() []string {
	return []string{
		"state",
		"events",
		filepath.Join("history", "snapshots"),
	}
}

// Initialize creates all required directories with 0700 permissions.
// It is idempotent.
func Initialize(storageDir string) error {
	for _, dir := range GetRequiredDirectories() {
		path := filepath.Join(storageDir, dir)
		if err := os.MkdirAll(path, 0700); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", path, err)
		}
	}
	return nil
}

// IsInitialized checks if storageDir has all required directories
func IsInitialized(storageDir string) (bool, error) {
	for _, dir := range GetRequiredDirectories() {
		path := filepath.Join(storageDir, dir)

		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to check directory %s: %w", path, err)
		}
		if !info.IsDir() {
			return false, nil
		}
	}
	return true, nil
}

// ListRuns returns the IDs of runs with an event ledger, newest first.
// Run IDs embed a UTC timestamp, so lexical order is chronological.
func ListRuns(storageDir string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(storageDir, "events"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}

	var runs []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".ndjson") {
			continue
		}
		runs = append(runs, strings.TrimSuffix(name, ".ndjson"))
	}
	sort.Sort(sort.Reverse(sort.StringSlice(runs)))
	return runs, nil
}

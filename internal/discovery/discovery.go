// Package discovery lists the working set of a project directory when no
// entry file is configured. The walk is deterministic: entries are visited in
// name order, so the same tree always yields the same list.
//
// Dependency directories (node_modules) are reported as a single path and not
// entered. Directories holding more than MaxFilesPerDir files are treated as
// generated or vendored content: neither their files nor their subdirectories
// are listed.
package discovery

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultMaxFilesPerDir is the per-directory file count above which a
// directory is skipped.
const DefaultMaxFilesPerDir = 20

// DefaultIgnoredDirs lists directory names that are skipped entirely.
var DefaultIgnoredDirs = []string{".git", ".hg", ".svn", ".patchloop"}

// DefaultOpaqueDirs lists directory names recorded as a single entry.
var DefaultOpaqueDirs = []string{"node_modules"}

// Config configures a listing.
type Config struct {
	Root           string
	IgnoreDirs     []string
	OpaqueDirs     []string
	MaxFilesPerDir int
}

// DefaultConfig returns a Config populated with the default filters.
func DefaultConfig(root string) Config {
	return Config{
		Root:           root,
		IgnoreDirs:     append([]string{}, DefaultIgnoredDirs...),
		OpaqueDirs:     append([]string{}, DefaultOpaqueDirs...),
		MaxFilesPerDir: DefaultMaxFilesPerDir,
	}
}

// ListFiles walks cfg.Root and returns absolute paths of the files (and
// opaque directories) it contains.
func ListFiles(cfg Config) ([]string, error) {
	if strings.TrimSpace(cfg.Root) == "" {
		return nil, errors.New("discovery: root is required")
	}

	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("discovery: resolve root: %w", err)
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("discovery: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("discovery: root is not a directory: %s", root)
	}

	w := walker{
		ignore:   nameSet(cfg.IgnoreDirs),
		opaque:   nameSet(cfg.OpaqueDirs),
		maxFiles: cfg.MaxFilesPerDir,
	}
	if w.maxFiles <= 0 {
		w.maxFiles = DefaultMaxFilesPerDir
	}

	var out []string
	if err := w.walk(root, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type walker struct {
	ignore   map[string]struct{}
	opaque   map[string]struct{}
	maxFiles int
}

func (w walker) walk(dir string, out *[]string) error {
	if _, ok := w.opaque[filepath.Base(dir)]; ok {
		*out = append(*out, dir)
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("discovery: read dir %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	var files, dirs []string
	for _, entry := range entries {
		full := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if _, ignored := w.ignore[entry.Name()]; !ignored {
				dirs = append(dirs, full)
			}
			continue
		}
		files = append(files, full)
	}

	if len(files) > w.maxFiles {
		return nil
	}
	*out = append(*out, files...)

	for _, child := range dirs {
		if err := w.walk(child, out); err != nil {
			return err
		}
	}
	return nil
}

func nameSet(names []string) map[string]struct{} {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		if trimmed := strings.TrimSpace(name); trimmed != "" {
			set[trimmed] = struct{}{}
		}
	}
	return set
}

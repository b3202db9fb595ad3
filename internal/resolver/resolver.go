// Package resolver builds the set of source files reachable from an entry
// file by following static import statements.
//
// Traversal is iterative (explicit stack) and depth-first in import order.
// Each file is identified by its symlink-resolved absolute path and read at
// most once per resolution, so import cycles terminate. Imports that do not
// resolve to an existing, decodable file are reported as warnings and never
// abort the walk.
package resolver

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/iambrandonn/patchloop/internal/snapshot"
)

// WarningKind classifies why a file was left out of a snapshot
type WarningKind string

const (
	WarningMissing    WarningKind = "missing"
	WarningUndecoded  WarningKind = "undecodable"
	WarningUnreadable WarningKind = "unreadable"
)

// Warning records a candidate that was skipped during resolution
type Warning struct {
	Kind   WarningKind `json:"kind"`
	Path   string      `json:"path"`
	Module string      `json:"module,omitempty"`
	From   string      `json:"from,omitempty"`
	Detail string      `json:"detail,omitempty"`
}

func (w Warning) String() string {
	if w.From == "" {
		return fmt.Sprintf("%s: %s", w.Kind, w.Path)
	}
	return fmt.Sprintf("%s: %s (import %q in %s)", w.Kind, w.Path, w.Module, w.From)
}

// Result is the outcome of one resolution
type Result struct {
	Snapshot *snapshot.Snapshot
	Warnings []Warning
}

// Resolver follows imports from an entry file
type Resolver struct {
	logger *slog.Logger
}

// New creates a resolver
func New(logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{logger: logger}
}

type pending struct {
	imp  Import
	from string
}

// Resolve walks the import graph rooted at entryFile and returns every
// visited, existing file keyed by its cleaned absolute path. The snapshot's
// EntryFile is the absolute entry path.
func (r *Resolver) Resolve(entryFile string) (*Result, error) {
	entryAbs, err := filepath.Abs(entryFile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve entry file %s: %w", entryFile, err)
	}

	result := &Result{Snapshot: snapshot.New(entryAbs)}
	visited := make(map[string]struct{})

	stack := []pending{{imp: Import{Candidates: []string{entryAbs}}}}
	for len(stack) > 0 {
		next := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		path, ok := firstExisting(next.imp.Candidates)
		if !ok {
			result.warn(r.logger, Warning{
				Kind:   WarningMissing,
				Path:   next.imp.Candidates[0],
				Module: next.imp.Module,
				From:   next.from,
			})
			continue
		}

		key := canonical(path)
		if _, seen := visited[key]; seen {
			continue
		}
		visited[key] = struct{}{}

		data, err := os.ReadFile(path)
		if err != nil {
			result.warn(r.logger, Warning{Kind: WarningUnreadable, Path: path, Module: next.imp.Module, From: next.from, Detail: err.Error()})
			continue
		}
		if !utf8.Valid(data) {
			result.warn(r.logger, Warning{Kind: WarningUndecoded, Path: path, Module: next.imp.Module, From: next.from})
			continue
		}

		code := string(data)
		result.Snapshot.Files[path] = code

		// Push in reverse so the first import is explored first.
		imports := ExtractImports(code, path)
		for i := len(imports) - 1; i >= 0; i-- {
			stack = append(stack, pending{imp: imports[i], from: path})
		}
	}

	r.logger.Debug("resolved import graph",
		"entry_file", entryAbs,
		"files", len(result.Snapshot.Files),
		"warnings", len(result.Warnings))

	return result, nil
}

func (res *Result) warn(logger *slog.Logger, w Warning) {
	res.Warnings = append(res.Warnings, w)
	logger.Debug("import skipped", "warning", w.String())
}

// firstExisting returns the first candidate that is a regular file
func firstExisting(candidates []string) (string, bool) {
	for _, c := range candidates {
		info, err := os.Stat(c)
		if err == nil && !info.IsDir() {
			return filepath.Clean(c), true
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			// Permission problems still count as present; ReadFile reports them.
			return filepath.Clean(c), true
		}
	}
	return "", false
}

// canonical resolves symlinks so two spellings of one file share a visit slot
func canonical(path string) string {
	if resolved, err := filepath.EvalSymlinks(path); err == nil {
		return resolved
	}
	return path
}

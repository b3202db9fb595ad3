// Package diff compares two project snapshots and reports what changed.
package diff

import (
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/iambrandonn/patchloop/internal/snapshot"
)

// Result maps a changed path to either its full content (new file, or every
// file on a first run) or a unified diff of the change. Paths that vanished
// between snapshots are not reported.
type Result map[string]string

// Compute diffs previous against current. A nil previous means there is no
// history yet, and every file in current is reported verbatim.
func Compute(previous, current *snapshot.Snapshot) Result {
	result := make(Result)
	if current == nil {
		return result
	}

	if previous == nil {
		for path, content := range current.Files {
			result[path] = content
		}
		return result
	}

	for path, newContent := range current.Files {
		oldContent, existed := previous.Files[path]
		switch {
		case !existed:
			result[path] = newContent
		case oldContent != newContent:
			result[path] = Unified(path, oldContent, newContent)
		}
	}

	return result
}

// Unified renders a zero-context unified diff between two versions of path.
func Unified(path, oldContent, newContent string) string {
	text, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(oldContent),
		B:        difflib.SplitLines(newContent),
		FromFile: path,
		ToFile:   path,
		Context:  0,
	})
	if err != nil {
		// Only reachable on a failed buffer write; fall back to the full file.
		return newContent
	}
	return strings.TrimRight(text, "\n")
}

// Paths returns the changed paths in sorted order
func (r Result) Paths() []string {
	paths := make([]string, 0, len(r))
	for p := range r {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Merge copies every entry of other into r
func (r Result) Merge(other Result) {
	for path, change := range other {
		r[path] = change
	}
}

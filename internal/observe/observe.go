// Package observe reports what changed in a project since the last time
// its entry point was observed.
package observe

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/iambrandonn/patchloop/internal/diff"
	"github.com/iambrandonn/patchloop/internal/resolver"
	"github.com/iambrandonn/patchloop/internal/snapshot"
)

// Report is the outcome of observing one entry point
type Report struct {
	EntryFile string
	Changes   diff.Result
	Snapshot  *snapshot.Snapshot
	Warnings  []resolver.Warning
	FirstRun  bool
}

// Observer composes resolution, snapshot storage and diffing
type Observer struct {
	resolver *resolver.Resolver
	store    *snapshot.Store
	logger   *slog.Logger
}

// New creates an Observer persisting snapshots in store
func New(store *snapshot.Store, logger *slog.Logger) *Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observer{
		resolver: resolver.New(logger),
		store:    store,
		logger:   logger,
	}
}

// Observe resolves entryFile, diffs it against the stored snapshot, and
// replaces the stored snapshot with the new one.
func (o *Observer) Observe(entryFile string) (*Report, error) {
	entryAbs, err := filepath.Abs(entryFile)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve entry file %s: %w", entryFile, err)
	}

	resolved, err := o.resolver.Resolve(entryAbs)
	if err != nil {
		return nil, err
	}

	previous, err := o.store.Load(entryAbs)
	if err != nil {
		// A corrupt snapshot is replaced; report everything as new.
		o.logger.Warn("discarding unreadable snapshot", "entry_file", entryAbs, "error", err)
		previous = nil
	}

	changes := diff.Compute(previous, resolved.Snapshot)

	if err := o.store.Save(entryAbs, resolved.Snapshot); err != nil {
		return nil, fmt.Errorf("failed to save snapshot: %w", err)
	}

	for _, w := range resolved.Warnings {
		o.logger.Warn("import not resolved", "warning", w.String())
	}
	o.logger.Info("observed project",
		"entry_file", entryAbs,
		"files", len(resolved.Snapshot.Files),
		"changed", len(changes),
		"first_run", previous == nil,
		"digest", resolved.Snapshot.Digest())

	return &Report{
		EntryFile: entryAbs,
		Changes:   changes,
		Snapshot:  resolved.Snapshot,
		Warnings:  resolved.Warnings,
		FirstRun:  previous == nil,
	}, nil
}

// WarningStrings renders warnings for wire responses
func (r *Report) WarningStrings() []string {
	if len(r.Warnings) == 0 {
		return nil
	}
	out := make([]string, len(r.Warnings))
	for i, w := range r.Warnings {
		out[i] = w.String()
	}
	return out
}

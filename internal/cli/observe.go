package cli

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/iambrandonn/patchloop/internal/config"
	"github.com/spf13/cobra"
)

var observeCmd = &cobra.Command{
	Use:   "observe [entry-file...]",
	Short: "Print what changed under entry files since they were last observed",
	Long: `Resolve each entry file's import graph, diff it against the stored
snapshot, store the new snapshot, and print the change report as JSON.
Without arguments the configured entry_files are observed.`,
	RunE: runObserve,
}

type observeReport struct {
	EntryFile    string            `json:"entry_file"`
	FirstRun     bool              `json:"first_run"`
	Files        []string          `json:"files"`
	ChangedFiles map[string]string `json:"changed_files"`
	Warnings     []string          `json:"warnings,omitempty"`
}

func runObserve(cmd *cobra.Command, args []string) error {
	logger, err := loggerFor(cmd)
	if err != nil {
		return err
	}

	p, err := openProject(cmd, logger)
	if err != nil {
		return err
	}

	entries := p.cfg.EntryPaths(p.workspace)
	if len(args) > 0 {
		entries = entries[:0]
		for _, arg := range args {
			abs, err := filepath.Abs(arg)
			if err != nil {
				return fmt.Errorf("failed to resolve entry %s: %w", arg, err)
			}
			entries = append(entries, abs)
		}
	}
	if len(entries) == 0 {
		return fmt.Errorf("no entry files: pass them as arguments or set entry_files in %s", config.FileName)
	}

	if err := p.initStorage(); err != nil {
		return err
	}

	observer := p.newObserver(logger)
	reports := make([]observeReport, 0, len(entries))
	for _, entry := range entries {
		report, err := observer.Observe(entry)
		if err != nil {
			return err
		}
		changed := map[string]string(report.Changes)
		if changed == nil {
			changed = map[string]string{}
		}
		reports = append(reports, observeReport{
			EntryFile:    report.EntryFile,
			FirstRun:     report.FirstRun,
			Files:        report.Snapshot.Paths(),
			ChangedFiles: changed,
			Warnings:     report.WarningStrings(),
		})
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(reports)
}

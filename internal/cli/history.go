package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/iambrandonn/patchloop/internal/eventlog"
	"github.com/iambrandonn/patchloop/internal/ledger"
	"github.com/iambrandonn/patchloop/internal/protocol"
	"github.com/iambrandonn/patchloop/internal/runstate"
	"github.com/iambrandonn/patchloop/internal/transcript"
	"github.com/iambrandonn/patchloop/internal/workspace"
	"github.com/spf13/cobra"
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "List past runs, or print one run's event transcript",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistory,
}

func init() {
	historyCmd.Flags().Bool("states", false, "Include loop state transitions in the transcript")
}

func runHistory(cmd *cobra.Command, args []string) error {
	logger, err := loggerFor(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	p, err := openProject(cmd, logger)
	if err != nil {
		return err
	}

	if len(args) == 0 {
		runs, err := workspace.ListRuns(p.storage)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			fmt.Fprintln(out, "No runs recorded.")
			return nil
		}
		for _, id := range runs {
			fmt.Fprintln(out, runSummary(p.storage, id))
		}
		return nil
	}

	runID := args[0]
	l, err := ledger.ReadLedger(eventlog.PathFor(p.storage, runID))
	if err != nil {
		return err
	}

	showStates, err := cmd.Flags().GetBool("states")
	if err != nil {
		return err
	}

	formatter := transcript.NewFormatter()
	for _, evt := range l.Events {
		if evt.Event == protocol.EventStateEntered && !showStates {
			continue
		}
		fmt.Fprintln(out, formatter.FormatEvent(evt))
	}
	for _, log := range l.Logs {
		fmt.Fprintln(out, formatter.FormatLog(log))
	}

	if id := l.RunID(); id != "" && id != runID {
		logger.Warn("ledger belongs to a different run", "requested", runID, "ledger", id)
	}
	fmt.Fprintf(out, "%d steps executed, %d events\n", len(l.ExecutedSteps()), l.LastSeq())
	if term := l.Terminal(); term == nil {
		fmt.Fprintln(out, "(run has no terminal event; it may still be running or was killed)")
	}
	return nil
}

// runSummary renders one line for a run, using its saved state when present
func runSummary(storage, runID string) string {
	state, err := runstate.Load(runstate.StatePath(storage, runID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return runID
		}
		return fmt.Sprintf("%s  (unreadable state: %v)", runID, err)
	}
	return fmt.Sprintf("%s  %-9s  %3d steps  %s", runID, state.Status, len(state.ExecutionHistory), state.Goal)
}

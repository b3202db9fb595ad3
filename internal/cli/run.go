package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/iambrandonn/patchloop/internal/discovery"
	"github.com/iambrandonn/patchloop/internal/eventlog"
	"github.com/iambrandonn/patchloop/internal/orchestrator"
	"github.com/iambrandonn/patchloop/internal/protocol"
	"github.com/iambrandonn/patchloop/internal/runstate"
	"github.com/iambrandonn/patchloop/internal/transcript"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [goal...]",
	Short: "Work on a goal until the model reports it done",
	Long: `Start a new agent run. The goal comes from --goal, from the
arguments, or, when neither is given, from standard input.`,
	Args: cobra.ArbitraryArgs,
	RunE: runRun,
}

func init() {
	addRunFlags(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("goal", "g", "", "What the agent should achieve")
	cmd.Flags().String("cwd", "", "Project directory commands run in (default: workspace root)")
	cmd.Flags().StringArrayP("entry", "e", nil, "Entry file to observe; repeatable (default: entry_files from config)")
	cmd.Flags().Bool("no-intent", false, "Skip goal intent classification")
}

var errInstructionRequired = errors.New("instruction is required")

func runRun(cmd *cobra.Command, args []string) error {
	logger, err := loggerFor(cmd)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	p, err := openProject(cmd, logger)
	if err != nil {
		return err
	}

	goal, err := resolveGoal(cmd, args)
	if err != nil {
		return err
	}

	cwd, err := cmd.Flags().GetString("cwd")
	if err != nil {
		return err
	}
	if cwd == "" {
		cwd = p.workspace
	}
	if cwd, err = filepath.Abs(cwd); err != nil {
		return fmt.Errorf("failed to resolve --cwd: %w", err)
	}

	entries, err := entryFiles(cmd, p)
	if err != nil {
		return err
	}

	if err := p.initStorage(); err != nil {
		return err
	}

	llm, err := p.newOracle(logger)
	if err != nil {
		return err
	}

	state := runstate.NewAgentState(goal, cwd)

	events, err := eventlog.NewEventLog(eventlog.PathFor(p.storage, state.RunID), logger)
	if err != nil {
		return err
	}
	defer events.Close()

	noIntent, err := cmd.Flags().GetBool("no-intent")
	if err != nil {
		return err
	}

	formatter := transcript.NewFormatter()
	opts := orchestrator.Options{
		Oracle:     llm,
		Observer:   p.newObserver(logger),
		EntryFiles: entries,
		ListFiles: func(root string) ([]string, error) {
			return discovery.ListFiles(discovery.DefaultConfig(root))
		},
		Dispatcher: p.newDispatcher(logger),
		Events:     events,
		Saver:      runstate.NewSaver(p.storage),
		OnEvent: func(evt *protocol.Event) {
			if evt.Event == protocol.EventStateEntered {
				return
			}
			fmt.Fprintln(out, formatter.FormatEvent(evt))
		},
		MaxCycles: p.cfg.Limits.MaxCycles,
		Logger:    logger,
	}
	if p.cfg.Oracle.ClassifyIntent && !noIntent {
		opts.Classifier = llm
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(out, "Run %s\n", state.RunID)
	runErr := orchestrator.New(opts).Run(ctx, state)

	fmt.Fprintf(out, "State: %s\nEvents: %s\n", runstate.StatePath(p.storage, state.RunID), events.Path())
	if runErr != nil {
		return runErr
	}
	if state.Answer != nil {
		fmt.Fprintf(out, "\n%s\n", *state.Answer)
	}
	return nil
}

// resolveGoal takes the goal from --goal, the arguments, or standard input
func resolveGoal(cmd *cobra.Command, args []string) (string, error) {
	goal, err := cmd.Flags().GetString("goal")
	if err != nil {
		return "", err
	}
	if goal = strings.TrimSpace(goal); goal != "" {
		return goal, nil
	}
	if joined := strings.TrimSpace(strings.Join(args, " ")); joined != "" {
		return joined, nil
	}

	input := cmd.InOrStdin()
	isTTY := false
	if file, ok := input.(*os.File); ok {
		isTTY = isTerminalFile(file)
	}

	goal, err = promptForInstruction(input, cmd.OutOrStdout(), isTTY)
	if errors.Is(err, errInstructionRequired) {
		return "", fmt.Errorf("goal required: pass --goal, give it as arguments, or provide it on standard input")
	}
	return goal, err
}

// entryFiles returns --entry values, or the configured entry files
func entryFiles(cmd *cobra.Command, p *project) ([]string, error) {
	flagged, err := cmd.Flags().GetStringArray("entry")
	if err != nil {
		return nil, err
	}
	if len(flagged) == 0 {
		return p.cfg.EntryPaths(p.workspace), nil
	}

	paths := make([]string, 0, len(flagged))
	for _, entry := range flagged {
		abs, err := filepath.Abs(entry)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve entry %s: %w", entry, err)
		}
		paths = append(paths, abs)
	}
	return paths, nil
}

func promptForInstruction(r io.Reader, w io.Writer, tty bool) (string, error) {
	reader := bufio.NewReader(r)
	if tty {
		fmt.Fprint(w, "patchloop> What should I do? ")
	}

	line, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}

	line = strings.TrimSpace(line)
	if line == "" {
		return "", errInstructionRequired
	}
	if tty {
		fmt.Fprintln(w)
	}
	return line, nil
}

// Package dispatch executes decoded actions against the project and records
// their outcome in the agent state.
//
// Action failures (bad paths, unreadable files, failing commands) are
// recorded in state.Error and never returned; the loop feeds them back to the
// oracle. Only context cancellation is returned.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/iambrandonn/patchloop/internal/action"
	"github.com/iambrandonn/patchloop/internal/fsutil"
	"github.com/iambrandonn/patchloop/internal/runner"
	"github.com/iambrandonn/patchloop/internal/runstate"
)

// DefaultMaxReadBytes caps a single read action
const DefaultMaxReadBytes = 1024 * 1024

// CommandRunner runs shell commands with a time limit
type CommandRunner interface {
	Run(ctx context.Context, command, cwd string, timeLimitSeconds int) (*runner.Result, error)
}

// Options configures a Dispatcher
type Options struct {
	Runner       CommandRunner
	MaxReadBytes int64
	Logger       *slog.Logger
}

// Dispatcher applies actions to the working state
type Dispatcher struct {
	runner       CommandRunner
	maxReadBytes int64
	logger       *slog.Logger
}

// New creates a Dispatcher
func New(opts Options) *Dispatcher {
	d := &Dispatcher{
		runner:       opts.Runner,
		maxReadBytes: opts.MaxReadBytes,
		logger:       opts.Logger,
	}
	if d.maxReadBytes <= 0 {
		d.maxReadBytes = DefaultMaxReadBytes
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// ApplyStep decodes step and applies it. A malformed step sets state.Error
// and is not recorded in the execution history.
func (d *Dispatcher) ApplyStep(ctx context.Context, step string, state *runstate.AgentState) error {
	state.ClearError()

	act, err := action.Parse(step)
	if err != nil {
		d.logger.Warn("rejected step", "step", step, "error", err)
		state.SetError(err.Error())
		return nil
	}
	return d.apply(ctx, act, step, state)
}

// Apply runs one decoded action
func (d *Dispatcher) Apply(ctx context.Context, act action.Action, state *runstate.AgentState) error {
	state.ClearError()
	return d.apply(ctx, act, act.Step(), state)
}

func (d *Dispatcher) apply(ctx context.Context, act action.Action, step string, state *runstate.AgentState) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	state.RecordStep(step)

	switch a := act.(type) {
	case action.Read:
		d.read(a, state)
		return nil
	case action.Write:
		d.write(a, state)
		return nil
	case action.Run:
		return d.run(ctx, a, state)
	default:
		// Unreachable while Action is sealed.
		state.SetError(fmt.Sprintf("unsupported action %T", act))
		return nil
	}
}

func (d *Dispatcher) read(a action.Read, state *runstate.AgentState) {
	rel, err := workspaceRelative(state.Cwd, a.Path)
	if err != nil {
		d.fail(state, a, err)
		return
	}

	content, err := fsutil.ReadTextFile(state.Cwd, rel, d.maxReadBytes)
	if err != nil {
		d.fail(state, a, err)
		return
	}

	if state.FileContext == nil {
		state.FileContext = make(map[string]string)
	}
	state.FileContext[a.Path] = content
	state.TrackFile(a.Path)
	state.LastOutput = fmt.Sprintf("Read %s:\n%s", a.Path, content)

	d.logger.Info("read file", "path", a.Path, "bytes", len(content))
}

func (d *Dispatcher) write(a action.Write, state *runstate.AgentState) {
	rel, err := workspaceRelative(state.Cwd, a.Path)
	if err != nil {
		d.fail(state, a, err)
		return
	}

	artifact, err := fsutil.WriteFileAtomic(state.Cwd, rel, []byte(a.Content))
	if err != nil {
		d.fail(state, a, err)
		return
	}

	if state.IsTracked(a.Path) {
		state.FileContext[a.Path] = a.Content
	}
	state.TrackFile(a.Path)
	state.LastOutput = ""

	d.logger.Info("wrote file", "path", a.Path, "bytes", artifact.Size, "sha256", artifact.SHA256)
}

func (d *Dispatcher) run(ctx context.Context, a action.Run, state *runstate.AgentState) error {
	if d.runner == nil {
		d.fail(state, a, fmt.Errorf("no command runner configured"))
		return nil
	}

	result, err := d.runner.Run(ctx, a.Command, state.Cwd, a.TimeLimitSeconds)
	if err != nil {
		msg := err.Error()
		state.RecordRuntime(runstate.RuntimeRecord{Command: a.Command, Output: msg})
		state.LastOutput = msg
		state.SetError(msg)
		d.logger.Warn("command failed to start", "command", a.Command, "error", err)
		return nil
	}

	state.RecordRuntime(runstate.RuntimeRecord{
		Command:  a.Command,
		Output:   result.Stdout,
		ExitCode: result.ExitCode,
		TimedOut: result.TimedOut,
	})
	state.LastOutput = result.Stdout

	if err := ctx.Err(); err != nil {
		return err
	}

	if result.Failed() {
		state.SetError(failureText(a, result))
	}
	return nil
}

func (d *Dispatcher) fail(state *runstate.AgentState, act action.Action, err error) {
	d.logger.Warn("action failed", "step", act.Step(), "error", err)
	state.SetError(err.Error())
}

// failureText is the command output, or a notice when there was none
func failureText(a action.Run, result *runner.Result) string {
	if strings.TrimSpace(result.Stdout) != "" {
		return result.Stdout
	}
	if result.TimedOut {
		return fmt.Sprintf("command %q timed out after %s with no output", a.Command, runner.EffectiveLimit(a.TimeLimitSeconds))
	}
	if result.ExitCode != nil {
		return fmt.Sprintf("command %q exited with code %d and no output", a.Command, *result.ExitCode)
	}
	return fmt.Sprintf("command %q failed with no output", a.Command)
}

// workspaceRelative accepts an absolute path only when it lies under cwd,
// since the oracle sees absolute paths from observation.
func workspaceRelative(cwd, path string) (string, error) {
	if !filepath.IsAbs(path) {
		return path, nil
	}
	root, err := filepath.Abs(cwd)
	if err != nil {
		return "", fmt.Errorf("failed to resolve cwd: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}
	target := filepath.Clean(path)
	if resolved, err := filepath.EvalSymlinks(target); err == nil {
		target = resolved
	} else if resolvedDir, err := filepath.EvalSymlinks(filepath.Dir(target)); err == nil {
		target = filepath.Join(resolvedDir, filepath.Base(target))
	}
	rel, err := filepath.Rel(root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace: %s", path)
	}
	return rel, nil
}

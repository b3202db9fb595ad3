// Package runner executes shell commands with a hard wall-clock limit.
//
// Output (stdout and stderr merged) is drained by a background reader into a
// channel while the caller waits on the process, the deadline and its context.
// On timeout the whole process group is killed and the child is reaped before
// Run returns, and whatever output was produced is kept.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
)

const (
	// MinTimeLimitSeconds is the floor applied to every requested limit
	MinTimeLimitSeconds = 10

	// DefaultPollInterval bounds how long Run waits for trailing output
	// after the child has exited or been killed.
	DefaultPollInterval = 100 * time.Millisecond

	lineBuffer = 256
)

// Result is the outcome of one command
type Result struct {
	Stdout     string        `json:"stdout"`
	ExitCode   *int          `json:"exit_code,omitempty"`
	TimedOut   bool          `json:"timed_out"`
	Duration   time.Duration `json:"duration"`
	ErrorLines []string      `json:"error_lines,omitempty"`
}

// Failed reports whether the command timed out or exited nonzero
func (r *Result) Failed() bool {
	if r.TimedOut {
		return true
	}
	return r.ExitCode == nil || *r.ExitCode != 0
}

// Options configures a Runner
type Options struct {
	// Shell is the interpreter and flag used to run a command string,
	// e.g. ["/bin/sh", "-c"]. Defaults to the platform shell.
	Shell []string
	// PollInterval is the drain grace period after exit. Defaults to 100ms.
	PollInterval time.Duration
	// Env replaces the inherited environment when non-nil.
	Env    []string
	Logger *slog.Logger
}

// Runner launches commands. It is safe for sequential and concurrent use;
// each Run owns its own process and goroutines.
type Runner struct {
	shell        []string
	pollInterval time.Duration
	env          []string
	minLimit     time.Duration
	logger       *slog.Logger
}

// New creates a Runner
func New(opts Options) *Runner {
	r := &Runner{
		shell:        opts.Shell,
		pollInterval: opts.PollInterval,
		env:          opts.Env,
		minLimit:     MinTimeLimitSeconds * time.Second,
		logger:       opts.Logger,
	}
	if len(r.shell) == 0 {
		r.shell = defaultShell()
	}
	if r.pollInterval <= 0 {
		r.pollInterval = DefaultPollInterval
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// EffectiveLimit applies the minimum floor to a requested limit in seconds
func EffectiveLimit(timeLimitSeconds int) time.Duration {
	if timeLimitSeconds < MinTimeLimitSeconds {
		timeLimitSeconds = MinTimeLimitSeconds
	}
	return time.Duration(timeLimitSeconds) * time.Second
}

func (r *Runner) limitFor(timeLimitSeconds int) time.Duration {
	limit := time.Duration(timeLimitSeconds) * time.Second
	if limit < r.minLimit {
		limit = r.minLimit
	}
	return limit
}

// Run executes command in cwd through the shell and waits for it to exit,
// for the effective time limit to pass, or for ctx to be cancelled.
// The returned error is non-nil only when the process could not be started.
func (r *Runner) Run(ctx context.Context, command, cwd string, timeLimitSeconds int) (*Result, error) {
	limit := r.limitFor(timeLimitSeconds)

	args := append(append([]string{}, r.shell[1:]...), command)
	proc := exec.Command(r.shell[0], args...)
	proc.Dir = cwd
	if r.env != nil {
		proc.Env = r.env
	}
	setProcessGroup(proc)

	// One pipe for both streams keeps their relative order.
	readEnd, writeEnd, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create output pipe: %w", err)
	}
	proc.Stdout = writeEnd
	proc.Stderr = writeEnd

	r.logger.Info("running command", "command", command, "cwd", cwd, "limit", limit)

	start := time.Now()
	if err := proc.Start(); err != nil {
		readEnd.Close()
		writeEnd.Close()
		return nil, fmt.Errorf("failed to start command: %w", err)
	}
	// The child holds its own copy; ours must go so EOF can arrive.
	writeEnd.Close()

	lines := make(chan string, lineBuffer)
	readDone := make(chan struct{})
	go readLines(readEnd, lines, readDone)

	exitChan := make(chan error, 1)
	go func() {
		exitChan <- proc.Wait()
	}()

	timer := time.NewTimer(limit)
	defer timer.Stop()

	var out strings.Builder
	result := &Result{}

	var waitErr error
wait:
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			out.WriteString(line)

		case waitErr = <-exitChan:
			break wait

		case <-timer.C:
			result.TimedOut = true
			r.logger.Warn("command exceeded time limit, killing", "command", command, "limit", limit)
			killProcessGroup(proc)
			waitErr = <-exitChan
			break wait

		case <-ctx.Done():
			r.logger.Warn("command cancelled, killing", "command", command, "error", ctx.Err())
			killProcessGroup(proc)
			waitErr = <-exitChan
			break wait
		}
	}

	// Background children may keep the pipe open; give the reader one
	// quantum to reach EOF, then cut it off and take what it already has.
	grace := time.NewTimer(r.pollInterval)
	defer grace.Stop()
	for lines != nil {
		select {
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			out.WriteString(line)
		case <-grace.C:
			readEnd.Close()
		}
	}
	<-readDone
	readEnd.Close()

	result.Duration = time.Since(start)
	result.Stdout = out.String()
	result.ExitCode = exitCode(proc, waitErr)
	result.ErrorLines = DetectErrorLines(result.Stdout)

	for _, line := range result.ErrorLines {
		r.logger.Warn("command reported error", "command", command, "line", line)
	}

	attrs := []any{"command", command, "duration", result.Duration, "timed_out", result.TimedOut}
	if result.ExitCode != nil {
		attrs = append(attrs, "exit_code", *result.ExitCode)
	}
	r.logger.Info("command finished", attrs...)

	return result, nil
}

// readLines forwards r line by line (newlines kept) until EOF or close.
// Lines of any length are supported.
func readLines(r io.Reader, lines chan<- string, done chan<- struct{}) {
	defer close(done)
	defer close(lines)

	reader := bufio.NewReader(r)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			lines <- line
		}
		if err != nil {
			return
		}
	}
}

// exitCode extracts the exit status from a reaped process.
// A signal-terminated process reports -1, matching os.ProcessState.
func exitCode(proc *exec.Cmd, waitErr error) *int {
	if proc.ProcessState != nil {
		code := proc.ProcessState.ExitCode()
		return &code
	}
	var exitErr *exec.ExitError
	if errors.As(waitErr, &exitErr) {
		code := exitErr.ExitCode()
		return &code
	}
	return nil
}

// errorMarkers are substrings that flag a line as an error report
var errorMarkers = []string{
	"Traceback",
	"Error:",
	"Exception",
	"Segmentation fault",
	"ModuleNotFoundError",
	"panic:",
}

// DetectErrorLines returns the lines of output that look like error reports
func DetectErrorLines(output string) []string {
	var flagged []string
	for _, line := range strings.Split(output, "\n") {
		if IsErrorLine(line) {
			flagged = append(flagged, strings.TrimRight(line, "\r"))
		}
	}
	return flagged
}

// IsErrorLine reports whether a single output line looks like an error report
func IsErrorLine(line string) bool {
	for _, marker := range errorMarkers {
		if strings.Contains(line, marker) {
			return true
		}
	}
	return false
}

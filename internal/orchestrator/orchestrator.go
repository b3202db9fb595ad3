// Package orchestrator drives the agent loop: observe the project, ask the
// oracle for the next step, execute it, and repeat until the oracle is done.
//
// Only one action is in flight at a time. Action failures are fed back to the
// oracle through state.Error; an oracle protocol failure or context
// cancellation ends the run.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/iambrandonn/patchloop/internal/action"
	"github.com/iambrandonn/patchloop/internal/diff"
	"github.com/iambrandonn/patchloop/internal/observe"
	"github.com/iambrandonn/patchloop/internal/oracle"
	"github.com/iambrandonn/patchloop/internal/protocol"
	"github.com/iambrandonn/patchloop/internal/runstate"
)

// Oracle chooses the next step for a state
type Oracle interface {
	Decide(ctx context.Context, state *runstate.AgentState) (*protocol.Decision, error)
}

// IntentClassifier annotates a goal with its kind of work
type IntentClassifier interface {
	ClassifyIntent(ctx context.Context, goal string) (*protocol.Intent, error)
}

// Observer reports what changed under an entry file since the last run
type Observer interface {
	Observe(entryFile string) (*observe.Report, error)
}

// Dispatcher executes one step against the project
type Dispatcher interface {
	ApplyStep(ctx context.Context, step string, state *runstate.AgentState) error
}

// EventLogger writes run events and diagnostics to persistent storage
type EventLogger interface {
	WriteEvent(*protocol.Event) error
	WriteLog(*protocol.Log) error
}

// StateSaver persists the agent state
type StateSaver interface {
	SaveState(*runstate.AgentState) error
}

// FileLister seeds the working set when no entry file is configured
type FileLister func(root string) ([]string, error)

// State is a node of the loop's state machine
type State string

const (
	StateIntent  State = "intent"
	StateObserve State = "observe"
	StatePlan    State = "plan"
	StateExecute State = "execute"
	StateApply   State = "apply"
	StateDone    State = "done"
)

// ErrCycleLimit is returned when the oracle has not finished within MaxCycles
var ErrCycleLimit = errors.New("cycle limit reached")

var errNoDecision = errors.New("oracle returned no decision")

// Options configures an Orchestrator. Oracle and Dispatcher are required.
type Options struct {
	Oracle     Oracle
	Classifier IntentClassifier
	Observer   Observer
	EntryFiles []string
	ListFiles  FileLister
	Dispatcher Dispatcher

	Events EventLogger
	Saver  StateSaver
	// OnEvent is called with every emitted event, after it is logged
	OnEvent func(*protocol.Event)

	// MaxCycles bounds oracle calls per run; zero means unbounded
	MaxCycles int
	Logger    *slog.Logger
}

// Orchestrator runs the agent loop
type Orchestrator struct {
	opts   Options
	logger *slog.Logger
	seq    atomic.Int64
}

// New creates an orchestrator
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{opts: opts, logger: logger}
}

// Run drives state until the oracle reports done. The state is mutated in
// place and persisted after every transition. A non-nil error means the run
// failed (oracle protocol error, cycle limit) or was aborted (ctx.Err()).
func (o *Orchestrator) Run(ctx context.Context, state *runstate.AgentState) error {
	if o.opts.Oracle == nil || o.opts.Dispatcher == nil {
		return errors.New("orchestrator requires an oracle and a dispatcher")
	}

	o.seq.Store(0)
	o.logger.Info("starting run", "run_id", state.RunID, "goal", state.Goal, "cwd", state.Cwd)
	o.emit(state, protocol.EventRunStarted, "", "", protocol.StatusOK, map[string]any{"goal": state.Goal})

	current := StateObserve
	if o.opts.Classifier != nil {
		current = StateIntent
	}

	var pending action.Action
	for {
		if err := ctx.Err(); err != nil {
			return o.abort(state, current, err)
		}

		o.enter(state, current)

		var (
			next State
			err  error
		)
		switch current {
		case StateIntent:
			o.classify(ctx, state)
			next = StateObserve
		case StateObserve:
			o.observe(state)
			next = StatePlan
		case StatePlan:
			next, pending, err = o.plan(ctx, state)
		case StateExecute:
			next, err = o.execute(ctx, state, pending)
		case StateApply:
			next, pending = o.advance(state)
		case StateDone:
			state.MarkCompleted()
			o.persist(state)
			o.logger.Info("run completed", "run_id", state.RunID, "cycles", state.Cycles, "steps", len(state.ExecutionHistory))
			o.emit(state, protocol.EventRunCompleted, string(StateDone), "", protocol.StatusOK, map[string]any{"answer": answerOf(state)})
			return nil
		default:
			err = fmt.Errorf("unknown loop state %q", current)
		}

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(err, ctxErr) {
				return o.abort(state, current, ctxErr)
			}
			return o.fail(state, current, err)
		}
		current = next
	}
}

func (o *Orchestrator) classify(ctx context.Context, state *runstate.AgentState) {
	intent, err := o.opts.Classifier.ClassifyIntent(ctx, state.Goal)
	if err != nil {
		o.logger.Warn("intent classification failed", "error", err)
		return
	}
	state.Intent = intent
	o.emit(state, protocol.EventIntent, string(StateIntent), "", protocol.StatusOK, map[string]any{
		"intent": intent.Intent,
		"type":   string(intent.Type),
	})
}

func (o *Orchestrator) observe(state *runstate.AgentState) {
	if len(o.opts.EntryFiles) == 0 || o.opts.Observer == nil {
		o.seedFiles(state)
		return
	}

	if state.ChangedFiles == nil {
		state.ChangedFiles = make(map[string]string)
	}

	var warnings int
	for _, entry := range o.opts.EntryFiles {
		report, err := o.opts.Observer.Observe(entry)
		if err != nil {
			o.logger.Warn("observation failed", "entry_file", entry, "error", err)
			o.record(protocol.LogLevelWarn, "observation failed", map[string]any{"entry_file": entry, "error": err.Error()})
			warnings++
			continue
		}
		diff.Result(state.ChangedFiles).Merge(report.Changes)
		for _, path := range report.Snapshot.Paths() {
			state.TrackFile(path)
		}
		for _, w := range report.Warnings {
			o.record(protocol.LogLevelWarn, "import not resolved", map[string]any{"entry_file": entry, "warning": w.String()})
		}
		warnings += len(report.Warnings)
	}

	o.emit(state, protocol.EventObserved, string(StateObserve), "", protocol.StatusOK, map[string]any{
		"changed_files": len(state.ChangedFiles),
		"files":         len(state.Files),
		"warnings":      warnings,
	})
}

func (o *Orchestrator) seedFiles(state *runstate.AgentState) {
	if o.opts.ListFiles == nil {
		return
	}
	files, err := o.opts.ListFiles(state.Cwd)
	if err != nil {
		o.logger.Warn("failed to list working set", "cwd", state.Cwd, "error", err)
		return
	}
	for _, path := range files {
		state.TrackFile(path)
	}
	o.logger.Debug("seeded working set", "files", len(state.Files))
}

func (o *Orchestrator) plan(ctx context.Context, state *runstate.AgentState) (State, action.Action, error) {
	if o.opts.MaxCycles > 0 && state.Cycles >= o.opts.MaxCycles {
		return "", nil, fmt.Errorf("%w after %d oracle calls", ErrCycleLimit, state.Cycles)
	}
	state.Cycles++

	decision, err := o.opts.Oracle.Decide(ctx, state)
	if err != nil {
		return "", nil, fmt.Errorf("failed to get decision: %w", err)
	}
	if err := checkDecision(decision); err != nil {
		return "", nil, fmt.Errorf("failed to get decision: %w", err)
	}

	steps := decision.Steps()
	first := ""
	if len(steps) > 0 {
		first = steps[0]
	}

	o.emit(state, protocol.EventDecision, string(StatePlan), first, protocol.StatusOK, map[string]any{
		"action":    string(decision.Action),
		"plan_size": len(decision.Plan),
	})

	if decision.Action == protocol.DecisionDone {
		state.SetAnswer(decision.Answer)
		state.SetCurrentStep("")
		return StateDone, nil, nil
	}

	state.Plan = steps
	state.StepIndex = 0
	state.SetAnswer(decision.Answer)
	state.ClearError()

	act, ok := o.decode(state, state.Plan[state.StepIndex])
	if !ok {
		return StatePlan, nil, nil
	}
	return StateExecute, act, nil
}

// checkDecision rejects decisions an oracle should never return
func checkDecision(decision *protocol.Decision) error {
	if decision == nil {
		return &oracle.ProtocolError{Op: "decide", Err: errNoDecision}
	}
	if err := decision.Validate(); err != nil {
		return &oracle.ProtocolError{Op: "decide", Err: err}
	}
	if decision.Action == protocol.DecisionNext && len(decision.Steps()) == 0 {
		return &oracle.ProtocolError{Op: "decide", Err: protocol.ErrMissingStep}
	}
	return nil
}

// decode parses step and makes it current. A malformed step is recorded in
// state.Error instead.
func (o *Orchestrator) decode(state *runstate.AgentState, step string) (action.Action, bool) {
	act, err := action.Parse(step)
	if err != nil {
		o.logger.Warn("rejected step", "step", step, "error", err)
		state.SetCurrentStep("")
		state.SetError(err.Error())
		o.emit(state, protocol.EventStepRejected, string(StatePlan), step, protocol.StatusError, map[string]any{"error": err.Error()})
		return nil, false
	}
	state.SetCurrentStep(step)
	return act, true
}

func (o *Orchestrator) execute(ctx context.Context, state *runstate.AgentState, act action.Action) (State, error) {
	if state.CurrentStep == nil || act == nil {
		return StatePlan, nil
	}
	step := *state.CurrentStep
	runs := len(state.RuntimeContext)

	start := time.Now()
	if err := o.opts.Dispatcher.ApplyStep(ctx, step, state); err != nil {
		return "", err
	}

	payload := map[string]any{"kind": string(act.Kind()), "duration_ms": time.Since(start).Milliseconds()}
	if len(state.RuntimeContext) > runs {
		rec := state.RuntimeContext[len(state.RuntimeContext)-1]
		payload["output_bytes"] = len(rec.Output)
		payload["timed_out"] = rec.TimedOut
		if rec.ExitCode != nil {
			payload["exit_code"] = *rec.ExitCode
		}
	}
	status := protocol.StatusOK
	if state.HasError() {
		status = protocol.StatusError
		payload["error"] = state.ErrorText()
	}
	o.emit(state, protocol.EventActionExecuted, string(StateExecute), step, status, payload)

	if state.HasError() || act.Kind() == action.KindRead {
		return StatePlan, nil
	}
	return StateApply, nil
}

// advance moves to the next queued step. A single step returns to the
// oracle; an exhausted multi-step plan ends the run.
func (o *Orchestrator) advance(state *runstate.AgentState) (State, action.Action) {
	if len(state.Plan) <= 1 {
		return StatePlan, nil
	}
	if state.StepIndex+1 >= len(state.Plan) {
		return StateDone, nil
	}
	state.StepIndex++
	act, ok := o.decode(state, state.Plan[state.StepIndex])
	if !ok {
		return StatePlan, nil
	}
	return StateExecute, act
}

func (o *Orchestrator) fail(state *runstate.AgentState, at State, err error) error {
	state.SetError(err.Error())
	state.MarkFailed()
	o.persist(state)
	o.logger.Error("run failed", "run_id", state.RunID, "state", at, "error", err)
	o.emit(state, protocol.EventRunFailed, string(at), "", protocol.StatusError, map[string]any{"error": err.Error()})
	return fmt.Errorf("run %s failed in %s: %w", state.RunID, at, err)
}

func (o *Orchestrator) abort(state *runstate.AgentState, at State, err error) error {
	state.MarkAborted()
	o.persist(state)
	o.logger.Warn("run aborted", "run_id", state.RunID, "state", at, "error", err)
	o.emit(state, protocol.EventRunAborted, string(at), "", protocol.StatusError, map[string]any{"error": err.Error()})
	return err
}

// enter records a transition and checkpoints the state
func (o *Orchestrator) enter(state *runstate.AgentState, s State) {
	o.logger.Debug("entering state", "state", s, "cycle", state.Cycles, "step_index", state.StepIndex)
	o.persist(state)
	o.emit(state, protocol.EventStateEntered, string(s), stepOf(state), "", nil)
}

func (o *Orchestrator) persist(state *runstate.AgentState) {
	if o.opts.Saver == nil {
		return
	}
	if err := o.opts.Saver.SaveState(state); err != nil {
		o.logger.Warn("failed to save state", "run_id", state.RunID, "error", err)
	}
}

func (o *Orchestrator) emit(state *runstate.AgentState, name, at, step, status string, payload map[string]any) {
	evt := &protocol.Event{
		Kind:       protocol.MessageKindEvent,
		MessageID:  uuid.New().String(),
		RunID:      state.RunID,
		Seq:        o.seq.Add(1),
		Event:      name,
		State:      at,
		Step:       step,
		Status:     status,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}

	if o.opts.Events != nil {
		if err := o.opts.Events.WriteEvent(evt); err != nil {
			o.logger.Warn("failed to log event", "event", name, "error", err)
		}
	}
	if o.opts.OnEvent != nil {
		o.opts.OnEvent(evt)
	}
}

// record appends a diagnostic to the run ledger
func (o *Orchestrator) record(level protocol.LogLevel, msg string, fields map[string]any) {
	if o.opts.Events == nil {
		return
	}
	err := o.opts.Events.WriteLog(&protocol.Log{
		Kind:      protocol.MessageKindLog,
		Level:     level,
		Message:   msg,
		Fields:    fields,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		o.logger.Warn("failed to log diagnostic", "message", msg, "error", err)
	}
}

func stepOf(state *runstate.AgentState) string {
	if state.CurrentStep == nil {
		return ""
	}
	return *state.CurrentStep
}

func answerOf(state *runstate.AgentState) string {
	if state.Answer == nil {
		return ""
	}
	return *state.Answer
}

package protocol

import (
	"time"
)

// MessageKind represents the envelope type written to the event ledger
type MessageKind string

const (
	MessageKindEvent MessageKind = "event"
	MessageKindLog   MessageKind = "log"
)

// Event records one loop transition or notable occurrence in a run
type Event struct {
	Kind       MessageKind    `json:"kind"`
	MessageID  string         `json:"message_id"`
	RunID      string         `json:"run_id"`
	Seq        int64          `json:"seq"`
	Event      string         `json:"event"`
	State      string         `json:"state,omitempty"`
	Step       string         `json:"step,omitempty"`
	Status     string         `json:"status,omitempty"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// LogLevel represents log severity
type LogLevel string

const (
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Log is a diagnostic message kept alongside events
type Log struct {
	Kind      MessageKind    `json:"kind"`
	Level     LogLevel       `json:"level"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Well-known event types
const (
	// Lifecycle
	EventRunStarted   = "run.started"
	EventRunCompleted = "run.completed"
	EventRunFailed    = "run.failed"
	EventRunAborted   = "run.aborted"

	// Loop
	EventStateEntered   = "loop.state"
	EventIntent         = "intent.classified"
	EventObserved       = "observe.completed"
	EventDecision       = "oracle.decision"
	EventStepRejected   = "step.rejected"
	EventActionExecuted = "action.executed"
)

// Event statuses
const (
	StatusOK    = "ok"
	StatusError = "error"
)

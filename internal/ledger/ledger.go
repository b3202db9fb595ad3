package ledger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/iambrandonn/patchloop/internal/ndjson"
	"github.com/iambrandonn/patchloop/internal/protocol"
)

// Ledger is a parsed run event log
type Ledger struct {
	Events []*protocol.Event
	Logs   []*protocol.Log
}

// ReadLedger reads and parses an NDJSON ledger file
func ReadLedger(path string) (*Ledger, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	defer file.Close()

	ledger := &Ledger{
		Events: make([]*protocol.Event, 0),
		Logs:   make([]*protocol.Log, 0),
	}

	decoder := ndjson.NewDecoder(file, slog.New(slog.DiscardHandler))
	for {
		msg, err := decoder.DecodeEnvelope()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch m := msg.(type) {
		case *protocol.Event:
			ledger.Events = append(ledger.Events, m)
		case *protocol.Log:
			ledger.Logs = append(ledger.Logs, m)
		}
	}

	return ledger, nil
}

// RunID returns the run the ledger belongs to, taken from its first event
func (l *Ledger) RunID() string {
	for _, evt := range l.Events {
		if evt.RunID != "" {
			return evt.RunID
		}
	}
	return ""
}

// Terminal returns the last run-ending event, or nil if the run never finished
func (l *Ledger) Terminal() *protocol.Event {
	var last *protocol.Event
	for _, evt := range l.Events {
		if IsTerminalEvent(evt.Event) {
			last = evt
		}
	}
	return last
}

// ExecutedSteps returns the steps recorded by action events, in order
func (l *Ledger) ExecutedSteps() []string {
	steps := make([]string, 0)
	for _, evt := range l.Events {
		if evt.Event == protocol.EventActionExecuted && evt.Step != "" {
			steps = append(steps, evt.Step)
		}
	}
	return steps
}

// LastSeq returns the highest sequence number seen
func (l *Ledger) LastSeq() int64 {
	var seq int64
	for _, evt := range l.Events {
		if evt.Seq > seq {
			seq = evt.Seq
		}
	}
	return seq
}

// IsTerminalEvent reports whether an event type ends a run
func IsTerminalEvent(eventType string) bool {
	switch eventType {
	case protocol.EventRunCompleted,
		protocol.EventRunFailed,
		protocol.EventRunAborted:
		return true
	default:
		return false
	}
}

package eventlog

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/iambrandonn/patchloop/internal/ndjson"
	"github.com/iambrandonn/patchloop/internal/protocol"
)

// EventLog appends run events to an NDJSON file
type EventLog struct {
	path    string
	file    *os.File
	encoder *ndjson.Encoder
	logger  *slog.Logger
	mu      sync.Mutex
}

// PathFor returns the standard ledger path for a run under the storage dir
func PathFor(storageDir, runID string) string {
	return filepath.Join(storageDir, "events", runID+".ndjson")
}

// NewEventLog opens (or creates) the ledger at logPath for appending
func NewEventLog(logPath string, logger *slog.Logger) (*EventLog, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	return &EventLog{
		path:    logPath,
		file:    file,
		encoder: ndjson.NewEncoder(file, logger),
		logger:  logger,
	}, nil
}

// Path returns the ledger file path
func (l *EventLog) Path() string {
	return l.path
}

// WriteEvent appends an event
func (l *EventLog) WriteEvent(evt *protocol.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if evt.Kind == "" {
		evt.Kind = protocol.MessageKindEvent
	}
	return l.encoder.Encode(evt)
}

// WriteLog appends a diagnostic record
func (l *EventLog) WriteLog(log *protocol.Log) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if log.Kind == "" {
		log.Kind = protocol.MessageKindLog
	}
	return l.encoder.Encode(log)
}

// Close closes the event log file
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

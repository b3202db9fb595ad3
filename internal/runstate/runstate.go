package runstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/iambrandonn/patchloop/internal/fsutil"
	"github.com/iambrandonn/patchloop/internal/protocol"
)

// Status represents the overall state of a run
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusAborted   Status = "aborted"
)

// RuntimeRecord is one executed command and what it produced
type RuntimeRecord struct {
	Command  string `json:"command"`
	Output   string `json:"output"`
	ExitCode *int   `json:"exit_code,omitempty"`
	TimedOut bool   `json:"timed_out,omitempty"`
}

// AgentState is the working memory of one agent invocation. It is created
// once, mutated in place by each loop step, and persisted after every
// transition.
type AgentState struct {
	RunID       string     `json:"run_id"`
	Status      Status     `json:"status"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Goal   string           `json:"goal"`
	Cwd    string           `json:"cwd"`
	Intent *protocol.Intent `json:"intent,omitempty"`

	Files        []string          `json:"files"`
	FileContext  map[string]string `json:"file_context"`
	ChangedFiles map[string]string `json:"changed_files,omitempty"`

	Plan        []string `json:"plan,omitempty"`
	StepIndex   int      `json:"step_index"`
	CurrentStep *string  `json:"current_step,omitempty"`

	LastOutput       string          `json:"last_output"`
	Error            *string         `json:"error,omitempty"`
	RuntimeContext   []RuntimeRecord `json:"runtime_context"`
	ExecutionHistory []string        `json:"execution_history"`

	Cycles int     `json:"cycles"`
	Done   bool    `json:"done"`
	Answer *string `json:"answer,omitempty"`
}

// NewRunID returns an identifier of the form run-<utc timestamp>-<8 hex>
func NewRunID() string {
	return fmt.Sprintf("run-%s-%s", time.Now().UTC().Format("20060102-150405"), uuid.New().String()[:8])
}

// NewAgentState creates the state for a fresh run
func NewAgentState(goal, cwd string) *AgentState {
	return &AgentState{
		RunID:            NewRunID(),
		Status:           StatusRunning,
		StartedAt:        time.Now().UTC(),
		Goal:             goal,
		Cwd:              cwd,
		Files:            []string{},
		FileContext:      make(map[string]string),
		RuntimeContext:   []RuntimeRecord{},
		ExecutionHistory: []string{},
	}
}

// SetError records a recoverable failure
func (s *AgentState) SetError(msg string) {
	s.Error = &msg
}

// ClearError drops any recorded failure
func (s *AgentState) ClearError() {
	s.Error = nil
}

// HasError reports whether the last step failed
func (s *AgentState) HasError() bool {
	return s.Error != nil
}

// ErrorText returns the recorded failure or ""
func (s *AgentState) ErrorText() string {
	if s.Error == nil {
		return ""
	}
	return *s.Error
}

// SetCurrentStep records the step about to execute. Empty clears it.
func (s *AgentState) SetCurrentStep(step string) {
	if step == "" {
		s.CurrentStep = nil
		return
	}
	s.CurrentStep = &step
}

// SetAnswer records the oracle's user-facing answer. Empty clears it.
func (s *AgentState) SetAnswer(answer string) {
	if answer == "" {
		s.Answer = nil
		return
	}
	s.Answer = &answer
}

// TrackFile adds path to the working set if absent
func (s *AgentState) TrackFile(path string) {
	if !slices.Contains(s.Files, path) {
		s.Files = append(s.Files, path)
	}
}

// IsTracked reports whether path has content in FileContext
func (s *AgentState) IsTracked(path string) bool {
	if s.FileContext == nil {
		return false
	}
	_, ok := s.FileContext[path]
	return ok
}

// RecordStep appends an executed step to the history
func (s *AgentState) RecordStep(step string) {
	s.ExecutionHistory = append(s.ExecutionHistory, step)
}

// RecordRuntime appends a command record
func (s *AgentState) RecordRuntime(rec RuntimeRecord) {
	s.RuntimeContext = append(s.RuntimeContext, rec)
}

// MarkCompleted marks the run as completed
func (s *AgentState) MarkCompleted() {
	s.Done = true
	s.Status = StatusCompleted
	now := time.Now().UTC()
	s.CompletedAt = &now
}

// MarkFailed marks the run as failed
func (s *AgentState) MarkFailed() {
	s.Status = StatusFailed
	now := time.Now().UTC()
	s.CompletedAt = &now
}

// MarkAborted marks the run as aborted
func (s *AgentState) MarkAborted() {
	s.Status = StatusAborted
	now := time.Now().UTC()
	s.CompletedAt = &now
}

// Save writes agent state to disk atomically
func Save(state *AgentState, path string) error {
	return fsutil.AtomicWriteJSON(path, state)
}

// Load reads agent state from disk
func Load(path string) (*AgentState, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read agent state: %w", err)
	}

	var state AgentState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal agent state: %w", err)
	}

	if state.FileContext == nil {
		state.FileContext = make(map[string]string)
	}
	if state.Files == nil {
		state.Files = []string{}
	}

	return &state, nil
}

// StatePath returns the standard path for a run's state under the storage dir
func StatePath(storageDir, runID string) string {
	return filepath.Join(storageDir, "state", runID+".json")
}

// Saver persists state to a fixed storage directory
type Saver struct {
	dir string
}

// NewSaver creates a saver rooted at storageDir
func NewSaver(storageDir string) *Saver {
	return &Saver{dir: storageDir}
}

// SaveState writes state to its standard path
func (s *Saver) SaveState(state *AgentState) error {
	return Save(state, StatePath(s.dir, state.RunID))
}

package runstate

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"github.com/iambrandonn/patchloop/internal/protocol"
)

func TestNewAgentState(t *testing.T) {
	state := NewAgentState("fix the tests", "/proj")

	if state.Goal != "fix the tests" {
		t.Errorf("Goal = %q, want %q", state.Goal, "fix the tests")
	}
	if state.Cwd != "/proj" {
		t.Errorf("Cwd = %q, want /proj", state.Cwd)
	}
	if state.Status != StatusRunning {
		t.Errorf("Status = %s, want %s", state.Status, StatusRunning)
	}
	if state.StartedAt.IsZero() {
		t.Error("StartedAt is zero")
	}
	if state.Done {
		t.Error("new state must not be done")
	}
	if state.FileContext == nil || state.Files == nil {
		t.Error("collections must be initialized")
	}
	if len(state.ExecutionHistory) != 0 || len(state.RuntimeContext) != 0 {
		t.Error("history must start empty")
	}
}

func TestNewRunIDFormat(t *testing.T) {
	pattern := regexp.MustCompile(`^run-\d{8}-\d{6}-[0-9a-f]{8}$`)
	id := NewRunID()
	if !pattern.MatchString(id) {
		t.Errorf("run ID %q does not match %s", id, pattern)
	}
	if NewRunID() == id {
		t.Error("run IDs must be unique")
	}
}

func TestErrorHelpers(t *testing.T) {
	state := NewAgentState("g", "/")
	if state.HasError() || state.ErrorText() != "" {
		t.Fatal("fresh state has no error")
	}

	state.SetError("boom")
	if !state.HasError() || state.ErrorText() != "boom" {
		t.Errorf("ErrorText = %q, want boom", state.ErrorText())
	}

	state.ClearError()
	if state.HasError() {
		t.Error("error should be cleared")
	}
}

func TestTrackFileDeduplicates(t *testing.T) {
	state := NewAgentState("g", "/")
	state.TrackFile("a.py")
	state.TrackFile("b.py")
	state.TrackFile("a.py")

	if len(state.Files) != 2 {
		t.Errorf("Files = %v, want two entries", state.Files)
	}
}

func TestOptionalStrings(t *testing.T) {
	state := NewAgentState("g", "/")

	state.SetCurrentStep("read::a.py")
	if state.CurrentStep == nil || *state.CurrentStep != "read::a.py" {
		t.Errorf("CurrentStep = %v", state.CurrentStep)
	}
	state.SetCurrentStep("")
	if state.CurrentStep != nil {
		t.Error("empty step should clear CurrentStep")
	}

	state.SetAnswer("42")
	if state.Answer == nil || *state.Answer != "42" {
		t.Errorf("Answer = %v", state.Answer)
	}
	state.SetAnswer("")
	if state.Answer != nil {
		t.Error("empty answer should clear Answer")
	}
}

func TestMarkTransitions(t *testing.T) {
	tests := []struct {
		name   string
		mark   func(*AgentState)
		status Status
		done   bool
	}{
		{"completed", (*AgentState).MarkCompleted, StatusCompleted, true},
		{"failed", (*AgentState).MarkFailed, StatusFailed, false},
		{"aborted", (*AgentState).MarkAborted, StatusAborted, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := NewAgentState("g", "/")
			tt.mark(state)
			if state.Status != tt.status {
				t.Errorf("Status = %s, want %s", state.Status, tt.status)
			}
			if state.Done != tt.done {
				t.Errorf("Done = %v, want %v", state.Done, tt.done)
			}
			if state.CompletedAt == nil {
				t.Error("CompletedAt not set")
			}
		})
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()

	original := NewAgentState("make it pass", "/work")
	original.Intent = &protocol.Intent{Intent: "fix failing test", Type: protocol.IntentDebug}
	original.TrackFile("main.py")
	original.FileContext["main.py"] = "print('hi')\n"
	original.RecordStep("read::main.py")
	code := 1
	original.RecordRuntime(RuntimeRecord{Command: "python main.py", Output: "Traceback", ExitCode: &code})
	original.SetError("Traceback")
	original.Cycles = 3

	saver := NewSaver(dir)
	if err := saver.SaveState(original); err != nil {
		t.Fatalf("SaveState() error = %v", err)
	}

	path := StatePath(dir, original.RunID)
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("state file not created: %v", err)
	}
	if filepath.Base(filepath.Dir(path)) != "state" {
		t.Errorf("state path %s should live under state/", path)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if loaded.RunID != original.RunID {
		t.Errorf("RunID = %s, want %s", loaded.RunID, original.RunID)
	}
	if loaded.Intent == nil || loaded.Intent.Type != protocol.IntentDebug {
		t.Errorf("Intent = %+v", loaded.Intent)
	}
	if loaded.FileContext["main.py"] != "print('hi')\n" {
		t.Errorf("FileContext lost content: %v", loaded.FileContext)
	}
	if len(loaded.RuntimeContext) != 1 || loaded.RuntimeContext[0].ExitCode == nil || *loaded.RuntimeContext[0].ExitCode != 1 {
		t.Errorf("RuntimeContext = %+v", loaded.RuntimeContext)
	}
	if loaded.ErrorText() != "Traceback" {
		t.Errorf("Error = %q", loaded.ErrorText())
	}
	if loaded.Cycles != 3 {
		t.Errorf("Cycles = %d, want 3", loaded.Cycles)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Error("expected error for missing state file")
	}
}

func TestLoadInitializesCollections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.json")
	if err := os.WriteFile(path, []byte(`{"run_id":"run-x","status":"running"}`), 0600); err != nil {
		t.Fatal(err)
	}

	state, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if state.FileContext == nil || state.Files == nil {
		t.Error("Load must initialize nil collections")
	}
}

package protocol

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestEventSerialization(t *testing.T) {
	evt := Event{
		Kind:       MessageKindEvent,
		MessageID:  "evt-01",
		RunID:      "run-20261019-120000-abcd1234",
		Seq:        4,
		Event:      EventActionExecuted,
		State:      "execute",
		Step:       "run::pytest::30",
		Status:     StatusError,
		Payload:    map[string]any{"exit_code": float64(1)},
		OccurredAt: time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
	}

	data, err := json.Marshal(evt)
	if err != nil {
		t.Fatalf("failed to marshal event: %v", err)
	}

	var decoded Event
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("failed to unmarshal event: %v", err)
	}

	if diff := cmp.Diff(evt, decoded); diff != "" {
		t.Errorf("event mismatch (-want +got):\n%s", diff)
	}
}

func TestDecisionUnmarshal(t *testing.T) {
	tests := []struct {
		name string
		json string
		want Decision
	}{
		{
			name: "next with answer",
			json: `{"action":"next","step":"read::a.py","answer":"looking"}`,
			want: Decision{Action: DecisionNext, Step: "read::a.py", Answer: "looking"},
		},
		{
			name: "ans alias",
			json: `{"action":"done","step":null,"ans":"all good"}`,
			want: Decision{Action: DecisionDone, Answer: "all good"},
		},
		{
			name: "answer wins over ans",
			json: `{"action":"done","answer":"a","ans":"b"}`,
			want: Decision{Action: DecisionDone, Answer: "a"},
		},
		{
			name: "null answer falls back to ans",
			json: `{"action":"done","answer":null,"ans":"b"}`,
			want: Decision{Action: DecisionDone, Answer: "b"},
		},
		{
			name: "plan",
			json: `{"action":"next","step":"run::make::20","plan":["run::make::20","run::make test::60"]}`,
			want: Decision{Action: DecisionNext, Step: "run::make::20", Plan: []string{"run::make::20", "run::make test::60"}},
		},
		{
			name: "action normalized",
			json: `{"action":" DONE "}`,
			want: Decision{Action: DecisionDone},
		},
		{
			name: "structured answer kept as JSON",
			json: `{"action":"done","ans":{"files":2}}`,
			want: Decision{Action: DecisionDone, Answer: `{"files":2}`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got Decision
			if err := json.Unmarshal([]byte(tt.json), &got); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("decision mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecisionValidate(t *testing.T) {
	tests := []struct {
		name    string
		d       Decision
		wantErr error
	}{
		{"done", Decision{Action: DecisionDone}, nil},
		{"next with step", Decision{Action: DecisionNext, Step: "read::a"}, nil},
		{"next with plan only", Decision{Action: DecisionNext, Plan: []string{"read::a"}}, nil},
		{"next without step", Decision{Action: DecisionNext}, ErrMissingStep},
		{"unknown action", Decision{Action: "update_plan"}, ErrUnknownDecisionAction},
		{"empty action", Decision{}, ErrUnknownDecisionAction},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.d.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecisionSteps(t *testing.T) {
	tests := []struct {
		name string
		d    Decision
		want []string
	}{
		{"step only", Decision{Step: "a"}, []string{"a"}},
		{"plan repeats step", Decision{Step: "a", Plan: []string{"a", "b"}}, []string{"a", "b"}},
		{"plan without step", Decision{Plan: []string{"a", "b"}}, []string{"a", "b"}},
		{"step prepended", Decision{Step: "x", Plan: []string{"a", "", "b"}}, []string{"x", "a", "b"}},
		{"nothing", Decision{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.d.Steps()); diff != "" {
				t.Errorf("Steps() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestIntentValidate(t *testing.T) {
	for _, typ := range []IntentType{IntentCreate, IntentDebug, IntentImprove} {
		i := Intent{Intent: "x", Type: typ}
		if err := i.Validate(); err != nil {
			t.Errorf("Validate(%s) error = %v", typ, err)
		}
	}

	bad := Intent{Intent: "x", Type: "refactor"}
	if err := bad.Validate(); !errors.Is(err, ErrInvalidIntentType) {
		t.Errorf("Validate() error = %v, want ErrInvalidIntentType", err)
	}
}

func TestDebugRequestValidate(t *testing.T) {
	req := DebugRequest{EntryFile: "  "}
	if err := req.Validate(); !errors.Is(err, ErrMissingEntryFile) {
		t.Errorf("Validate() error = %v, want ErrMissingEntryFile", err)
	}

	req.EntryFile = "main.py"
	if err := req.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// DecisionAction is the oracle's choice for the next cycle
type DecisionAction string

const (
	DecisionNext DecisionAction = "next"
	DecisionDone DecisionAction = "done"
)

var (
	// ErrUnknownDecisionAction indicates the action field is neither next nor done.
	ErrUnknownDecisionAction = errors.New("protocol: decision action must be \"next\" or \"done\"")
	// ErrMissingStep indicates a next decision without a step.
	ErrMissingStep = errors.New("protocol: next decision requires a step")
	// ErrInvalidIntentType indicates an intent type outside create/debug/improve.
	ErrInvalidIntentType = errors.New("protocol: intent type must be create, debug or improve")
)

// Decision is one oracle response.
//
// On the wire the answer may be sent as "answer" or "ans"; either may be null.
// Non-string answers are kept as their JSON text.
type Decision struct {
	Action DecisionAction `json:"action"`
	Step   string         `json:"step,omitempty"`
	Answer string         `json:"answer,omitempty"`
	Plan   []string       `json:"plan,omitempty"`
}

type wireDecision struct {
	Action DecisionAction  `json:"action"`
	Step   *string         `json:"step"`
	Answer json.RawMessage `json:"answer"`
	Ans    json.RawMessage `json:"ans"`
	Plan   []string        `json:"plan"`
}

// UnmarshalJSON accepts the "ans" alias and null optional fields
func (d *Decision) UnmarshalJSON(data []byte) error {
	var w wireDecision
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	d.Action = DecisionAction(strings.ToLower(strings.TrimSpace(string(w.Action))))
	d.Step = ""
	if w.Step != nil {
		d.Step = *w.Step
	}
	d.Plan = w.Plan

	raw := w.Answer
	if isNull(raw) {
		raw = w.Ans
	}
	answer, err := answerText(raw)
	if err != nil {
		return fmt.Errorf("failed to decode answer: %w", err)
	}
	d.Answer = answer
	return nil
}

// Validate checks the decision shape
func (d *Decision) Validate() error {
	switch d.Action {
	case DecisionDone:
		return nil
	case DecisionNext:
		if strings.TrimSpace(d.Step) == "" && len(d.Plan) == 0 {
			return ErrMissingStep
		}
		return nil
	default:
		return fmt.Errorf("%w (got %q)", ErrUnknownDecisionAction, d.Action)
	}
}

// Steps returns the steps the decision asks to run, in order: the step
// itself first, then any queued plan entries not equal to it.
func (d *Decision) Steps() []string {
	var steps []string
	if s := strings.TrimSpace(d.Step); s != "" {
		steps = append(steps, d.Step)
	}
	for i, p := range d.Plan {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if i == 0 && len(steps) == 1 && p == steps[0] {
			continue
		}
		steps = append(steps, p)
	}
	return steps
}

func isNull(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

func answerText(raw json.RawMessage) (string, error) {
	if isNull(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", err
	}
	return string(bytes.TrimSpace(raw)), nil
}

// IntentType classifies what the user wants done
type IntentType string

const (
	IntentCreate  IntentType = "create"
	IntentDebug   IntentType = "debug"
	IntentImprove IntentType = "improve"
)

// Intent is the classification of a goal
type Intent struct {
	Intent string     `json:"intent"`
	Type   IntentType `json:"type"`
}

// Validate checks the intent type
func (i *Intent) Validate() error {
	switch i.Type {
	case IntentCreate, IntentDebug, IntentImprove:
		return nil
	default:
		return fmt.Errorf("%w (got %q)", ErrInvalidIntentType, i.Type)
	}
}

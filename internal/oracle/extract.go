package oracle

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/iambrandonn/patchloop/internal/protocol"
)

// ErrNoJSONObject indicates the model reply contained no {...} block
var ErrNoJSONObject = errors.New("no JSON object found in model output")

var fencePattern = regexp.MustCompile("(?i)```(?:json)?")

// ExtractJSONObject strips markdown fences and returns the text from the
// first '{' to the last '}'.
func ExtractJSONObject(text string) (string, error) {
	cleaned := strings.TrimSpace(fencePattern.ReplaceAllString(text, ""))

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end == -1 || end <= start {
		return "", ErrNoJSONObject
	}
	return cleaned[start : end+1], nil
}

// ParseDecision decodes and validates a decision reply
func ParseDecision(text string) (*protocol.Decision, error) {
	raw, err := ExtractJSONObject(text)
	if err != nil {
		return nil, err
	}

	var decision protocol.Decision
	if err := json.Unmarshal([]byte(raw), &decision); err != nil {
		return nil, fmt.Errorf("failed to decode decision: %w", err)
	}
	if err := decision.Validate(); err != nil {
		return nil, err
	}
	return &decision, nil
}

// ParseIntent decodes and validates an intent reply
func ParseIntent(text string) (*protocol.Intent, error) {
	raw, err := ExtractJSONObject(text)
	if err != nil {
		return nil, err
	}

	var intent protocol.Intent
	if err := json.Unmarshal([]byte(raw), &intent); err != nil {
		return nil, fmt.Errorf("failed to decode intent: %w", err)
	}
	intent.Type = protocol.IntentType(strings.ToLower(strings.TrimSpace(string(intent.Type))))
	if err := intent.Validate(); err != nil {
		return nil, err
	}
	return &intent, nil
}

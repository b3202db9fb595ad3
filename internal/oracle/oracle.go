// Package oracle asks a language model for the agent's next decision.
//
// The model is reached through a Generator (a hosted provider via gollm or an
// external CLI). Replies are tolerated with markdown fences or prose around
// the JSON object; anything that still does not decode into a valid decision
// is a *ProtocolError.
package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/iambrandonn/patchloop/internal/protocol"
	"github.com/iambrandonn/patchloop/internal/runstate"
)

// ProtocolError reports an oracle call that failed or returned an unusable reply
type ProtocolError struct {
	Op  string
	Raw string
	Err error
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("oracle %s: %v", e.Op, e.Err)
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// Options configures an LLM oracle
type Options struct {
	MaxPromptBytes int
	Logger         *slog.Logger
}

// LLM is a decision oracle backed by a Generator
type LLM struct {
	gen            Generator
	maxPromptBytes int
	logger         *slog.Logger
}

// New creates an oracle using gen
func New(gen Generator, opts Options) *LLM {
	o := &LLM{
		gen:            gen,
		maxPromptBytes: opts.MaxPromptBytes,
		logger:         opts.Logger,
	}
	if o.maxPromptBytes <= 0 {
		o.maxPromptBytes = DefaultMaxPromptBytes
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	return o
}

// Decide renders state into a prompt and parses the model's decision
func (o *LLM) Decide(ctx context.Context, state *runstate.AgentState) (*protocol.Decision, error) {
	prompt := BuildDecisionPrompt(state, o.maxPromptBytes)

	start := time.Now()
	reply, err := o.gen.Generate(ctx, prompt)
	if err != nil {
		return nil, &ProtocolError{Op: "decide", Err: err}
	}

	decision, err := ParseDecision(reply)
	if err != nil {
		o.logger.Warn("unusable decision", "error", err, "reply", Truncate(reply, 500))
		return nil, &ProtocolError{Op: "decide", Raw: reply, Err: err}
	}

	o.logger.Debug("oracle decided",
		"action", decision.Action,
		"step", decision.Step,
		"prompt_bytes", len(prompt),
		"duration", time.Since(start))

	return decision, nil
}

// ClassifyIntent asks the model what kind of work goal describes
func (o *LLM) ClassifyIntent(ctx context.Context, goal string) (*protocol.Intent, error) {
	reply, err := o.gen.Generate(ctx, BuildIntentPrompt(goal))
	if err != nil {
		return nil, &ProtocolError{Op: "classify", Err: err}
	}

	intent, err := ParseIntent(reply)
	if err != nil {
		return nil, &ProtocolError{Op: "classify", Raw: reply, Err: err}
	}
	return intent, nil
}

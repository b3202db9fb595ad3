// Package action decodes the flat step strings produced by the decision
// oracle into typed actions.
//
// Grammar:
//
//	read::<path>
//	open::<path>
//	write::<path>::<content>
//	run::<command>::<seconds>
//
// write splits on the first two separators only, so content may contain
// "::". For run, the limit is taken from the last segment when it parses as
// an integer; otherwise the whole remainder is the command and the runner's
// minimum limit applies.
package action

import (
	"fmt"
	"strconv"
	"strings"
)

// Separator delimits the fields of a step
const Separator = "::"

// Kind names the action variant
type Kind string

const (
	KindRead  Kind = "read"
	KindWrite Kind = "write"
	KindRun   Kind = "run"
)

// Action is one decoded step. Implementations are Read, Write and Run.
type Action interface {
	Kind() Kind
	// Step re-encodes the action in step grammar
	Step() string
	isAction()
}

// Read loads a file into the agent's context. Verb is "read" or "open".
type Read struct {
	Path string
	Verb string
}

// Write replaces a file's content
type Write struct {
	Path    string
	Content string
}

// Run executes a shell command with a time limit in seconds.
// Zero means the runner's minimum limit.
type Run struct {
	Command          string
	TimeLimitSeconds int
}

func (Read) Kind() Kind  { return KindRead }
func (Write) Kind() Kind { return KindWrite }
func (Run) Kind() Kind   { return KindRun }

func (Read) isAction()  {}
func (Write) isAction() {}
func (Run) isAction()   {}

func (a Read) Step() string {
	verb := a.Verb
	if verb == "" {
		verb = "read"
	}
	return verb + Separator + a.Path
}

func (a Write) Step() string {
	return "write" + Separator + a.Path + Separator + a.Content
}

func (a Run) Step() string {
	if a.TimeLimitSeconds <= 0 {
		return "run" + Separator + a.Command
	}
	return "run" + Separator + a.Command + Separator + strconv.Itoa(a.TimeLimitSeconds)
}

// ParseError reports a step that could not be decoded
type ParseError struct {
	Step   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid step %q: %s", truncate(e.Step, 120), e.Reason)
}

// Parse decodes a step string
func Parse(step string) (Action, error) {
	trimmed := strings.TrimSpace(step)
	if trimmed == "" {
		return nil, &ParseError{Step: step, Reason: "empty step"}
	}

	verb, rest, found := strings.Cut(trimmed, Separator)
	if !found {
		return nil, &ParseError{Step: step, Reason: fmt.Sprintf("missing %q separator", Separator)}
	}

	switch strings.ToLower(strings.TrimSpace(verb)) {
	case "read", "open":
		path := strings.TrimSpace(rest)
		if path == "" {
			return nil, &ParseError{Step: step, Reason: "read requires a path"}
		}
		return Read{Path: path, Verb: strings.ToLower(strings.TrimSpace(verb))}, nil

	case "write":
		// Content is taken from the untrimmed step so leading and trailing
		// whitespace in the file survives.
		_, raw, _ := strings.Cut(step, Separator)
		path, content, found := strings.Cut(raw, Separator)
		path = strings.TrimSpace(path)
		if !found || path == "" {
			return nil, &ParseError{Step: step, Reason: "write requires a path and content"}
		}
		return Write{Path: path, Content: content}, nil

	case "run":
		return parseRun(step, rest)

	default:
		return nil, &ParseError{Step: step, Reason: fmt.Sprintf("unknown verb %q", verb)}
	}
}

func parseRun(step, rest string) (Action, error) {
	command := rest
	limit := 0
	if i := strings.LastIndex(rest, Separator); i >= 0 {
		if n, err := strconv.Atoi(strings.TrimSpace(rest[i+len(Separator):])); err == nil {
			command = rest[:i]
			limit = n
		}
	}

	command = strings.TrimSpace(command)
	if command == "" {
		return nil, &ParseError{Step: step, Reason: "run requires a command"}
	}
	if limit < 0 {
		limit = 0
	}
	return Run{Command: command, TimeLimitSeconds: limit}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

package transcript

import (
	"fmt"
	"strings"

	"github.com/iambrandonn/patchloop/internal/protocol"
)

// maxDetail caps free text (answers, errors) on one console line
const maxDetail = 120

// Formatter formats run events for console output and history listings
type Formatter struct{}

// NewFormatter creates a new transcript formatter
func NewFormatter() *Formatter {
	return &Formatter{}
}

// FormatEvent formats an event for console display
func (f *Formatter) FormatEvent(evt *protocol.Event) string {
	scope := evt.State
	if scope == "" {
		scope = "run"
	}

	var details string

	switch evt.Event {
	case protocol.EventRunStarted:
		if goal, ok := evt.Payload["goal"].(string); ok {
			details = fmt.Sprintf("goal: %s", clip(goal))
		}

	case protocol.EventIntent:
		typ, _ := evt.Payload["type"].(string)
		intent, _ := evt.Payload["intent"].(string)
		if typ != "" {
			details = fmt.Sprintf("%s (%s)", typ, clip(intent))
		}

	case protocol.EventObserved:
		if n, ok := number(evt.Payload["changed_files"]); ok {
			details = fmt.Sprintf("%d changed files", n)
		}
		if n, ok := number(evt.Payload["warnings"]); ok && n > 0 {
			details += fmt.Sprintf(", %d warnings", n)
		}

	case protocol.EventDecision:
		action, _ := evt.Payload["action"].(string)
		details = strings.TrimSpace(action + " " + evt.Step)

	case protocol.EventStepRejected:
		reason, _ := evt.Payload["error"].(string)
		details = fmt.Sprintf("%s: %s", clip(evt.Step), clip(reason))

	case protocol.EventActionExecuted:
		details = f.formatAction(evt)

	case protocol.EventRunCompleted:
		if answer, ok := evt.Payload["answer"].(string); ok && answer != "" {
			details = fmt.Sprintf("answer: %s", clip(answer))
		}

	case protocol.EventRunFailed, protocol.EventRunAborted:
		if reason, ok := evt.Payload["error"].(string); ok {
			details = clip(reason)
		}

	default:
		if evt.Status != "" {
			details = fmt.Sprintf("status: %s", evt.Status)
		}
	}

	if details != "" {
		return fmt.Sprintf("[%s] %s: %s", scope, evt.Event, details)
	}

	return fmt.Sprintf("[%s] %s", scope, evt.Event)
}

func (f *Formatter) formatAction(evt *protocol.Event) string {
	var notes []string
	if timedOut, _ := evt.Payload["timed_out"].(bool); timedOut {
		notes = append(notes, "timed out")
	} else if code, ok := number(evt.Payload["exit_code"]); ok {
		notes = append(notes, fmt.Sprintf("exit %d", code))
	}
	if size, ok := number(evt.Payload["output_bytes"]); ok && size > 0 {
		notes = append(notes, f.formatSize(size)+" output")
	}
	if evt.Status == protocol.StatusError {
		notes = append(notes, "error")
	}

	step := clip(evt.Step)
	if len(notes) == 0 {
		return step
	}
	return fmt.Sprintf("%s (%s)", step, strings.Join(notes, ", "))
}

// FormatLog formats a log message for console display
func (f *Formatter) FormatLog(log *protocol.Log) string {
	level := strings.ToUpper(string(log.Level))
	return fmt.Sprintf("[LOG:%s] %s", level, log.Message)
}

// formatSize formats a byte size in a human-readable format
func (f *Formatter) formatSize(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GiB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MiB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KiB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// number reads a payload value that may be live (int) or decoded (float64)
func number(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

// clip flattens text to one line and caps its length
func clip(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > maxDetail {
		return s[:maxDetail] + "..."
	}
	return s
}

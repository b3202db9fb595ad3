package oracle

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/iambrandonn/patchloop/internal/runstate"
)

// DefaultMaxPromptBytes bounds a rendered decision prompt
const DefaultMaxPromptBytes = 200 * 1024

// Share of the prompt budget each bulky section may take. The remainder
// covers the fixed instructions and short sections.
const (
	fileContextShare = 0.40
	runtimeShare     = 0.20
	changesShare     = 0.15
	historyShare     = 0.05
	errorShare       = 0.05
)

const decisionInstructions = `DECISION RULES:
- Pick exactly one action: "next" or "done".
- "next": work remains; give exactly one executable step.
- "done": the goal is fully achieved; give no step.
- Do not explain your reasoning.

STEP FORMAT (action "next" only):
- read::<path>
- write::<path>::<full new file content>
- run::<command>::<time limit in seconds>

ANSWER:
- "answer" is optional. Use it only for short information the user asked for; otherwise null.

OUTPUT:
Reply with a single JSON object and nothing else:
{"action": "next" | "done", "step": "<step or null>", "answer": "<text or null>"}
`

// BuildDecisionPrompt renders the agent state for the oracle. Bulky sections
// are cut in the middle so that both the start and the most recent part of
// each survive.
func BuildDecisionPrompt(state *runstate.AgentState, maxBytes int) string {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxPromptBytes
	}
	budget := func(share float64) int { return int(float64(maxBytes) * share) }

	var b strings.Builder
	b.WriteString("You are an autonomous software engineer working in a project directory.\n")
	b.WriteString("Each reply chooses the single next action.\n\n")

	section(&b, "GOAL", state.Goal)
	if state.Intent != nil {
		section(&b, "INTENT", fmt.Sprintf("%s (%s)", state.Intent.Intent, state.Intent.Type))
	}
	section(&b, "WORKING DIRECTORY", state.Cwd)
	section(&b, "CURRENT PLAN", renderList(state.Plan))
	section(&b, "CURRENT STEP INDEX", fmt.Sprintf("%d", state.StepIndex))
	section(&b, "CURRENT FILES", renderList(state.Files))
	section(&b, "EXECUTION HISTORY", Truncate(renderList(state.ExecutionHistory), budget(historyShare)))
	section(&b, "CHANGED SINCE LAST RUN", Truncate(renderFileMap(state.ChangedFiles), budget(changesShare)))
	section(&b, "FILES READ", Truncate(renderFileMap(state.FileContext), budget(fileContextShare)))
	section(&b, "RUNTIME OUTPUT", Truncate(renderRuntime(state.RuntimeContext), budget(runtimeShare)))
	section(&b, "LAST ERROR", Truncate(state.ErrorText(), budget(errorShare)))
	b.WriteString(decisionInstructions)

	return b.String()
}

// BuildIntentPrompt asks for a classification of goal
func BuildIntentPrompt(goal string) string {
	var b strings.Builder
	section(&b, "USER GOAL", goal)
	b.WriteString("Classify the goal. Reply with a single JSON object and nothing else:\n")
	b.WriteString(`{"intent": "<one-line summary>", "type": "create" | "debug" | "improve"}`)
	b.WriteString("\n")
	return b.String()
}

func section(b *strings.Builder, title, body string) {
	if strings.TrimSpace(body) == "" {
		body = "(none)"
	}
	b.WriteString(title)
	b.WriteString(":\n")
	b.WriteString(strings.TrimRight(body, "\n"))
	b.WriteString("\n\n")
}

func renderList(items []string) string {
	var b strings.Builder
	for i, item := range items {
		fmt.Fprintf(&b, "%d. %s\n", i+1, item)
	}
	return b.String()
}

func renderFileMap(files map[string]string) string {
	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var b strings.Builder
	for _, p := range paths {
		fmt.Fprintf(&b, "--- %s ---\n%s\n", p, strings.TrimRight(files[p], "\n"))
	}
	return b.String()
}

func renderRuntime(records []runstate.RuntimeRecord) string {
	var b strings.Builder
	for _, rec := range records {
		status := "no exit code"
		switch {
		case rec.TimedOut:
			status = "timed out"
		case rec.ExitCode != nil:
			status = fmt.Sprintf("exit %d", *rec.ExitCode)
		}
		fmt.Fprintf(&b, "$ %s (%s)\n%s\n", rec.Command, status, strings.TrimRight(rec.Output, "\n"))
	}
	return b.String()
}

const truncationMarker = "\n... [truncated] ...\n"

// Truncate keeps the head and tail of s within limit bytes, marking the cut.
// A non-positive limit leaves s unchanged.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}

	keep := limit - len(truncationMarker)
	if keep < 2 {
		return s[:runeStart(s, limit)]
	}

	head := runeStart(s, keep/2)
	tail := len(s) - (keep - keep/2)
	for tail < len(s) && !utf8.RuneStart(s[tail]) {
		tail++
	}
	return s[:head] + truncationMarker + s[tail:]
}

// runeStart moves i back to the start of the rune containing it
func runeStart(s string, i int) int {
	if i >= len(s) {
		return len(s)
	}
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}

package protocol

import (
	"errors"
	"strings"
)

// ErrMissingEntryFile indicates a debug request without an entry file.
var ErrMissingEntryFile = errors.New("protocol: entry_file is required")

// DebugRequest asks for the change report of an entry point
type DebugRequest struct {
	EntryFile  string `json:"entry_file"`
	UserPrompt string `json:"user_prompt"`
}

// Validate ensures the request names an entry file
func (r *DebugRequest) Validate() error {
	if strings.TrimSpace(r.EntryFile) == "" {
		return ErrMissingEntryFile
	}
	return nil
}

// DebugResponse carries the change report since the previous snapshot.
// The prompt is echoed back unchanged.
type DebugResponse struct {
	EntryFile    string            `json:"entry_file"`
	ChangedFiles map[string]string `json:"changed_files"`
	Prompt       string            `json:"prompt"`
	Warnings     []string          `json:"warnings,omitempty"`
}

package httpapi

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/iambrandonn/patchloop/internal/fsutil"
	"github.com/iambrandonn/patchloop/internal/protocol"
)

func (h *handlers) handleDebug(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)

	var req protocol.DebugRequest
	if err := decodeJSONBody(r, &req); err != nil {
		writeMappedError(w, err)
		return
	}
	if err := req.Validate(); err != nil {
		writeInvalidRequest(w, err.Error())
		return
	}

	entry, err := h.entryPath(req.EntryFile)
	if err != nil {
		writeInvalidRequest(w, err.Error())
		return
	}

	h.mu.Lock()
	report, err := h.observer.Observe(entry)
	h.mu.Unlock()
	if err != nil {
		h.logger.Error("observation failed", "entry_file", entry, "error", err)
		writeError(w, http.StatusInternalServerError, errorCodeRuntime, err.Error())
		return
	}

	changed := map[string]string(report.Changes)
	if changed == nil {
		changed = map[string]string{}
	}
	writeJSON(w, http.StatusOK, protocol.DebugResponse{
		EntryFile:    req.EntryFile,
		ChangedFiles: changed,
		Prompt:       req.UserPrompt,
		Warnings:     report.WarningStrings(),
	})
}

// entryPath resolves a requested entry file inside the workspace
func (h *handlers) entryPath(entry string) (string, error) {
	if !filepath.IsAbs(entry) {
		return fsutil.ResolveWorkspacePath(h.workspace, entry)
	}

	root, err := filepath.Abs(h.workspace)
	if err != nil {
		return "", fmt.Errorf("failed to resolve workspace: %w", err)
	}
	clean := filepath.Clean(entry)
	rel, err := filepath.Rel(root, clean)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("entry file %s is outside the workspace", entry)
	}
	return clean, nil
}

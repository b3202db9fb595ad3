// Package httpapi exposes change observation over HTTP.
//
//	POST /debug    {"entry_file","user_prompt"} -> {"entry_file","changed_files","prompt"}
//	GET  /healthz
package httpapi

import (
	"log/slog"
	"net/http"
	"sync"

	"github.com/iambrandonn/patchloop/internal/observe"
)

// DefaultMaxRequestBodyBytes caps a /debug request body
const DefaultMaxRequestBodyBytes int64 = 64 * 1024

// Observer reports what changed under an entry file since the last request
type Observer interface {
	Observe(entryFile string) (*observe.Report, error)
}

// Options configures the router
type Options struct {
	// Workspace anchors relative entry files; absolute ones must lie under it
	Workspace           string
	Observer            Observer
	MaxRequestBodyBytes int64
	Logger              *slog.Logger
}

type handlers struct {
	workspace string
	observer  Observer
	maxBody   int64
	logger    *slog.Logger

	// Snapshot files are not locked; observations run one at a time.
	mu sync.Mutex
}

// NewRouter builds the HTTP handler
func NewRouter(opts Options) http.Handler {
	h := &handlers{
		workspace: opts.Workspace,
		observer:  opts.Observer,
		maxBody:   opts.MaxRequestBodyBytes,
		logger:    opts.Logger,
	}
	if h.maxBody <= 0 {
		h.maxBody = DefaultMaxRequestBodyBytes
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /debug", h.handleDebug)
	mux.HandleFunc("GET /healthz", h.handleHealth)

	return requestLoggingMiddleware(h.logger)(mux)
}

func (h *handlers) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

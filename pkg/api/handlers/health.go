// Package handlers implements the HTTP endpoints of the smbc status server.
package handlers

import (
	"net/http"
	"time"

	"github.com/marmos91/smbc/pkg/bridge"
)

// Source is the client session reported on. *smbc.Context satisfies it.
type Source interface {
	ID() string
	Backend() string
	ResolverKind() string
	Closed() bool
	OpenHandles() (files, dirs int)
	AsyncStats() (bridge.Stats, bool)
}

// HealthHandler serves the liveness, readiness and status endpoints.
type HealthHandler struct {
	src     Source
	started time.Time
}

// NewHealthHandler creates a handler for src. A nil src is reported as not
// ready.
func NewHealthHandler(src Source) *HealthHandler {
	return &HealthHandler{src: src, started: time.Now()}
}

// Liveness handles GET /health. It succeeds as long as the process serves
// HTTP.
func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthyResponse(map[string]any{
		"service":    "smbc",
		"started_at": h.started.UTC().Format(time.RFC3339),
		"uptime":     time.Since(h.started).Truncate(time.Second).String(),
	}))
}

// Readiness handles GET /health/ready. It answers 503 once the session has
// been closed.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.src == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("client not initialized"))
		return
	}
	if h.src.Closed() {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("client closed"))
		return
	}

	writeJSON(w, http.StatusOK, healthyResponse(map[string]string{
		"session": h.src.ID(),
		"backend": h.src.Backend(),
	}))
}

// AsyncStatus reports the async worker counters.
type AsyncStatus struct {
	Pending   int    `json:"pending"`
	Completed int    `json:"completed"`
	Failed    int    `json:"failed"`
	LastError string `json:"last_error,omitempty"`
}

// ClientStatus is the body of GET /status.
type ClientStatus struct {
	Session   string       `json:"session"`
	Backend   string       `json:"backend"`
	Resolver  string       `json:"resolver"`
	Closed    bool         `json:"closed"`
	OpenFiles int          `json:"open_files"`
	OpenDirs  int          `json:"open_dirs"`
	Async     *AsyncStatus `json:"async,omitempty"`
}

// Status handles GET /status.
func (h *HealthHandler) Status(w http.ResponseWriter, r *http.Request) {
	if h.src == nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthyResponse("client not initialized"))
		return
	}

	files, dirs := h.src.OpenHandles()
	status := ClientStatus{
		Session:   h.src.ID(),
		Backend:   h.src.Backend(),
		Resolver:  h.src.ResolverKind(),
		Closed:    h.src.Closed(),
		OpenFiles: files,
		OpenDirs:  dirs,
	}
	if stats, ok := h.src.AsyncStats(); ok {
		status.Async = &AsyncStatus{
			Pending:   stats.Pending,
			Completed: stats.Completed,
			Failed:    stats.Failed,
		}
		if stats.LastError != nil {
			status.Async.LastError = stats.LastError.Error()
		}
	}

	writeJSON(w, http.StatusOK, okResponse(status))
}

package server

import (
	"encoding/json"
	"net/http"
)

type handlers struct {
	status StatusFunc
}

// handleHealthz responds to liveness probes. The process is healthy as soon
// as the listeners are up; backend reachability is visible in /status and in
// the stream metrics instead, because a down backend must not restart the
// gateway.
func (h *handlers) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleStatus reports the gateway snapshot as JSON.
func (h *handlers) handleStatus(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(h.status()); err != nil {
		http.Error(w, "encode status", http.StatusInternalServerError)
	}
}

package handler

import (
	"net/http"
	"time"
)

// StatusHandler serves the backend run mode and network.
type StatusHandler struct {
	Mode      string
	Network   string
	StartedAt time.Time
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode, network string) *StatusHandler {
	return &StatusHandler{Mode: mode, Network: network, StartedAt: time.Now().UTC()}
}

// GetStatus responds with the current mode, network and uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.Mode,
		"network":        h.Network,
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
	})
}

package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// PipelineHandler serves the listing index trigger.
type PipelineHandler struct {
	logger    *slog.Logger
	triggerCh chan<- struct{} // when non-nil, sending triggers one index run
}

// NewPipelineHandler creates a PipelineHandler with the given logger.
func NewPipelineHandler(logger *slog.Logger) *PipelineHandler {
	return &PipelineHandler{logger: logHandler(logger, "pipeline")}
}

// WithTriggerChannel sets the channel to send on when a trigger is requested.
// The indexer loop must receive from this channel to run one cycle.
func (h *PipelineHandler) WithTriggerChannel(ch chan<- struct{}) *PipelineHandler {
	h.triggerCh = ch
	return h
}

// TriggerIndex enqueues one listing index run. The send is non-blocking so
// repeated triggers collapse into the pending one.
// POST /api/pipeline/index
func (h *PipelineHandler) TriggerIndex(w http.ResponseWriter, r *http.Request) {
	if h.triggerCh == nil {
		writeError(w, http.StatusServiceUnavailable, "indexer not running in this mode")
		return
	}
	h.logger.InfoContext(r.Context(), "handler: index trigger requested")
	queued := true
	select {
	case h.triggerCh <- struct{}{}:
	default:
		queued = false
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"queued":       queued,
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}

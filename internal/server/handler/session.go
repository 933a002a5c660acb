package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/propertyx/internal/domain"
)

// SessionManager is the wallet session the handler drives.
type SessionManager interface {
	Connect(ctx context.Context) (domain.Session, error)
	Disconnect(ctx context.Context) domain.Session
	Session() domain.Session
	RefreshBalance(ctx context.Context, address string) domain.Session
}

// SessionHandler serves wallet session endpoints.
type SessionHandler struct {
	sessions SessionManager
	logger   *slog.Logger
}

// NewSessionHandler creates a SessionHandler.
func NewSessionHandler(sessions SessionManager, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{sessions: sessions, logger: logHandler(logger, "session")}
}

// GetSession returns the current session snapshot.
// GET /api/session
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions.Session())
}

// Connect authorizes the configured wallet.
// POST /api/session/connect
func (h *SessionHandler) Connect(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Connect(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, "connect", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Disconnect clears the session.
// POST /api/session/disconnect
func (h *SessionHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.sessions.Disconnect(r.Context()))
}

// RefreshBalance re-reads the connected account's balances.
// POST /api/session/balance/refresh
func (h *SessionHandler) RefreshBalance(w http.ResponseWriter, r *http.Request) {
	if !h.sessions.Session().Connected {
		writeServiceError(w, r, h.logger, "refresh balance", domain.ErrNotConnected)
		return
	}
	writeJSON(w, http.StatusOK, h.sessions.RefreshBalance(r.Context(), ""))
}

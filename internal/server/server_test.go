package server

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/propertyx/internal/domain"
	"github.com/alanyoungcy/propertyx/internal/metrics"
	"github.com/alanyoungcy/propertyx/internal/server/handler"
)

type staticSessions struct{}

func (staticSessions) Connect(context.Context) (domain.Session, error) { return domain.Session{}, nil }
func (staticSessions) Disconnect(context.Context) domain.Session      { return domain.Session{} }
func (staticSessions) Session() domain.Session {
	return domain.Session{Connected: true, Address: "ST1PQHQKV0RJXZFY1DGX8MNSNYVE3VGZJSRTPGZGM"}
}
func (staticSessions) RefreshBalance(context.Context, string) domain.Session { return domain.Session{} }

func newTestServer(t *testing.T, apiKey string) (*Server, *metrics.Metrics) {
	t.Helper()
	logger := slog.New(slog.DiscardHandler)
	m := metrics.New()
	srv := NewServer(Config{Port: 0, APIKey: apiKey}, Handlers{
		Health:  handler.NewHealthHandler(logger, nil),
		Status:  handler.NewStatusHandler("serve", "testnet"),
		Session: handler.NewSessionHandler(staticSessions{}, logger),
	}, Options{Metrics: m}, logger)
	return srv, m
}

func get(t *testing.T, h http.Handler, path string, header ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for i := 0; i+1 < len(header); i += 2 {
		req.Header.Set(header[i], header[i+1])
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRoutesAndAuth(t *testing.T) {
	srv, _ := newTestServer(t, "k")
	h := srv.Handler()

	assert.Equal(t, http.StatusOK, get(t, h, "/api/health").Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, h, "/api/session").Code)

	rec := get(t, h, "/api/session", "X-API-Key", "k")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"connected":true`)

	rec = get(t, h, "/api/status", "X-API-Key", "k")
	assert.Contains(t, rec.Body.String(), `"network":"testnet"`)

	// Unregistered handler groups leave their routes unmatched.
	assert.Equal(t, http.StatusNotFound, get(t, h, "/api/marketplace", "X-API-Key", "k").Code)
}

func TestMetricsEndpointCountsRoutes(t *testing.T) {
	srv, _ := newTestServer(t, "")
	h := srv.Handler()

	get(t, h, "/api/health")
	get(t, h, "/api/health")

	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	var line string
	for l := range strings.Lines(body) {
		if strings.HasPrefix(l, "propertyx_http_requests_total{") && strings.Contains(l, `path="/api/health"`) {
			line = strings.TrimSpace(l)
		}
	}
	require.NotEmpty(t, line, body)
	assert.True(t, strings.HasSuffix(line, " 2"), line)
}

func TestConfigAddr(t *testing.T) {
	assert.Equal(t, ":8080", Config{Port: 8080}.Addr())
	assert.Equal(t, "127.0.0.1:9000", Config{Host: "127.0.0.1", Port: 9000}.Addr())
}

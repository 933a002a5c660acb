package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestAuth(t *testing.T) {
	h := Auth("secret", "/api/health")(ok)

	cases := []struct {
		name   string
		path   string
		header map[string]string
		want   int
	}{
		{"missing", "/api/session", nil, http.StatusUnauthorized},
		{"wrong", "/api/session", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"bearer", "/api/session", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
		{"api key", "/api/session", map[string]string{"X-API-Key": "secret"}, http.StatusOK},
		{"public", "/api/health", nil, http.StatusOK},
		{"ws query", "/ws?api_key=secret", nil, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			for k, v := range tc.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestAuthDisabled(t *testing.T) {
	rec := httptest.NewRecorder()
	Auth("")(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tokenize", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://app.example"})(ok)

	req := httptest.NewRequest(http.MethodOptions, "/api/session", nil)
	req.Header.Set("Origin", "https://app.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.example", rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", rec.Header().Get("Vary"))
}

func TestCORSWildcardExposesRequestID(t *testing.T) {
	h := CORS([]string{"*"})(ok)

	req := httptest.NewRequest(http.MethodGet, "/api/marketplace", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, RequestIDHeader, rec.Header().Get("Access-Control-Expose-Headers"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-API-Key")
}

func TestLoggingSetsRequestID(t *testing.T) {
	h := Logging(slog.New(slog.DiscardHandler))(ok)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Len(t, rec.Header().Get(RequestIDHeader), 36)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set(RequestIDHeader, "abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get(RequestIDHeader))
}

type countingLimiter struct {
	seen  map[string]int
	limit int
	err   error
}

func (c *countingLimiter) Allow(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	if c.err != nil {
		return false, c.err
	}
	c.seen[key]++
	c.limit = limit
	return c.seen[key] <= limit, nil
}

func (c *countingLimiter) Wait(context.Context, string) error { return nil }

func TestRateLimit(t *testing.T) {
	lim := &countingLimiter{seen: map[string]int{}}
	h := RateLimit(lim, 2, time.Minute, slog.New(slog.DiscardHandler))(ok)

	do := func(path, xff string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.Header.Set("X-Forwarded-For", xff)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, do("/api/session", "1.1.1.1"))
	assert.Equal(t, http.StatusOK, do("/api/session", "1.1.1.1, 10.0.0.1"))
	assert.Equal(t, http.StatusTooManyRequests, do("/api/session", "1.1.1.1"))
	assert.Equal(t, http.StatusOK, do("/api/session", "2.2.2.2"))
	assert.Equal(t, http.StatusOK, do("/api/health", "1.1.1.1"))
	assert.Equal(t, 3, lim.seen["ratelimit:api:1.1.1.1"])

	lim.err = errors.New("redis down")
	assert.Equal(t, http.StatusOK, do("/api/session", "1.1.1.1"))
}

func TestRateLimitDisabled(t *testing.T) {
	h := RateLimit(nil, 10, time.Minute, slog.New(slog.DiscardHandler))(ok)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestExtractClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "9.9.9.9:1234"
	assert.Equal(t, "9.9.9.9", extractClientIP(req))
	req.Header.Set("X-Real-IP", "8.8.8.8")
	assert.Equal(t, "8.8.8.8", extractClientIP(req))
}

package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstrumentHandlerUsesPattern(t *testing.T) {
	m := New()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/proposals/{id}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	h := m.InstrumentHandler(mux)

	for _, id := range []string{"a", "b"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/proposals/"+id, nil))
		require.Equal(t, http.StatusNotFound, rec.Code)
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/proposals/{id}", "404")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.httpInFlight))
}

func TestRouteLabelFallback(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/nope/deep/path", nil)
	assert.Equal(t, "/nope", routeLabel(r))
	assert.Equal(t, "/", routeLabel(httptest.NewRequest(http.MethodGet, "/", nil)))
}

func TestObservers(t *testing.T) {
	m := New()
	m.ObserveCall("list-asset-ft", "ok", 20*time.Millisecond)
	m.ObserveCall("list-asset-ft", "error", time.Millisecond)
	m.ObserveAggregation("ok", time.Second, 12)
	m.ObserveAggregation("error", time.Second, 0)
	m.ObserveIndex("ok", 30)
	m.ObserveArchive("error")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.contractCalls.WithLabelValues("list-asset-ft", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.contractCalls.WithLabelValues("list-asset-ft", "error")))
	assert.Equal(t, 12.0, testutil.ToFloat64(m.aggregatedListings))
	assert.Equal(t, 30.0, testutil.ToFloat64(m.indexedListings))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.archiveRuns.WithLabelValues("error")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObserveArchive("ok")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `propertyx_pipeline_archive_runs_total{outcome="ok"} 1`))
}

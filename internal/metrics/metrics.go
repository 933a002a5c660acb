// Package metrics exposes Prometheus collectors for the HTTP API, contract
// calls, marketplace aggregation, and the background pipeline.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "propertyx"

// Metrics owns a registry and the collectors registered on it.
type Metrics struct {
	registry *prometheus.Registry

	httpInFlight prometheus.Gauge
	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	contractCalls    *prometheus.CounterVec
	contractDuration *prometheus.HistogramVec

	aggregations        *prometheus.CounterVec
	aggregationDuration prometheus.Histogram
	aggregatedListings  prometheus.Gauge

	indexedListings prometheus.Gauge
	indexRuns       *prometheus.CounterVec
	archiveRuns     *prometheus.CounterVec
}

// New creates a Metrics with its own registry, including the Go runtime
// and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		}, []string{"method", "path"}),
		contractCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "contract",
			Name:      "calls_total",
			Help:      "Contract calls submitted, by function and outcome.",
		}, []string{"function", "outcome"}),
		contractDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "contract",
			Name:      "call_duration_seconds",
			Help:      "Time from call request to broadcast result.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}, []string{"function"}),
		aggregations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "marketplace",
			Name:      "aggregations_total",
			Help:      "Marketplace aggregation runs, by outcome.",
		}, []string{"outcome"}),
		aggregationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "marketplace",
			Name:      "aggregation_duration_seconds",
			Help:      "Duration of a full marketplace aggregation.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		aggregatedListings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "marketplace",
			Name:      "active_listings",
			Help:      "Active listings seen by the last successful aggregation.",
		}),
		indexedListings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "indexed_listings",
			Help:      "Listings present in the last index pass.",
		}),
		indexRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "index_runs_total",
			Help:      "Listing index passes, by outcome.",
		}, []string{"outcome"}),
		archiveRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "archive_runs_total",
			Help:      "Snapshot archive runs, by outcome.",
		}, []string{"outcome"}),
	}

	m.registry.MustRegister(
		m.httpInFlight,
		m.httpRequests,
		m.httpDuration,
		m.contractCalls,
		m.contractDuration,
		m.aggregations,
		m.aggregationDuration,
		m.aggregatedListings,
		m.indexedListings,
		m.indexRuns,
		m.archiveRuns,
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler returns an HTTP handler exposing the registered metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveCall records a contract call outcome.
func (m *Metrics) ObserveCall(function, outcome string, elapsed time.Duration) {
	m.contractCalls.WithLabelValues(function, outcome).Inc()
	m.contractDuration.WithLabelValues(function).Observe(elapsed.Seconds())
}

// ObserveAggregation records a marketplace aggregation outcome.
func (m *Metrics) ObserveAggregation(outcome string, elapsed time.Duration, listings int) {
	m.aggregations.WithLabelValues(outcome).Inc()
	m.aggregationDuration.Observe(elapsed.Seconds())
	if outcome == "ok" {
		m.aggregatedListings.Set(float64(listings))
	}
}

// ObserveIndex records a listing index pass.
func (m *Metrics) ObserveIndex(outcome string, present int) {
	m.indexRuns.WithLabelValues(outcome).Inc()
	if outcome == "ok" {
		m.indexedListings.Set(float64(present))
	}
}

// ObserveArchive records a snapshot archive run.
func (m *Metrics) ObserveArchive(outcome string) {
	m.archiveRuns.WithLabelValues(outcome).Inc()
}

// InstrumentHandler wraps next with HTTP request metrics. Requests routed by
// a ServeMux are labelled with their route pattern.
func (m *Metrics) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		m.httpInFlight.Inc()
		defer m.httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		path := routeLabel(r)
		method := strings.ToUpper(r.Method)
		m.httpRequests.WithLabelValues(method, path, strconv.Itoa(rec.status)).Inc()
		m.httpDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// Hijack passes websocket upgrades through.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

// routeLabel keeps label cardinality bounded: the mux pattern when one
// matched, otherwise the first path segment.
func routeLabel(r *http.Request) string {
	if r.Pattern != "" {
		if _, path, ok := strings.Cut(r.Pattern, " "); ok {
			return path
		}
		return r.Pattern
	}
	trimmed := strings.Trim(r.URL.Path, "/")
	if trimmed == "" {
		return "/"
	}
	first, _, _ := strings.Cut(trimmed, "/")
	return "/" + first
}

// Package metrics provides Prometheus instrumentation for the carry engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/argos/carry-engine/internal/model"
)

var (
	// ReconciliationsTotal counts reconciliation runs by data source and outcome.
	ReconciliationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carry_reconciliations_total",
		Help: "Total reconciliation runs",
	}, []string{"source", "outcome"})

	// ReconcileLatency tracks end-to-end reconciliation time.
	ReconcileLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "carry_reconcile_latency_seconds",
		Help:    "Reconciliation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"source"})

	// StoreFailures counts adapter reads that failed and were treated as empty.
	StoreFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carry_store_failures_total",
		Help: "Store reads that failed during reconciliation",
	}, []string{"source", "input"})

	// RiskStatus holds the last traffic light per signal: 0 green, 1 yellow, 2 red.
	RiskStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "carry_risk_status",
		Help: "Last risk status (0 green, 1 yellow, 2 red)",
	}, []string{"source", "signal"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "carry_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "carry_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "carry_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
	}, []string{"method", "path"})
)

// StatusValue maps a traffic light to its gauge value.
func StatusValue(s model.RiskStatus) float64 {
	switch s {
	case model.StatusYellow:
		return 1
	case model.StatusRed:
		return 2
	default:
		return 0
	}
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Route pattern keeps the path label low-cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

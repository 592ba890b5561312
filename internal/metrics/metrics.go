// Package metrics provides Prometheus instrumentation for the journal engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SyncCyclesTotal counts synchronization cycles by trigger reason and outcome.
	SyncCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "journal_sync_cycles_total",
		Help: "Total synchronization cycles",
	}, []string{"reason", "outcome"})

	// SyncDuration tracks full sync cycle duration.
	SyncDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "journal_sync_duration_seconds",
		Help:    "Synchronization cycle duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// SourceFallbacks counts cycles that fell back to the synthetic generator.
	SourceFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "journal_source_fallbacks_total",
		Help: "Sync cycles served by the synthetic generator",
	})

	// EventsReconciled counts reconciled events by action taken.
	EventsReconciled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "journal_events_reconciled_total",
		Help: "Trade events processed by the reconciler",
	}, []string{"action"}) // inserted, updated, skipped, failed

	// TradesStored tracks the current ledger size.
	TradesStored = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "journal_trades_stored",
		Help: "Number of trades in the ledger",
	})

	// OpenPositions tracks currently open trades.
	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "journal_open_positions",
		Help: "Number of open positions in the ledger",
	})

	// WebSocketClients tracks connected subscribers.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "journal_websocket_clients",
		Help: "Number of connected WebSocket subscribers",
	})

	// BroadcastsDropped counts pushes dropped because the hub buffer was full.
	BroadcastsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "journal_broadcasts_dropped_total",
		Help: "Broadcast payloads dropped to avoid blocking ingestion",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "journal_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "journal_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// ObserveReconcile records the per-action counters for one batch.
func ObserveReconcile(inserted, updated, skipped, failed int) {
	EventsReconciled.WithLabelValues("inserted").Add(float64(inserted))
	EventsReconciled.WithLabelValues("updated").Add(float64(updated))
	EventsReconciled.WithLabelValues("skipped").Add(float64(skipped))
	EventsReconciled.WithLabelValues("failed").Add(float64(failed))
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

		// Use the raw path for the label; the API surface is small enough
		// to keep cardinality in check.
		path := r.URL.Path
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

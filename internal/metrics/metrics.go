// Package metrics provides Prometheus instrumentation for the futures
// engine.
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
	// PositionsOpened counts opened contracts, partitioned by direction.
	PositionsOpened = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "futures_positions_opened_total",
		Help: "Total futures positions opened",
	}, []string{"direction"})

	// PositionsClosed counts terminal transitions by cause.
	PositionsClosed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "futures_positions_closed_total",
		Help: "Total futures positions closed",
	}, []string{"cause"}) // close, settle, liquidate

	// MarginLocked tracks currently locked margin across all accounts.
	MarginLocked = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "futures_margin_locked",
		Help: "Margin currently locked in open positions",
	})

	// BreakerTrips counts circuit-breaker activations per underlying item.
	BreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "futures_circuit_breaker_trips_total",
		Help: "Circuit breaker activations",
	}, []string{"item"})

	// MonopolySpawns counts alternative-supply spawn events.
	MonopolySpawns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "futures_monopoly_spawns_total",
		Help: "Alternative resource spawns from monopoly breaking",
	})

	// OpenContracts tracks the number of currently open contracts.
	OpenContracts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "futures_open_contracts",
		Help: "Number of currently open contracts",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "futures_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "futures_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "futures_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

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

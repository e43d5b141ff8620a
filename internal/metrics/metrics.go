// Package metrics provides Prometheus instrumentation for the engine.
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
	// StakeOps counts staking ledger operations, partitioned by kind.
	StakeOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cil_stake_operations_total",
		Help: "Total staking ledger operations",
	}, []string{"op"})

	// RewardsDistributed sums reward deposits distributed to stakers.
	RewardsDistributed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cil_rewards_distributed_total",
		Help: "Total reward value distributed to stakers",
	})

	// PositionEvents counts marketplace position lifecycle events.
	PositionEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cil_position_events_total",
		Help: "Total marketplace position events",
	}, []string{"event"})

	// OfferEvents counts marketplace offer lifecycle events.
	OfferEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cil_offer_events_total",
		Help: "Total marketplace offer events",
	}, []string{"event"})

	// EscrowEvents counts escrow transaction lifecycle events.
	EscrowEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cil_escrow_events_total",
		Help: "Total escrow transaction events",
	}, []string{"event"})

	// SettlementFees sums fees routed to the fee sink on release/finish.
	SettlementFees = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cil_settlement_fees_total",
		Help: "Total settlement fees withheld",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "cil_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cil_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "cil_http_request_duration_seconds",
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

		// Use the raw path for the label; keys are bounded per route.
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

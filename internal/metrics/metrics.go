// Package metrics provides Prometheus instrumentation for the trading core.
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
	// OrdersTotal counts submitted orders by side, type, and outcome
	// (filled / rejected).
	OrdersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chronos_orders_total",
		Help: "Total number of orders submitted",
	}, []string{"side", "type", "outcome"})

	// OrderLatency tracks the validate-to-fill latency of accepted orders.
	OrderLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chronos_order_latency_seconds",
		Help:    "Order execution latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"type"})

	// SlippageRejections counts fills rejected at the gateway's bound.
	SlippageRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chronos_slippage_rejections_total",
		Help: "Fills rejected because execution moved past the slippage bound",
	})

	// RiskRejections counts orders rejected by the exposure limiter.
	RiskRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chronos_risk_rejections_total",
		Help: "Orders rejected by the exposure limiter",
	})

	// ActiveMarkets tracks the number of open markets.
	ActiveMarkets = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chronos_active_markets",
		Help: "Number of currently open markets",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chronos_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chronos_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "chronos_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// MarketVolume tracks cumulative settlement-asset volume per market.
	MarketVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chronos_market_volume_total",
		Help: "Cumulative trade volume in settlement-asset units",
	}, []string{"market_id", "side"})
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

		// Use the route pattern for path label to avoid high cardinality.
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

// Package metrics provides Prometheus instrumentation for the options
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
	// QuotesTotal counts quotes served, partitioned by side.
	QuotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ovmx_quotes_total",
		Help: "Total number of quotes computed",
	}, []string{"side"})

	// QuoteLatency tracks quote computation latency.
	QuoteLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ovmx_quote_latency_seconds",
		Help:    "Quote computation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// DisabledQuotesTotal counts disabled quotes by reason.
	DisabledQuotesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ovmx_disabled_quotes_total",
		Help: "Quotes returned with a disabled reason",
	}, []string{"reason"})

	// TradesBuilt counts trade constructions by kind.
	TradesBuilt = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ovmx_trades_built_total",
		Help: "Trade constructions by kind (open, close, force_close)",
	}, []string{"kind"})

	// LiquidationSearchNonConverged counts liquidation price searches
	// that hit the iteration cap and returned a midpoint.
	LiquidationSearchNonConverged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ovmx_liquidation_search_nonconverged_total",
		Help: "Liquidation price searches that did not converge",
	})

	// ActiveBoards tracks unexpired boards per market, refreshed on
	// each board listing.
	ActiveBoards = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "ovmx_active_boards",
		Help: "Unexpired option boards per market",
	}, []string{"market"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ovmx_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ovmx_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ovmx_http_request_duration_seconds",
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

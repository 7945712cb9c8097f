package monitoring

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics. Each Metrics owns its registry so
// tests can create throwaway instances without collisions.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	activeConnections   prometheus.Gauge

	ordersSubmitted *prometheus.CounterVec
	ordersCompleted *prometheus.CounterVec
	fillLatency     prometheus.Histogram
	tradesExecuted  prometheus.Counter
	accountEquity   *prometheus.GaugeVec
}

// NewMetrics creates new Prometheus metrics
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),
		activeConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "websocket_connections_active",
				Help: "Number of active WebSocket connections",
			},
		),
		ordersSubmitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paper_orders_submitted_total",
				Help: "Total number of orders accepted for simulation",
			},
			[]string{"type", "side"},
		),
		ordersCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "paper_orders_completed_total",
				Help: "Total number of orders reaching a terminal status",
			},
			[]string{"status"},
		),
		fillLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "paper_fill_duration_seconds",
				Help:    "Time from order submission to terminal transition",
				Buckets: prometheus.DefBuckets,
			},
		),
		tradesExecuted: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "paper_trades_executed_total",
				Help: "Total number of simulated trades",
			},
		),
		accountEquity: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "paper_account_equity",
				Help: "Current total equity per account",
			},
			[]string{"account_id"},
		),
	}

	m.registry.MustRegister(
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.activeConnections,
		m.ordersSubmitted,
		m.ordersCompleted,
		m.fillLatency,
		m.tradesExecuted,
		m.accountEquity,
	)

	return m
}

// Handler returns the HTTP handler serving this registry
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// MetricsMiddleware returns a gin middleware recording request metrics
func (m *Metrics) MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unknown"
		}

		m.httpRequestsTotal.WithLabelValues(
			c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status()),
		).Inc()
		m.httpRequestDuration.WithLabelValues(
			c.Request.Method, endpoint,
		).Observe(time.Since(start).Seconds())
	}
}

// ConnectionOpened records a new WebSocket connection
func (m *Metrics) ConnectionOpened() {
	m.activeConnections.Inc()
}

// ConnectionClosed records a closed WebSocket connection
func (m *Metrics) ConnectionClosed() {
	m.activeConnections.Dec()
}

// OrderSubmitted records an accepted order
func (m *Metrics) OrderSubmitted(orderType, side string) {
	m.ordersSubmitted.WithLabelValues(orderType, side).Inc()
}

// OrderCompleted records a terminal order transition
func (m *Metrics) OrderCompleted(status string, sinceSubmit time.Duration) {
	m.ordersCompleted.WithLabelValues(status).Inc()
	m.fillLatency.Observe(sinceSubmit.Seconds())
}

// TradeExecuted records a simulated trade
func (m *Metrics) TradeExecuted() {
	m.tradesExecuted.Inc()
}

// AccountEquityUpdated records the latest equity for an account
func (m *Metrics) AccountEquityUpdated(accountID string, equity float64) {
	m.accountEquity.WithLabelValues(accountID).Set(equity)
}

package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "veloloop",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "veloloop",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	}, []string{"method", "path"})

	// Routing-oracle metrics
	OracleCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "veloloop",
		Subsystem: "oracle",
		Name:      "calls_total",
		Help:      "Total routing-oracle calls by call shape and result",
	}, []string{"kind", "status"})

	OracleCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "veloloop",
		Subsystem: "oracle",
		Name:      "call_duration_seconds",
		Help:      "Routing-oracle call latency in seconds",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"kind"})

	// Convergence metrics
	LoopAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "veloloop",
		Subsystem: "loop",
		Name:      "attempts_total",
		Help:      "Parsed loop attempts by star-shape classification",
	}, []string{"star"})

	LoopOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "veloloop",
		Subsystem: "loop",
		Name:      "outcomes_total",
		Help:      "Terminal loop-generation outcomes by classification",
	}, []string{"outcome"})

	// Editing metrics
	EditOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "veloloop",
		Subsystem: "edit",
		Name:      "operations_total",
		Help:      "Waypoint edit operations by kind and result",
	}, []string{"op", "status"})

	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "veloloop",
		Subsystem: "session",
		Name:      "active",
		Help:      "Currently open route-editing sessions",
	})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "veloloop",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	// Cache metrics
	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "veloloop",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "veloloop",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)

		return err
	}
}

// Handler returns a Fiber handler serving the Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

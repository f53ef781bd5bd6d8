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
		Namespace: "transitlens",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "transitlens",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	// Overlay pipeline metrics
	RendersTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "transitlens",
		Subsystem: "overlay",
		Name:      "renders_total",
		Help:      "Total overlay render invocations",
	})

	RenderDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "transitlens",
		Subsystem: "overlay",
		Name:      "render_duration_seconds",
		Help:      "Duration of one overlay render",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	})

	RendersSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transitlens",
		Subsystem: "overlay",
		Name:      "renders_skipped_total",
		Help:      "Renders that cleared output instead of drawing",
	}, []string{"reason"})

	SettingsUpdates = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "transitlens",
		Subsystem: "overlay",
		Name:      "settings_updates_total",
		Help:      "Settings snapshot replacements observed",
	})

	// Discovery metrics
	DiscoveryAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "transitlens",
		Subsystem: "discovery",
		Name:      "attempts_total",
		Help:      "Discovery passes over a page snapshot",
	})

	DiscoveryResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "transitlens",
		Subsystem: "discovery",
		Name:      "results_total",
		Help:      "Discovery outcomes by winning strategy, or notfound",
	}, []string{"strategy"})

	// Cross-context projection metrics
	ProjectionRequests = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "transitlens",
		Subsystem: "bridge",
		Name:      "projection_requests_total",
		Help:      "Host projection requests issued",
	})

	ProjectionTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "transitlens",
		Subsystem: "bridge",
		Name:      "projection_timeouts_total",
		Help:      "Host projection requests that timed out",
	})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "transitlens",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})
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

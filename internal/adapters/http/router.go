package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/transitlens/transitlens/internal/pkg/metrics"
)

// SetupRoutes registers all REST and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	// Response compression (gzip) — SVG compresses very well
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	// Request ID
	app.Use(requestid.New())

	// Propagate request ID into slog context
	app.Use(RequestIDLogMiddleware())

	// Access logs (structured HTTP request logging)
	app.Use(AccessLogMiddleware())

	// Rate limiting: 240 requests per minute per IP. The overlay endpoint is
	// polled by clients without WebSocket support, so the cap is generous.
	app.Use(limiter.New(limiter.Config{
		Max:        240,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(429).JSON(fiber.Map{
				"error":   "rate limit exceeded",
				"message": "too many requests, please try again later",
			})
		},
		SkipFailedRequests: false,
	}))

	// Security headers + API version
	app.Use(func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("X-Frame-Options", "DENY")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	// ETag for conditional caching
	app.Use(ETagMiddleware())

	// Default Cache-Control headers
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout — fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	// REST API v1 — 5s per-request timeout; every handler is in-memory or a
	// single cache round trip
	v1 := app.Group("/v1")
	v1.Get("/overlay", timeout.NewWithContext(OverlayHandler(deps), 5*time.Second))
	v1.Get("/overlay/rings", timeout.NewWithContext(RingsHandler(deps), 5*time.Second))
	v1.Get("/settings", timeout.NewWithContext(GetSettingsHandler(deps), 5*time.Second))
	v1.Put("/settings", timeout.NewWithContext(PutSettingsHandler(deps), 5*time.Second))
	v1.Get("/layers", timeout.NewWithContext(LayersHandler(deps), 5*time.Second))
	v1.Get("/stations/nearby", timeout.NewWithContext(NearbyStationsHandler(deps), 5*time.Second))
	v1.Get("/status", timeout.NewWithContext(StatusHandler(deps), 5*time.Second))

	// API documentation (Swagger UI)
	SetupDocs(app)

	// WebSocket: live overlay stream for embedding clients
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(WebSocketHandler(deps)))
}

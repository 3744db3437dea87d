package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/gofiber/websocket/v2"

	"github.com/mzabaleta/veloloop/internal/pkg/metrics"
)

// routeTimeout bounds handlers that fan out to the routing oracle. Loop
// convergence can take several oracle round-trips, so it gets more room
// than a plain read.
const (
	routeTimeout = 60 * time.Second
	readTimeout  = 15 * time.Second
)

// SetupRoutes registers all REST, GraphQL, and WebSocket routes.
func SetupRoutes(app *fiber.App, deps *Dependencies) {
	// Prometheus metrics
	app.Use(metrics.Middleware())
	app.Get("/metrics", metrics.Handler())

	// Response compression (gzip)
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed, // Balance speed vs compression ratio
	}))

	// Request ID
	app.Use(requestid.New())

	// Propagate request ID into slog context
	app.Use(RequestIDLogMiddleware())

	// Access logs (structured HTTP request logging)
	app.Use(AccessLogMiddleware())

	// Rate limiting: 120 requests per minute per IP
	app.Use(limiter.New(limiter.Config{
		Max:        120,
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
		c.Set("X-XSS-Protection", "1; mode=block")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("X-API-Version", "1.0.0")
		return c.Next()
	})

	// ETag for conditional caching
	app.Use(ETagMiddleware())

	// Default Cache-Control headers
	app.Use(CachingMiddleware())

	// Health & readiness (no timeout, fast internal checks)
	app.Get("/v1/health", HealthHandler(deps))
	app.Get("/v1/ready", ReadyHandler(deps))

	v1 := app.Group("/v1")

	// Loop generation and session editing
	v1.Post("/loops", timeout.NewWithContext(GenerateLoopHandler(deps), routeTimeout))
	v1.Get("/sessions/:id", timeout.NewWithContext(GetSessionHandler(deps), readTimeout))
	v1.Delete("/sessions/:id", CloseSessionHandler(deps))
	v1.Post("/sessions/:id/waypoints", timeout.NewWithContext(AddWaypointHandler(deps), routeTimeout))
	v1.Post("/sessions/:id/waypoints/:wid/move", timeout.NewWithContext(MoveWaypointHandler(deps), routeTimeout))
	v1.Delete("/sessions/:id/waypoints/:wid", timeout.NewWithContext(RemoveWaypointHandler(deps), routeTimeout))
	v1.Post("/sessions/:id/save", timeout.NewWithContext(SaveRouteHandler(deps), readTimeout))

	// Single-leg preview
	v1.Post("/route/leg", timeout.NewWithContext(RouteLegHandler(deps), readTimeout))

	// Geocoding
	v1.Get("/geocode", timeout.NewWithContext(GeocodeHandler(deps), readTimeout))

	// Route archive
	v1.Get("/routes", timeout.NewWithContext(ListRoutesHandler(deps), readTimeout))
	v1.Get("/routes/:id", timeout.NewWithContext(GetSavedRouteHandler(deps), readTimeout))
	v1.Delete("/routes/:id", timeout.NewWithContext(DeleteSavedRouteHandler(deps), readTimeout))

	// GraphQL
	app.Post("/graphql", GraphQLHandler(deps))

	// WebSocket editing channel
	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/sessions/:id", websocket.New(WebSocketHandler(deps)))
}

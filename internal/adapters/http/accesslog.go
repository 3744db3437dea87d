package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// AccessLogMiddleware emits one structured log line per request. Health and
// metrics probes are skipped; they fire every few seconds and say nothing.
// The route's resource ID (session or saved route) is logged when present,
// so one editing session can be followed across its requests.
func AccessLogMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		path := c.Path()
		if path == "/v1/health" || path == "/v1/ready" || path == "/metrics" {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()

		logger := LoggerFromCtx(c.UserContext()).With(
			"method", c.Method(),
			"path", path,
			"status", status,
			"duration_ms", float64(time.Since(start).Microseconds())/1000.0,
			"bytes", len(c.Response().Body()),
		)
		if id := c.Params("id"); id != "" {
			logger = logger.With("resource_id", id)
		}
		if err != nil {
			logger = logger.With("error", err.Error())
		}

		switch {
		case err != nil || status >= 500:
			logger.Error("request")
		case status >= 400:
			logger.Warn("request")
		default:
			logger.Info("request")
		}
		return err
	}
}

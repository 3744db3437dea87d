package http

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// etaggable reports whether a path belongs to the cacheable read surface.
// Session routes are live editing state and are served no-store; validators
// on them would invite clients to revalidate what is never cacheable.
func etaggable(path string) bool {
	return strings.HasPrefix(path, "/v1/routes") || strings.HasPrefix(path, "/v1/geocode")
}

// ETagMiddleware adds a weak validator to archive and geocode responses and
// answers If-None-Match with 304. Saved routes carry full geometry; a
// revalidation round-trip is much cheaper than re-sending one.
func ETagMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if err := c.Next(); err != nil {
			return err
		}
		if c.Method() != fiber.MethodGet || c.Response().StatusCode() != fiber.StatusOK {
			return nil
		}
		if !etaggable(c.Path()) {
			return nil
		}

		body := c.Response().Body()
		if len(body) == 0 {
			return nil
		}
		sum := sha256.Sum256(body)
		etag := `W/"` + hex.EncodeToString(sum[:8]) + `"`
		c.Set(fiber.HeaderETag, etag)

		for _, candidate := range strings.Split(c.Get(fiber.HeaderIfNoneMatch), ",") {
			if strings.TrimSpace(candidate) == etag {
				c.Status(fiber.StatusNotModified)
				c.Response().ResetBody()
				return nil
			}
		}
		return nil
	}
}

package middlewares

import (
	"time"

	"space-pulse/cmd/server/ctxkeys"
	"space-pulse/cmd/server/handlers/httperr"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// limit builds a fixed-window limiter answering 429 through the global error handler.
// max <= 0 turns it into a pass-through so callers don't need an if-statement.
func limit(max int, expiration time.Duration, skip func(c *fiber.Ctx) bool, key func(c *fiber.Ctx) string) fiber.Handler {
	if max <= 0 {
		return func(c *fiber.Ctx) error { return c.Next() }
	}

	return limiter.New(limiter.Config{
		Max:          max,
		Expiration:   expiration,
		Next:         skip,
		KeyGenerator: key,
		LimitReached: func(c *fiber.Ctx) error {
			return httperr.Fail(httperr.ErrTooManyRequests)
		},
	})
}

// ConnectLimiter caps stream handshakes per client IP. It runs before the token check, so
// clients retrying with a bad token are throttled too.
func ConnectLimiter(max int, expiration time.Duration) fiber.Handler {
	return limit(max, expiration, nil, func(c *fiber.Ctx) string {
		return "ip:" + c.IP()
	})
}

// MutationLimiter limits writes per authenticated user. Reads pass through, and requests
// without a user (JWT not run yet) fall back to the client IP.
func MutationLimiter(max int, expiration time.Duration) fiber.Handler {
	return limit(max, expiration,
		func(c *fiber.Ctx) bool {
			m := c.Method()
			return m == fiber.MethodGet || m == fiber.MethodHead || m == fiber.MethodOptions
		},
		func(c *fiber.Ctx) string {
			if id, ok := c.Locals(ctxkeys.UserIDKey).(string); ok && id != "" {
				return "user:" + id
			}
			return "ip:" + c.IP()
		},
	)
}

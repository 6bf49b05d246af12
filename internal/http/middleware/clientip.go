package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// ClientIP is the first X-Forwarded-For entry set by the fronting proxy,
// falling back to the peer address.
func ClientIP(c *fiber.Ctx) string {
	if xff := c.Get(fiber.HeaderXForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	return c.IP()
}

package security

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

type HeadersConfig struct {
	IsDevelopment bool
}

// HeadersMiddleware sets the baseline security headers for a JSON API that
// also streams uploaded documents back to clients. Document view routes are
// allowed to render inline; everything else denies framing.
func HeadersMiddleware(cfg HeadersConfig) fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("X-Content-Type-Options", "nosniff")
		c.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Set("Cache-Control", "no-store")

		if strings.HasSuffix(c.Path(), "/view") {
			c.Set("X-Frame-Options", "SAMEORIGIN")
		} else {
			c.Set("X-Frame-Options", "DENY")
			c.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		}

		if !cfg.IsDevelopment {
			c.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		return c.Next()
	}
}

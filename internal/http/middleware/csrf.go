package middleware

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"apphub/internal/apperr"
	"apphub/internal/config"
	"apphub/internal/csrf"
	"apphub/internal/logging"
)

// CSRFTokenLocalKey holds the token for the current client so handlers can
// render it into forms.
const CSRFTokenLocalKey = "csrf_token"

// CSRF issues the double-submit cookie to clients that lack one and verifies
// state-changing requests against it before any handler runs.
func CSRF(cfg config.CSRFConfig, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		cookie := c.Cookies(cfg.CookieName)

		if err := csrf.Verify(csrf.Submission{
			Method: c.Method(),
			Cookie: cookie,
			Header: c.Get(cfg.HeaderName),
			Form:   formToken(c, cfg.FormField),
		}); err != nil {
			logger.Warn("csrf_rejected",
				logging.Security(),
				zap.String("request_id", RequestIDFrom(c)),
				zap.String("method", c.Method()),
				zap.String("path", c.Path()),
				zap.String("ip", ClientIP(c)),
				zap.String("reason", apperr.Message(err)),
			)
			return err
		}

		token := cookie
		if token == "" {
			var err error
			if token, err = csrf.NewToken(); err != nil {
				return apperr.Internal(err, "issue csrf token")
			}
			c.Cookie(&fiber.Cookie{
				Name:     cfg.CookieName,
				Value:    token,
				Path:     "/",
				Secure:   cfg.CookieSecure,
				HTTPOnly: false,
				SameSite: fiber.CookieSameSiteLaxMode,
			})
		}
		c.Locals(CSRFTokenLocalKey, token)

		return c.Next()
	}
}

// CSRFTokenFrom returns the token stored by CSRF, or "".
func CSRFTokenFrom(c *fiber.Ctx) string {
	s, _ := c.Locals(CSRFTokenLocalKey).(string)
	return s
}

// formToken reads the form field only for form encoded bodies so JSON and
// binary requests are never parsed here.
func formToken(c *fiber.Ctx, field string) string {
	if csrf.IsSafeMethod(c.Method()) {
		return ""
	}
	ct := string(c.Request().Header.ContentType())
	if strings.HasPrefix(ct, fiber.MIMEApplicationForm) || strings.HasPrefix(ct, fiber.MIMEMultipartForm) {
		return c.FormValue(field)
	}
	return ""
}

package middleware

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"apphub/internal/apperr"
	"apphub/internal/logging"
	"apphub/internal/model"
	"apphub/internal/rbac"
)

// Identity headers set by the authenticating reverse proxy.
const (
	HeaderAuthEmail             = "X-Auth-Email"
	HeaderAuthPreferredUsername = "X-Auth-Preferred-Username"
	HeaderAuthUser              = "X-Auth-User"

	PrincipalLocalKey = "principal"
)

// Identifier resolves the principal behind a pre-authenticated request.
type Identifier interface {
	Identify(ctx context.Context, email, displayName string) (*model.Principal, error)
}

// Identity trusts the proxy identity headers and stores the resolved
// principal in locals. Requests without an email are unauthenticated.
func Identity(id Identifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		email := model.NormalizeEmail(c.Get(HeaderAuthEmail))
		if email == "" {
			return apperr.Unauthenticated("missing identity header")
		}

		name := c.Get(HeaderAuthPreferredUsername)
		if name == "" {
			name = c.Get(HeaderAuthUser)
		}

		p, err := id.Identify(c.UserContext(), email, name)
		if err != nil {
			return err
		}
		c.Locals(PrincipalLocalKey, *p)

		return c.Next()
	}
}

// PrincipalFrom returns the principal stored by Identity.
func PrincipalFrom(c *fiber.Ctx) (model.Principal, bool) {
	p, ok := c.Locals(PrincipalLocalKey).(model.Principal)
	return p, ok
}

// RequireRole rejects requests whose principal ranks below min. It must run
// after Identity.
func RequireRole(min model.Role, logger *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		p, ok := PrincipalFrom(c)
		if !ok {
			return apperr.Unauthenticated("missing principal")
		}
		if err := rbac.Require(p, min); err != nil {
			logger.Warn("access_denied",
				logging.Security(),
				zap.String("request_id", RequestIDFrom(c)),
				zap.String("actor", p.Email),
				zap.String("role", p.Role.String()),
				zap.String("required", min.String()),
				zap.String("path", c.Path()),
			)
			return err
		}
		return c.Next()
	}
}

package auth

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/custody-service/internal/domain"
	apperrors "github.com/spec-kit/custody-service/pkg/util/errorutil"
)

// RequireRole admits callers whose role ranks at or above min.
func RequireRole(min domain.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		if !principal.Role.Satisfies(min) {
			return apperrors.NewForbidden("insufficient role: " + string(min) + " required")
		}
		return c.Next()
	}
}

// RequireAuthenticated ensures some principal is present.
func RequireAuthenticated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := PrincipalFromContext(c); !ok {
			return apperrors.NewUnauthorized("authentication required")
		}
		return c.Next()
	}
}

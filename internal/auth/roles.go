package auth

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-router/internal/domain"
)

// RequireSubject ensures the caller authenticated as one of the allowed subjects.
func RequireSubject(allowed ...domain.SubjectType) fiber.Handler {
	allowedSet := make(map[domain.SubjectType]struct{}, len(allowed))
	for _, subject := range allowed {
		allowedSet[subject] = struct{}{}
	}

	return func(c *fiber.Ctx) error {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, http.StatusText(http.StatusUnauthorized))
		}
		if _, exists := allowedSet[principal.Subject]; !exists {
			return fiber.NewError(http.StatusForbidden, "insufficient role")
		}
		return c.Next()
	}
}

// RequireAdapter admits platform adapters and operators.
func RequireAdapter() fiber.Handler {
	return RequireSubject(domain.SubjectTypeAdapter, domain.SubjectTypeOperator)
}

// RequireOperator admits operators only.
func RequireOperator() fiber.Handler {
	return RequireSubject(domain.SubjectTypeOperator)
}

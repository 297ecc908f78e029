package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-router/internal/domain"
	apperrors "github.com/spec-kit/support-router/pkg/util/errorutil"
)

const principalKey = "auth_principal"

// LocalClientID names the principal used when authentication is disabled.
const LocalClientID = "local"

// Principal represents the authenticated caller.
type Principal struct {
	ClientID string
	Subject  domain.SubjectType
}

// AuthMiddleware validates bearer tokens and stores principals.
type AuthMiddleware struct {
	tokens  *TokenManager
	enabled bool
}

// NewAuthMiddleware constructs middleware. A disabled middleware treats every
// caller as a local operator.
func NewAuthMiddleware(tokens *TokenManager, enabled bool) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens, enabled: enabled}
}

// Handle enforces authentication for protected routes.
func (m *AuthMiddleware) Handle(c *fiber.Ctx) error {
	if !m.enabled {
		c.Locals(principalKey, &Principal{ClientID: LocalClientID, Subject: domain.SubjectTypeOperator})
		return c.Next()
	}

	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	switch claims.Subject {
	case domain.SubjectTypeAdapter, domain.SubjectTypeOperator:
	default:
		return apperrors.NewUnauthorized("unknown subject")
	}

	c.Locals(principalKey, &Principal{ClientID: claims.ClientID, Subject: claims.Subject})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated client.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}

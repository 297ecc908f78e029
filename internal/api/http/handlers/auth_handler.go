package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-router/internal/api/dto"
	"github.com/spec-kit/support-router/internal/service"
	apperrors "github.com/spec-kit/support-router/pkg/util/errorutil"
)

// AuthHandler exposes the token endpoint for API clients.
type AuthHandler struct {
	auth *service.AuthService
}

// NewAuthHandler constructs handler.
func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: authService}
}

// Token handles POST /auth/token.
func (h *AuthHandler) Token(c *fiber.Ctx) error {
	var req dto.TokenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.ClientID == "" || req.ClientSecret == "" {
		return apperrors.NewValidationError("client_id and client_secret required", nil)
	}

	meta, token, err := h.auth.IssueToken(c.UserContext(), req.ClientID, req.ClientSecret)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"data": dto.AuthResponse{Token: token, Subject: meta.Subject, ExpiresAt: meta.ExpiresAt},
	})
}

package dto

import (
	"time"

	"github.com/spec-kit/support-router/internal/domain"
)

// TokenRequest payload for client login.
type TokenRequest struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string             `json:"token"`
	Subject   domain.SubjectType `json:"subject"`
	ExpiresAt time.Time          `json:"expires_at"`
}

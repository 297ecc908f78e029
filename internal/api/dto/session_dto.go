package dto

import (
	"time"

	"github.com/spec-kit/support-router/internal/domain"
)

// SessionResponse exposes lifecycle data only; participant identities stay private.
type SessionResponse struct {
	Ticket       string               `json:"ticket"`
	Status       domain.SessionStatus `json:"status"`
	HasResponder bool                 `json:"has_responder"`
	CreatedAt    time.Time            `json:"created_at"`
	ClosedAt     *time.Time           `json:"closed_at"`
}

// NewSessionResponse maps a domain session.
func NewSessionResponse(s domain.Session) SessionResponse {
	return SessionResponse{
		Ticket:       s.Ticket,
		Status:       s.Status,
		HasResponder: s.HasResponder(),
		CreatedAt:    s.CreatedAt,
		ClosedAt:     s.ClosedAt,
	}
}

// SweepResponse reports how many waiting sessions were expired.
type SweepResponse struct {
	Expired   int    `json:"expired"`
	OlderThan string `json:"older_than"`
}

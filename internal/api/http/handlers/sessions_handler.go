package handlers

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-router/internal/api/dto"
	"github.com/spec-kit/support-router/internal/service"
	apperrors "github.com/spec-kit/support-router/pkg/util/errorutil"
)

// SessionsHandler serves operator endpoints over the session table.
type SessionsHandler struct {
	router       *service.Router
	defaultSweep time.Duration
}

// NewSessionsHandler constructs handler. defaultSweep is used when a sweep
// request carries no older_than parameter.
func NewSessionsHandler(router *service.Router, defaultSweep time.Duration) *SessionsHandler {
	return &SessionsHandler{router: router, defaultSweep: defaultSweep}
}

// GetSession GET /v1/sessions/:ticket.
func (h *SessionsHandler) GetSession(c *fiber.Ctx) error {
	session, err := h.router.SessionStatus(c.UserContext(), c.Params("ticket"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.NewSessionResponse(session)})
}

// Reply POST /v1/sessions/:ticket/reply.
func (h *SessionsHandler) Reply(c *fiber.Ctx) error {
	var req dto.ReplyRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if strings.TrimSpace(req.Text) == "" {
		return apperrors.NewValidationError("text required", nil)
	}
	res := h.router.OnOperatorReply(c.UserContext(), c.Params("ticket"), req.Text)
	return respond(c, res)
}

// Sweep POST /v1/sessions/sweep.
func (h *SessionsHandler) Sweep(c *fiber.Ctx) error {
	age := h.defaultSweep
	if raw := c.Query("older_than"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return apperrors.NewValidationError("invalid older_than", map[string]any{"older_than": raw})
		}
		age = parsed
	}
	if age <= 0 {
		return apperrors.NewValidationError("older_than must be positive", nil)
	}

	expired := h.router.ExpireWaiting(c.UserContext(), age)
	return c.JSON(fiber.Map{"data": dto.SweepResponse{Expired: expired, OlderThan: age.String()}})
}

package handlers

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/support-router/internal/api/dto"
	"github.com/spec-kit/support-router/internal/domain"
	"github.com/spec-kit/support-router/internal/service"
	apperrors "github.com/spec-kit/support-router/pkg/util/errorutil"
)

// EventsHandler accepts inbound platform events from the adapter.
type EventsHandler struct {
	router *service.Router
}

// NewEventsHandler constructs handler.
func NewEventsHandler(router *service.Router) *EventsHandler {
	return &EventsHandler{router: router}
}

// RequestHelp POST /v1/help.
func (h *EventsHandler) RequestHelp(c *fiber.Ctx) error {
	var req dto.HelpRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Requester == nil {
		return apperrors.NewValidationError("requester required", nil)
	}
	res := h.router.OnRequestHelp(c.UserContext(), domain.Identity(*req.Requester))
	return respond(c, res)
}

// Claim POST /v1/claim.
func (h *EventsHandler) Claim(c *fiber.Ctx) error {
	var req dto.ClaimRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Responder == nil || strings.TrimSpace(req.Ticket) == "" {
		return apperrors.NewValidationError("ticket and responder required", nil)
	}
	res := h.router.OnClaim(c.UserContext(), req.Ticket, domain.Identity(*req.Responder))
	return respond(c, res)
}

// Message POST /v1/messages.
func (h *EventsHandler) Message(c *fiber.Ctx) error {
	var req dto.MessageRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Sender == nil {
		return apperrors.NewValidationError("sender required", nil)
	}
	res := h.router.OnMessage(c.UserContext(), domain.Identity(*req.Sender), req.Text)
	return respond(c, res)
}

// End POST /v1/end.
func (h *EventsHandler) End(c *fiber.Ctx) error {
	var req dto.EndRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Identity == nil {
		return apperrors.NewValidationError("identity required", nil)
	}
	res := h.router.OnEndDialog(c.UserContext(), domain.Identity(*req.Identity))
	return respond(c, res)
}

// Command POST /v1/commands.
func (h *EventsHandler) Command(c *fiber.Ctx) error {
	var req dto.CommandRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.Identity == nil || strings.TrimSpace(req.Command) == "" {
		return apperrors.NewValidationError("identity and command required", nil)
	}
	res := h.router.OnCommand(c.UserContext(), domain.Identity(*req.Identity), domain.Command(req.Command))
	return respond(c, res)
}

// respond answers 200 for every router outcome, refusals included.
func respond(c *fiber.Ctx, res service.Result) error {
	body := dto.ResultResponse{
		Outcome:    string(res.Outcome),
		Ticket:     res.Ticket,
		Persisted:  res.Persisted,
		Deliveries: make([]dto.DeliveryResponse, 0, len(res.Deliveries)),
	}
	for _, d := range res.Deliveries {
		body.Deliveries = append(body.Deliveries, dto.NewDeliveryResponse(d))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"data": body})
}

package dto

import (
	"time"

	"github.com/spec-kit/support-router/internal/domain"
)

// HelpRequest payload for POST /v1/help.
type HelpRequest struct {
	Requester *int64 `json:"requester"`
}

// ClaimRequest payload for POST /v1/claim. Ticket may carry the raw action data.
type ClaimRequest struct {
	Ticket    string `json:"ticket"`
	Responder *int64 `json:"responder"`
}

// MessageRequest payload for POST /v1/messages.
type MessageRequest struct {
	Sender *int64 `json:"sender"`
	Text   string `json:"text"`
}

// EndRequest payload for POST /v1/end.
type EndRequest struct {
	Identity *int64 `json:"identity"`
}

// CommandRequest payload for POST /v1/commands.
type CommandRequest struct {
	Identity *int64 `json:"identity"`
	Command  string `json:"command"`
}

// ReplyRequest payload for POST /v1/sessions/:ticket/reply.
type ReplyRequest struct {
	Text string `json:"text"`
}

// ActionResponse is an inline action attached to a delivery.
type ActionResponse struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// DeliveryResponse is one outbound message the adapter must send.
type DeliveryResponse struct {
	Target    int64            `json:"target"`
	Text      string           `json:"text"`
	From      string           `json:"from,omitempty"`
	Ticket    string           `json:"ticket,omitempty"`
	Actions   []ActionResponse `json:"actions,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
}

// ResultResponse mirrors a router result.
type ResultResponse struct {
	Outcome    string             `json:"outcome"`
	Ticket     string             `json:"ticket,omitempty"`
	Persisted  bool               `json:"persisted"`
	Deliveries []DeliveryResponse `json:"deliveries"`
}

// NewDeliveryResponse maps a domain delivery.
func NewDeliveryResponse(d domain.Delivery) DeliveryResponse {
	resp := DeliveryResponse{
		Target:    int64(d.Target),
		Text:      d.Text,
		From:      string(d.From),
		Ticket:    d.Ticket,
		CreatedAt: d.CreatedAt,
	}
	for _, a := range d.Actions {
		resp.Actions = append(resp.Actions, ActionResponse{Label: a.Label, Data: a.Data})
	}
	return resp
}

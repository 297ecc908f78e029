package events

import (
	"time"

	"github.com/spec-kit/support-router/internal/domain"
)

// EventType enumerates supported event identifiers.
type EventType string

const (
	EventSessionRequested EventType = "session_requested"
	EventSessionClaimed   EventType = "session_claimed"
	EventSessionClosed    EventType = "session_closed"
	EventDelivery         EventType = "delivery"
	EventSelfHelpTurn     EventType = "self_help_turn"
	EventFeedbackReceived EventType = "feedback_received"
)

// Event represents a domain event emitted by the router.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Ticket    string          `json:"ticket,omitempty"`
	Actor     domain.Identity `json:"actor"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   interface{}     `json:"payload"`
}

// TransitionPayload accompanies session lifecycle events.
type TransitionPayload struct {
	Transition domain.Transition `json:"transition"`
}

// DeliveryPayload carries one outbound message for the gateway.
type DeliveryPayload struct {
	Delivery domain.Delivery `json:"delivery"`
}

// SelfHelpTurnPayload asks for an assistant reply to the buffered conversation.
type SelfHelpTurnPayload struct {
	Identity domain.Identity `json:"identity"`
	Turns    []domain.Turn   `json:"turns"`
}

// FeedbackPayload carries anonymous feedback text.
type FeedbackPayload struct {
	Text       string    `json:"text"`
	Length     int       `json:"length"`
	ReceivedAt time.Time `json:"received_at"`
}

package domain

import "time"

// TurnRole tags who authored a conversation turn.
type TurnRole string

const (
	TurnRoleSystem    TurnRole = "system"
	TurnRoleUser      TurnRole = "user"
	TurnRoleAssistant TurnRole = "assistant"
)

// Turn is one entry of a self-help conversation buffer.
type Turn struct {
	Role TurnRole `json:"role" cbor:"role"`
	Text string   `json:"text" cbor:"text"`
}

// Action is an inline action offered with a delivery, such as claiming a ticket.
type Action struct {
	Label string `json:"label"`
	Data  string `json:"data"`
}

// Delivery is one outbound message for the gateway. From is set on relayed
// text and names the side it came from; system notices leave it empty.
type Delivery struct {
	Target    Identity  `json:"target"`
	Text      string    `json:"text"`
	From      Role      `json:"from,omitempty"`
	Actions   []Action  `json:"actions,omitempty"`
	Ticket    string    `json:"ticket,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

package domain

import "time"

// Transition records one lifecycle change of a session for the audit trail.
type Transition struct {
	Ticket string        `json:"ticket"`
	From   SessionStatus `json:"from"`
	To     SessionStatus `json:"to"`
	Actor  Identity      `json:"actor"`
	At     time.Time     `json:"at"`
}

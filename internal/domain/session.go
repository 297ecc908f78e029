package domain

import "time"

// SessionStatus enumerates lifecycle states for anonymous sessions.
type SessionStatus string

const (
	SessionStatusWaiting SessionStatus = "waiting"
	SessionStatusActive  SessionStatus = "active"
	SessionStatusClosed  SessionStatus = "closed"
)

// Valid reports whether the status is one of the known states.
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusWaiting, SessionStatusActive, SessionStatusClosed:
		return true
	}
	return false
}

// Open reports whether the session still holds its participants' slots.
func (s SessionStatus) Open() bool {
	return s == SessionStatusWaiting || s == SessionStatusActive
}

// Session is the aggregate for one requester/responder pairing, keyed by ticket.
type Session struct {
	Ticket    string
	Requester Identity
	Responder *Identity
	Status    SessionStatus
	CreatedAt time.Time
	ClosedAt  *time.Time
}

// HasResponder reports whether the session was claimed.
func (s Session) HasResponder() bool {
	return s.Responder != nil
}

// Counterpart returns the other participant for the given identity.
func (s Session) Counterpart(id Identity) (Identity, bool) {
	switch {
	case id == s.Requester && s.Responder != nil:
		return *s.Responder, true
	case s.Responder != nil && id == *s.Responder:
		return s.Requester, true
	}
	return 0, false
}

// Clone returns a deep copy so callers never share pointers with the store.
func (s Session) Clone() Session {
	out := s
	if s.Responder != nil {
		r := *s.Responder
		out.Responder = &r
	}
	if s.ClosedAt != nil {
		t := *s.ClosedAt
		out.ClosedAt = &t
	}
	return out
}

package domain

import "errors"

// Store and registry outcomes. Callers match them with errors.Is.
var (
	ErrDuplicateTicket         = errors.New("duplicate ticket")
	ErrRequesterAlreadyActive  = errors.New("requester already has an active session")
	ErrResponderAlreadyActive  = errors.New("responder already has an active session")
	ErrNotFound                = errors.New("ticket not found")
	ErrAlreadyClaimed          = errors.New("session already claimed or closed")
	ErrPersistenceWriteFailure = errors.New("persistence write failed")
	ErrInvalidCredentials      = errors.New("invalid credentials")
)

package domain

// Mode is the current interaction mode of an identity. The zero value is idle.
type Mode string

const (
	ModeIdle             Mode = ""
	ModeWaitingResponder Mode = "waiting_responder"
	ModeSelfHelp         Mode = "self_help"
	ModeInSession        Mode = "in_session"
	ModeFeedback         Mode = "feedback"
)

// Valid reports whether the mode is known.
func (m Mode) Valid() bool {
	switch m {
	case ModeIdle, ModeWaitingResponder, ModeSelfHelp, ModeInSession, ModeFeedback:
		return true
	}
	return false
}

// Anonymous reports whether the mode belongs to an anonymous session.
func (m Mode) Anonymous() bool {
	return m == ModeWaitingResponder || m == ModeInSession
}

// Command is a menu selection or slash command forwarded by the platform adapter.
type Command string

const (
	CommandStart      Command = "start"
	CommandCancel     Command = "cancel"
	CommandReset      Command = "reset"
	CommandSelfHelp   Command = "self_help"
	CommandFeedback   Command = "feedback"
	CommandSpecialist Command = "specialist"
)

package domain

import "strconv"

// Identity is the opaque platform-assigned id of a chat or party.
type Identity int64

func (i Identity) String() string {
	return strconv.FormatInt(int64(i), 10)
}

// Role classifies an identity relative to a session.
type Role string

const (
	RoleNone      Role = ""
	RoleRequester Role = "requester"
	RoleResponder Role = "responder"
	RoleOperator  Role = "operator"
)

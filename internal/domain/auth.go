package domain

import "time"

// SubjectType differentiates the callers allowed on the adapter API.
type SubjectType string

const (
	SubjectTypeAdapter  SubjectType = "ADAPTER"
	SubjectTypeOperator SubjectType = "OPERATOR"
)

// Token represents issued authentication token metadata.
type Token struct {
	SubjectID string
	Subject   SubjectType
	ExpiresAt time.Time
	IssuedAt  time.Time
}

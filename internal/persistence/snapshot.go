package persistence

import (
	"time"

	"github.com/spec-kit/support-router/internal/domain"
)

// SnapshotVersion is bumped when the snapshot layout changes incompatibly.
const SnapshotVersion = 1

// Snapshot is the auxiliary per-identity state. Session lifecycle is not part of it;
// the session table is authoritative for that.
type Snapshot struct {
	Version           int                               `json:"version" cbor:"version"`
	TakenAt           time.Time                         `json:"taken_at" cbor:"taken_at"`
	Mode              map[domain.Identity]domain.Mode   `json:"mode" cbor:"mode"`
	Conversation      map[domain.Identity][]domain.Turn `json:"conversation" cbor:"conversation"`
	TicketOfRequester map[domain.Identity]string        `json:"ticket_of_requester" cbor:"ticket_of_requester"`
}

// NewSnapshot returns an empty snapshot with initialized maps.
func NewSnapshot() Snapshot {
	return Snapshot{
		Version:           SnapshotVersion,
		Mode:              map[domain.Identity]domain.Mode{},
		Conversation:      map[domain.Identity][]domain.Turn{},
		TicketOfRequester: map[domain.Identity]string{},
	}
}

// normalize replaces nil maps so restored snapshots are always writable.
func (s *Snapshot) normalize() {
	if s.Mode == nil {
		s.Mode = map[domain.Identity]domain.Mode{}
	}
	if s.Conversation == nil {
		s.Conversation = map[domain.Identity][]domain.Turn{}
	}
	if s.TicketOfRequester == nil {
		s.TicketOfRequester = map[domain.Identity]string{}
	}
}

// Source produces the current snapshot of in-memory state.
type Source interface {
	Snapshot() Snapshot
}

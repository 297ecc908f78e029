package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/support-router/internal/domain"
	"github.com/spec-kit/support-router/internal/persistence"
)

// SnapshotService joins the registry and the state store into the persisted
// snapshot and restores them at startup.
type SnapshotService struct {
	registry *TicketRegistry
	state    *StateStore
	sessions *SessionStore
	logger   *zap.Logger
}

// NewSnapshotService builds the service.
func NewSnapshotService(registry *TicketRegistry, state *StateStore, sessions *SessionStore, logger *zap.Logger) *SnapshotService {
	return &SnapshotService{
		registry: registry,
		state:    state,
		sessions: sessions,
		logger:   logger.Named("snapshot"),
	}
}

// Snapshot implements persistence.Source.
func (s *SnapshotService) Snapshot() persistence.Snapshot {
	snap := persistence.NewSnapshot()
	snap.Mode, snap.Conversation = s.state.Export()
	snap.TicketOfRequester = s.registry.Export()
	return snap
}

// ReconcileReport summarizes the changes made while restoring.
type ReconcileReport struct {
	OrphanTickets   int `json:"orphan_tickets"`
	RelinkedTickets int `json:"relinked_tickets"`
	RebuiltModes    int `json:"rebuilt_modes"`
	ResetModes      int `json:"reset_modes"`
}

// Changed reports whether reconciliation altered the restored state.
func (r ReconcileReport) Changed() bool {
	return r.OrphanTickets+r.RelinkedTickets+r.RebuiltModes+r.ResetModes > 0
}

// Restore loads snap into memory and reconciles it against the session table,
// which must already be loaded.
func (s *SnapshotService) Restore(ctx context.Context, snap persistence.Snapshot) ReconcileReport {
	s.state.Import(snap.Mode, snap.Conversation)
	s.registry.Import(snap.TicketOfRequester)

	var report ReconcileReport

	// tickets the table never saw are orphans
	for requester, ticket := range s.registry.Export() {
		if !s.sessions.Exists(ctx, ticket) {
			s.registry.Unlink(ticket)
			report.OrphanTickets++
			s.logger.Info("dropped orphan ticket", zap.String("ticket", ticket), zap.Stringer("requester", requester))
		}
	}

	open := s.sessions.ListOpen()
	participants := make(map[domain.Identity]domain.Mode, len(open)*2)
	for _, session := range open {
		if current, ok := s.registry.TicketOf(session.Requester); !ok || current != session.Ticket {
			s.registry.Link(session.Ticket, session.Requester)
			report.RelinkedTickets++
		}

		switch session.Status {
		case domain.SessionStatusWaiting:
			participants[session.Requester] = domain.ModeWaitingResponder
		case domain.SessionStatusActive:
			participants[session.Requester] = domain.ModeInSession
			if session.Responder != nil {
				participants[*session.Responder] = domain.ModeInSession
			}
		}
	}

	for id, want := range participants {
		if s.state.Mode(id) != want {
			s.state.SetMode(id, want)
			report.RebuiltModes++
		}
	}

	// anonymous modes without an open session would trap the identity
	modes, _ := s.state.Export()
	for id, mode := range modes {
		if !mode.Anonymous() {
			continue
		}
		if _, ok := participants[id]; !ok {
			s.state.SetMode(id, domain.ModeIdle)
			report.ResetModes++
		}
	}

	s.logger.Info("state restored",
		zap.Int("modes", len(modes)),
		zap.Int("tickets", s.registry.Len()),
		zap.Int("open_sessions", len(open)),
		zap.Int("orphan_tickets", report.OrphanTickets),
		zap.Int("relinked_tickets", report.RelinkedTickets),
		zap.Int("rebuilt_modes", report.RebuiltModes),
		zap.Int("reset_modes", report.ResetModes))
	return report
}

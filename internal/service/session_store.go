package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/support-router/internal/domain"
	"github.com/spec-kit/support-router/internal/repository"
)

// SessionStore holds the open sessions in memory and writes every transition
// through to the durable repository. A single mutex makes create and claim
// atomic check-and-set operations. Closed sessions leave memory once the
// repository has recorded the close; without a repository they stay.
type SessionStore struct {
	mu              sync.Mutex
	byTicket        map[string]*domain.Session
	openByRequester map[domain.Identity]string
	openByResponder map[domain.Identity]string

	repo   repository.SessionRepository
	logger *zap.Logger
	now    func() time.Time
}

// SessionStoreDependencies wires the store. Repo may be nil for a memory-only store.
type SessionStoreDependencies struct {
	Repo   repository.SessionRepository
	Logger *zap.Logger
	Now    func() time.Time
}

// NewSessionStore constructs an empty store.
func NewSessionStore(deps SessionStoreDependencies) *SessionStore {
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionStore{
		byTicket:        make(map[string]*domain.Session),
		openByRequester: make(map[domain.Identity]string),
		openByResponder: make(map[domain.Identity]string),
		repo:            deps.Repo,
		logger:          logger.Named("session_store"),
		now:             now,
	}
}

// Load rebuilds the in-memory index from the open sessions of the repository.
func (s *SessionStore) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	open, err := s.repo.ListOpen(ctx)
	if err != nil {
		return fmt.Errorf("load open sessions: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.byTicket = make(map[string]*domain.Session, len(open))
	s.openByRequester = make(map[domain.Identity]string, len(open))
	s.openByResponder = make(map[domain.Identity]string, len(open))
	for i := range open {
		session := open[i].Clone()
		if _, taken := s.openByRequester[session.Requester]; taken {
			s.logger.Warn("skipping second open session of requester",
				zap.String("ticket", session.Ticket), zap.Stringer("requester", session.Requester))
			continue
		}
		if session.Responder != nil {
			if _, taken := s.openByResponder[*session.Responder]; taken {
				s.logger.Warn("skipping second open session of responder",
					zap.String("ticket", session.Ticket), zap.Stringer("responder", *session.Responder))
				continue
			}
			s.openByResponder[*session.Responder] = session.Ticket
		}
		s.openByRequester[session.Requester] = session.Ticket
		s.byTicket[session.Ticket] = &session
	}
	s.logger.Info("session table loaded", zap.Int("open_sessions", len(s.byTicket)))
	return nil
}

// Create inserts a waiting session for requester under ticket.
func (s *SessionStore) Create(ctx context.Context, ticket string, requester domain.Identity) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byTicket[ticket]; exists {
		return domain.Session{}, domain.ErrDuplicateTicket
	}
	// a party holds one open session regardless of side
	if s.busyLocked(requester) {
		return domain.Session{}, domain.ErrRequesterAlreadyActive
	}

	session := &domain.Session{
		Ticket:    ticket,
		Requester: requester,
		Status:    domain.SessionStatusWaiting,
		CreatedAt: s.now(),
	}
	if _, err := s.writeThrough(func() error { return s.repo.Insert(ctx, session) }, "insert", ticket); err != nil {
		return domain.Session{}, err
	}

	s.byTicket[ticket] = session
	s.openByRequester[requester] = ticket
	return session.Clone(), nil
}

// Claim assigns responder to a waiting session. Exactly one of several racing
// claims on the same ticket succeeds; the others observe ErrAlreadyClaimed.
func (s *SessionStore) Claim(ctx context.Context, ticket string, responder domain.Identity) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.lookupLocked(ctx, ticket)
	if err != nil {
		return domain.Session{}, err
	}
	if session.Status != domain.SessionStatusWaiting || session.Responder != nil {
		return domain.Session{}, domain.ErrAlreadyClaimed
	}
	if s.busyLocked(responder) {
		return domain.Session{}, domain.ErrResponderAlreadyActive
	}
	if _, err := s.writeThrough(func() error { return s.repo.MarkActive(ctx, ticket, responder) }, "mark_active", ticket); err != nil {
		return domain.Session{}, err
	}

	r := responder
	session.Responder = &r
	session.Status = domain.SessionStatusActive
	s.openByResponder[responder] = ticket
	return session.Clone(), nil
}

// Close moves a session to closed and frees both participants. Closing a
// closed session returns it unchanged.
func (s *SessionStore) Close(ctx context.Context, ticket string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.lookupLocked(ctx, ticket)
	if err != nil {
		return domain.Session{}, err
	}
	if session.Status == domain.SessionStatusClosed {
		return session.Clone(), nil
	}

	closedAt := s.now()
	durable, err := s.writeThrough(func() error { return s.repo.MarkClosed(ctx, ticket, closedAt) }, "mark_closed", ticket)
	if err != nil {
		return domain.Session{}, err
	}

	session.Status = domain.SessionStatusClosed
	session.ClosedAt = &closedAt
	if s.openByRequester[session.Requester] == ticket {
		delete(s.openByRequester, session.Requester)
	}
	if session.Responder != nil && s.openByResponder[*session.Responder] == ticket {
		delete(s.openByResponder, *session.Responder)
	}
	if durable {
		delete(s.byTicket, ticket)
	}
	return session.Clone(), nil
}

// FindByRequester returns the open session of requester.
func (s *SessionStore) FindByRequester(requester domain.Identity) (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked(s.openByRequester, requester)
}

// FindByResponder returns the open session of responder.
func (s *SessionStore) FindByResponder(responder domain.Identity) (domain.Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openLocked(s.openByResponder, responder)
}

// Get returns the session for ticket, consulting the repository for sessions
// that were closed before the process started.
func (s *SessionStore) Get(ctx context.Context, ticket string) (domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, err := s.lookupLocked(ctx, ticket)
	if err != nil {
		return domain.Session{}, err
	}
	return session.Clone(), nil
}

// Exists reports whether the session table knows ticket.
func (s *SessionStore) Exists(ctx context.Context, ticket string) bool {
	_, err := s.Get(ctx, ticket)
	return err == nil
}

// ListOpen returns every waiting or active session ordered by creation time.
func (s *SessionStore) ListOpen() []domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.collectLocked(func(session *domain.Session) bool { return session.Status.Open() })
}

// ListWaitingOlderThan returns waiting sessions created more than age ago.
func (s *SessionStore) ListWaitingOlderThan(age time.Duration) []domain.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-age)
	return s.collectLocked(func(session *domain.Session) bool {
		return session.Status == domain.SessionStatusWaiting && session.CreatedAt.Before(cutoff)
	})
}

// SessionCounts is a point-in-time summary of the table.
type SessionCounts struct {
	Waiting int `json:"waiting"`
	Active  int `json:"active"`
	Closed  int `json:"closed"`
}

// Counts tallies sessions held in memory by status. Closed counts only the
// closed sessions still in memory.
func (s *SessionStore) Counts() SessionCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	var c SessionCounts
	for _, session := range s.byTicket {
		switch session.Status {
		case domain.SessionStatusWaiting:
			c.Waiting++
		case domain.SessionStatusActive:
			c.Active++
		case domain.SessionStatusClosed:
			c.Closed++
		}
	}
	return c
}

func (s *SessionStore) busyLocked(id domain.Identity) bool {
	if _, ok := s.openByRequester[id]; ok {
		return true
	}
	_, ok := s.openByResponder[id]
	return ok
}

func (s *SessionStore) openLocked(index map[domain.Identity]string, id domain.Identity) (domain.Session, bool) {
	ticket, ok := index[id]
	if !ok {
		return domain.Session{}, false
	}
	session, ok := s.byTicket[ticket]
	if !ok {
		return domain.Session{}, false
	}
	return session.Clone(), true
}

func (s *SessionStore) collectLocked(keep func(*domain.Session) bool) []domain.Session {
	var out []domain.Session
	for _, session := range s.byTicket {
		if keep(session) {
			out = append(out, session.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// lookupLocked finds ticket in memory, falling back to the repository for
// closed sessions. Open sessions found only in the repository are cached.
func (s *SessionStore) lookupLocked(ctx context.Context, ticket string) (*domain.Session, error) {
	if session, ok := s.byTicket[ticket]; ok {
		return session, nil
	}
	if s.repo == nil {
		return nil, domain.ErrNotFound
	}
	stored, err := s.repo.GetByTicket(ctx, ticket)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("session lookup failed", zap.String("ticket", ticket), zap.Error(err))
		}
		return nil, domain.ErrNotFound
	}
	if stored.Status.Open() {
		// open sessions are loaded at startup; one missing here was opened elsewhere
		s.logger.Warn("open session missing from memory", zap.String("ticket", ticket))
	}
	session := stored.Clone()
	if session.Status.Open() {
		s.byTicket[ticket] = &session
		if _, taken := s.openByRequester[session.Requester]; !taken {
			s.openByRequester[session.Requester] = ticket
		}
		if session.Responder != nil {
			if _, taken := s.openByResponder[*session.Responder]; !taken {
				s.openByResponder[*session.Responder] = ticket
			}
		}
	}
	return &session, nil
}

// writeThrough applies a repository write and reports whether it reached the
// table. Conflicts reported by the table win over the in-memory view; any
// other failure is logged and the transition proceeds in memory.
func (s *SessionStore) writeThrough(write func() error, op, ticket string) (bool, error) {
	if s.repo == nil {
		return false, nil
	}
	err := write()
	if err == nil {
		return true, nil
	}
	switch {
	case errors.Is(err, domain.ErrDuplicateTicket),
		errors.Is(err, domain.ErrRequesterAlreadyActive),
		errors.Is(err, domain.ErrResponderAlreadyActive),
		errors.Is(err, domain.ErrAlreadyClaimed):
		return false, err
	}
	s.logger.Error("session write failed; continuing in memory",
		zap.String("op", op),
		zap.String("ticket", ticket),
		zap.Error(fmt.Errorf("%w: %v", domain.ErrPersistenceWriteFailure, err)))
	return false, nil
}

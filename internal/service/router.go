package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/support-router/internal/domain"
	"github.com/spec-kit/support-router/internal/events"
	"github.com/spec-kit/support-router/internal/observability"
)

// Outcome names what an inbound event resolved to.
type Outcome string

const (
	OutcomeTicketIssued   Outcome = "ticket_issued"
	OutcomeAlreadyActive  Outcome = "already_active"
	OutcomeClaimed        Outcome = "claimed"
	OutcomeResponderBusy  Outcome = "responder_busy"
	OutcomeNotFound       Outcome = "not_found"
	OutcomeAlreadyClaimed Outcome = "already_claimed"
	OutcomeForwarded      Outcome = "forwarded"
	OutcomeStillWaiting   Outcome = "still_waiting"
	OutcomeSessionEnded   Outcome = "session_ended"
	OutcomeClosed         Outcome = "closed"
	OutcomeNoSession      Outcome = "no_session"
	OutcomeSelfHelp       Outcome = "self_help"
	OutcomeFeedback       Outcome = "feedback_forwarded"
	OutcomeModeChanged    Outcome = "mode_changed"
	OutcomeInSession      Outcome = "in_session"
	OutcomeUnavailable    Outcome = "unavailable"
	OutcomeUnknownCommand Outcome = "unknown_command"
	OutcomeDiscarded      Outcome = "discarded"
)

// Result is the typed answer of every router operation.
type Result struct {
	Outcome    Outcome           `json:"outcome"`
	Ticket     string            `json:"ticket,omitempty"`
	Deliveries []domain.Delivery `json:"deliveries"`
	// Persisted is false when the state change could not be flushed durably.
	Persisted bool `json:"persisted"`
}

// StateWriter schedules and flushes snapshot writes.
type StateWriter interface {
	MarkDirty()
	Flush(ctx context.Context) error
}

type nopStateWriter struct{}

func (nopStateWriter) MarkDirty()                  {}
func (nopStateWriter) Flush(context.Context) error { return nil }

// maxIssueAttempts bounds regeneration after DuplicateTicket.
const maxIssueAttempts = 16

// Router is the session state machine and message dispatcher.
type Router struct {
	registry   *TicketRegistry
	sessions   *SessionStore
	state      *StateStore
	persister  StateWriter
	dispatcher events.Dispatcher
	metrics    *observability.Metrics
	logger     *zap.Logger
	locks      *keyedMutex

	poolID         domain.Identity
	selfHelpPrompt string
	now            func() time.Time
}

// RouterDependencies bundles collaborators of the router.
type RouterDependencies struct {
	Registry       *TicketRegistry
	Sessions       *SessionStore
	State          *StateStore
	Persister      StateWriter
	Dispatcher     events.Dispatcher
	Metrics        *observability.Metrics
	Logger         *zap.Logger
	ResponderPool  domain.Identity
	SelfHelpPrompt string
	Now            func() time.Time
}

// NewRouter creates the router.
func NewRouter(deps RouterDependencies) *Router {
	persister := deps.Persister
	if persister == nil {
		persister = nopStateWriter{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := deps.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Router{
		registry:       deps.Registry,
		sessions:       deps.Sessions,
		state:          deps.State,
		persister:      persister,
		dispatcher:     deps.Dispatcher,
		metrics:        deps.Metrics,
		logger:         logger.Named("router"),
		locks:          newKeyedMutex(),
		poolID:         deps.ResponderPool,
		selfHelpPrompt: deps.SelfHelpPrompt,
		now:            now,
	}
}

// OnRequestHelp opens a waiting session for requester and broadcasts it to the pool.
func (r *Router) OnRequestHelp(ctx context.Context, requester domain.Identity) Result {
	unlock := r.locks.Lock(requester)
	defer unlock()

	if existing, ok := r.openSessionOf(requester); ok {
		return r.finish(ctx, "request_help", r.rejectActive(requester, existing))
	}

	var (
		session domain.Session
		ticket  string
		err     error
	)
	for attempt := 0; attempt < maxIssueAttempts; attempt++ {
		ticket = r.registry.Issue(requester)
		session, err = r.sessions.Create(ctx, ticket, requester)
		if err == nil {
			break
		}
		r.registry.Unlink(ticket)
		if !errors.Is(err, domain.ErrDuplicateTicket) {
			break
		}
		r.logger.Debug("ticket collision, regenerating", zap.String("ticket", ticket))
	}

	switch {
	case errors.Is(err, domain.ErrRequesterAlreadyActive):
		if existing, ok := r.openSessionOf(requester); ok {
			return r.finish(ctx, "request_help", r.rejectActive(requester, existing))
		}
		return r.finish(ctx, "request_help", Result{
			Outcome:    OutcomeAlreadyActive,
			Deliveries: []domain.Delivery{r.delivery(requester, noticeAlreadyActive, "")},
		})
	case err != nil:
		r.logger.Error("create session failed", zap.Stringer("requester", requester), zap.Error(err))
		return r.finish(ctx, "request_help", Result{
			Outcome:    OutcomeUnavailable,
			Deliveries: []domain.Delivery{r.delivery(requester, noticeUnavailable, "")},
		})
	}

	r.state.SetMode(requester, domain.ModeWaitingResponder)
	r.state.ClearConversation(requester)
	persisted := r.flush(ctx, "request_help")

	r.logger.Info("help requested",
		zap.String("ticket", session.Ticket),
		zap.Stringer("requester", requester),
		zap.Time("created_at", session.CreatedAt))
	r.publish(ctx, events.Event{
		Type:   events.EventSessionRequested,
		Ticket: session.Ticket,
		Actor:  requester,
		Payload: events.TransitionPayload{Transition: domain.Transition{
			Ticket: session.Ticket,
			To:     domain.SessionStatusWaiting,
			Actor:  requester,
			At:     session.CreatedAt,
		}},
	})

	broadcast := r.delivery(r.poolID, noticePoolRequest(session.Ticket), session.Ticket)
	broadcast.Actions = []domain.Action{claimAction(session.Ticket)}
	return r.finish(ctx, "request_help", Result{
		Outcome: OutcomeTicketIssued,
		Ticket:  session.Ticket,
		Deliveries: []domain.Delivery{
			r.delivery(requester, noticeTicketIssued(session.Ticket), session.Ticket),
			broadcast,
		},
		Persisted: persisted,
	})
}

// OnClaim assigns responder to the waiting session behind ticket. The ticket may
// be given as raw claim action data.
func (r *Router) OnClaim(ctx context.Context, ticket string, responder domain.Identity) Result {
	ticket = NormalizeTicket(ticket)
	current, err := r.sessions.Get(ctx, ticket)
	if err != nil {
		return r.finish(ctx, "claim", r.claimFailure(responder, ticket, err))
	}

	unlock := r.locks.Lock(responder, current.Requester)
	defer unlock()

	session, err := r.sessions.Claim(ctx, ticket, responder)
	if err != nil {
		return r.finish(ctx, "claim", r.claimFailure(responder, ticket, err))
	}

	r.state.SetMode(session.Requester, domain.ModeInSession)
	r.state.SetMode(responder, domain.ModeInSession)
	r.state.ClearConversation(responder)
	persisted := r.flush(ctx, "claim")

	r.logger.Info("request claimed", zap.String("ticket", ticket), zap.Stringer("responder", responder))
	r.publish(ctx, events.Event{
		Type:   events.EventSessionClaimed,
		Ticket: ticket,
		Actor:  responder,
		Payload: events.TransitionPayload{Transition: domain.Transition{
			Ticket: ticket,
			From:   domain.SessionStatusWaiting,
			To:     domain.SessionStatusActive,
			Actor:  responder,
			At:     r.now(),
		}},
	})

	return r.finish(ctx, "claim", Result{
		Outcome: OutcomeClaimed,
		Ticket:  ticket,
		Deliveries: []domain.Delivery{
			r.delivery(session.Requester, noticeRequesterJoined(ticket), ticket),
			r.delivery(responder, noticeResponderJoined(ticket), ticket),
			r.delivery(r.poolID, noticePoolTaken(ticket), ticket),
		},
		Persisted: persisted,
	})
}

func (r *Router) claimFailure(responder domain.Identity, ticket string, err error) Result {
	var (
		outcome Outcome
		text    string
	)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		outcome, text = OutcomeNotFound, noticeNotFound
	case errors.Is(err, domain.ErrAlreadyClaimed):
		outcome, text = OutcomeAlreadyClaimed, noticeAlreadyClaimed
	case errors.Is(err, domain.ErrResponderAlreadyActive):
		outcome, text = OutcomeResponderBusy, noticeResponderBusy
	default:
		r.logger.Error("claim failed", zap.String("ticket", ticket), zap.Error(err))
		outcome, text = OutcomeUnavailable, noticeUnavailable
	}
	return Result{
		Outcome:    outcome,
		Ticket:     ticket,
		Deliveries: []domain.Delivery{r.delivery(responder, text, ticket)},
		Persisted:  true,
	}
}

// OnMessage routes plain text from sender.
func (r *Router) OnMessage(ctx context.Context, sender domain.Identity, text string) Result {
	unlock := r.locks.Lock(sender)
	defer unlock()
	return r.finish(ctx, "message", r.route(ctx, sender, text))
}

// Route is OnMessage for callers that only need the deliveries.
func (r *Router) Route(ctx context.Context, sender domain.Identity, text string) []domain.Delivery {
	return r.OnMessage(ctx, sender, text).Deliveries
}

func (r *Router) route(ctx context.Context, sender domain.Identity, text string) Result {
	mode := r.state.Mode(sender)

	session, role, ok := r.resolve(sender)
	if !ok && mode.Anonymous() {
		// mode still claims a session the store no longer holds open
		return r.endedNotice(ctx, sender)
	}
	if ok {
		if want := modeFor(session); mode != want {
			r.state.SetMode(sender, want)
			r.persister.MarkDirty()
		}
		if session.Status == domain.SessionStatusClosed {
			return r.endedNotice(ctx, sender)
		}
		if session.Status == domain.SessionStatusWaiting || session.Responder == nil {
			return Result{
				Outcome:    OutcomeStillWaiting,
				Ticket:     session.Ticket,
				Deliveries: []domain.Delivery{r.delivery(sender, noticeStillWaiting, session.Ticket)},
				Persisted:  true,
			}
		}
		target := session.Requester
		if role == domain.RoleRequester {
			target = *session.Responder
		}
		relayed := r.delivery(target, text, session.Ticket)
		relayed.From = role
		return Result{
			Outcome:    OutcomeForwarded,
			Ticket:     session.Ticket,
			Deliveries: []domain.Delivery{relayed},
			Persisted:  true,
		}
	}

	switch mode {
	case domain.ModeSelfHelp:
		return r.selfHelpTurn(ctx, sender, text)
	case domain.ModeFeedback:
		r.state.SetMode(sender, domain.ModeIdle)
		r.persister.MarkDirty()
		// the sender stays out of the record; feedback is anonymous
		r.logger.Info("feedback received", zap.String("text", text), zap.Int("length", len(text)))
		r.publish(ctx, events.Event{
			Type:    events.EventFeedbackReceived,
			Payload: events.FeedbackPayload{Text: text, Length: len(text), ReceivedAt: r.now()},
		})
		return Result{
			Outcome: OutcomeFeedback,
			Deliveries: []domain.Delivery{
				r.delivery(r.poolID, noticeFeedback(text), ""),
				r.delivery(sender, noticeFeedbackThanks, ""),
			},
			Persisted: true,
		}
	}

	menu := r.delivery(sender, noticeMenu, "")
	menu.Actions = menuActions()
	return Result{Outcome: OutcomeNoSession, Deliveries: []domain.Delivery{menu}, Persisted: true}
}

func (r *Router) selfHelpTurn(ctx context.Context, sender domain.Identity, text string) Result {
	r.state.EnsurePreamble(sender, r.selfHelpPrompt)
	turns := r.state.AppendTurn(sender, domain.Turn{Role: domain.TurnRoleUser, Text: text})
	r.persister.MarkDirty()
	r.publish(ctx, events.Event{
		Type:    events.EventSelfHelpTurn,
		Actor:   sender,
		Payload: events.SelfHelpTurnPayload{Identity: sender, Turns: turns},
	})
	// the assistant reply arrives later through the gateway
	return Result{Outcome: OutcomeSelfHelp, Deliveries: []domain.Delivery{}, Persisted: true}
}

// OnAssistantReply delivers a generated self-help reply. basis is the buffer the
// reply was generated from; a reply for a buffer that changed, was reset or was
// left in the meantime is discarded.
func (r *Router) OnAssistantReply(ctx context.Context, identity domain.Identity, basis []domain.Turn, text string, replyErr error) Result {
	unlock := r.locks.Lock(identity)
	defer unlock()

	if r.state.Mode(identity) != domain.ModeSelfHelp || !sameTail(r.state.Conversation(identity), basis) {
		return r.finish(ctx, "assistant_reply", Result{Outcome: OutcomeDiscarded, Persisted: true})
	}
	if replyErr != nil {
		r.logger.Warn("assistant reply failed", zap.Stringer("identity", identity), zap.Error(replyErr))
		return r.finish(ctx, "assistant_reply", Result{
			Outcome:    OutcomeUnavailable,
			Deliveries: []domain.Delivery{r.delivery(identity, noticeAssistantFailed, "")},
			Persisted:  true,
		})
	}

	r.state.AppendTurn(identity, domain.Turn{Role: domain.TurnRoleAssistant, Text: text})
	r.persister.MarkDirty()
	return r.finish(ctx, "assistant_reply", Result{
		Outcome:    OutcomeSelfHelp,
		Deliveries: []domain.Delivery{r.delivery(identity, text, "")},
		Persisted:  true,
	})
}

func (r *Router) endedNotice(ctx context.Context, sender domain.Identity) Result {
	r.state.SetMode(sender, domain.ModeIdle)
	r.persister.MarkDirty()
	ticket, _ := r.registry.TicketOf(sender)
	return Result{
		Outcome:    OutcomeSessionEnded,
		Ticket:     ticket,
		Deliveries: []domain.Delivery{r.delivery(sender, noticeSessionEnded, ticket)},
		Persisted:  true,
	}
}

// OnEndDialog closes the session identity participates in. Outside a session
// it drops whatever mode the identity is in.
func (r *Router) OnEndDialog(ctx context.Context, identity domain.Identity) Result {
	peek, _, _ := r.resolve(identity)
	for {
		unlock := r.locks.Lock(participantsOf(peek, identity)...)
		current, _, ok := r.resolve(identity)
		switch {
		case !ok:
			res := r.leaveMode(identity)
			unlock()
			return r.finish(ctx, "end", res)
		case peek.Ticket != "" && current.Ticket != peek.Ticket:
			unlock()
			return r.finish(ctx, "end", Result{
				Outcome:    OutcomeNoSession,
				Deliveries: []domain.Delivery{r.delivery(identity, noticeNoSession, "")},
				Persisted:  true,
			})
		case current.Ticket == peek.Ticket && samePeer(current, peek):
			// every participant of the current session is held
			res := r.closeSession(ctx, current.Ticket, identity, noticeClosed)
			unlock()
			return r.finish(ctx, "end", res)
		}
		// a claim or request landed between the peek and the lock
		unlock()
		peek = current
	}
}

// leaveMode answers end outside a session. Any mode, self-help included, is
// dropped so the next message reaches the menu.
func (r *Router) leaveMode(identity domain.Identity) Result {
	if r.state.HasMode(identity) || len(r.state.Conversation(identity)) > 0 {
		r.state.Reset(identity)
		r.persister.MarkDirty()
	}
	menu := r.delivery(identity, noticeNoSession, "")
	menu.Actions = menuActions()
	return Result{Outcome: OutcomeNoSession, Deliveries: []domain.Delivery{menu}, Persisted: true}
}

// participantsOf lists the identities to lock for session plus extra. A zero
// session contributes nothing.
func participantsOf(session domain.Session, extra domain.Identity) []domain.Identity {
	ids := []domain.Identity{extra}
	if session.Ticket == "" {
		return ids
	}
	ids = append(ids, session.Requester)
	if session.Responder != nil {
		ids = append(ids, *session.Responder)
	}
	return ids
}

func samePeer(a, b domain.Session) bool {
	if a.Responder == nil || b.Responder == nil {
		return a.Responder == nil && b.Responder == nil
	}
	return *a.Responder == *b.Responder
}

// closeSession closes ticket, frees both modes and notifies the participants.
func (r *Router) closeSession(ctx context.Context, ticket string, actor domain.Identity, notice func(string) string) Result {
	before, err := r.sessions.Get(ctx, ticket)
	if err != nil {
		return Result{
			Outcome:    OutcomeNoSession,
			Deliveries: []domain.Delivery{r.delivery(actor, noticeNoSession, "")},
			Persisted:  true,
		}
	}
	session, err := r.sessions.Close(ctx, ticket)
	if err != nil {
		r.logger.Error("close session failed", zap.String("ticket", ticket), zap.Error(err))
		return Result{
			Outcome:    OutcomeUnavailable,
			Ticket:     ticket,
			Deliveries: []domain.Delivery{r.delivery(actor, noticeUnavailable, ticket)},
		}
	}

	r.state.SetMode(session.Requester, domain.ModeIdle)
	deliveries := []domain.Delivery{r.delivery(session.Requester, notice(ticket), ticket)}
	if session.Responder != nil {
		r.state.SetMode(*session.Responder, domain.ModeIdle)
		deliveries = append(deliveries, r.delivery(*session.Responder, notice(ticket), ticket))
	} else if before.Status == domain.SessionStatusWaiting {
		deliveries = append(deliveries, r.delivery(r.poolID, noticePoolWithdrawn(ticket), ticket))
	}
	persisted := r.flush(ctx, "close")

	if before.Status != domain.SessionStatusClosed {
		r.logger.Info("session closed", zap.String("ticket", ticket), zap.String("from", string(before.Status)))
		r.publish(ctx, events.Event{
			Type:   events.EventSessionClosed,
			Ticket: ticket,
			Actor:  actor,
			Payload: events.TransitionPayload{Transition: domain.Transition{
				Ticket: ticket,
				From:   before.Status,
				To:     domain.SessionStatusClosed,
				Actor:  actor,
				At:     r.now(),
			}},
		})
	}

	return Result{Outcome: OutcomeClosed, Ticket: ticket, Deliveries: deliveries, Persisted: persisted}
}

// OnCommand applies a menu selection or slash command.
func (r *Router) OnCommand(ctx context.Context, identity domain.Identity, command domain.Command) Result {
	command = domain.Command(strings.TrimPrefix(strings.ToLower(strings.TrimSpace(string(command))), "/"))
	switch command {
	case "help":
		return r.OnRequestHelp(ctx, identity)
	case "end":
		return r.OnEndDialog(ctx, identity)
	}

	unlock := r.locks.Lock(identity)
	defer unlock()

	op := "command_" + string(command)
	reply := func(outcome Outcome, text string) Result {
		return r.finish(ctx, op, Result{
			Outcome:    outcome,
			Deliveries: []domain.Delivery{r.delivery(identity, text, "")},
			Persisted:  true,
		})
	}

	switch command {
	case domain.CommandStart, domain.CommandCancel, domain.CommandSelfHelp, domain.CommandFeedback:
		if session, _, ok := r.resolve(identity); ok {
			return r.finish(ctx, op, Result{
				Outcome:    OutcomeInSession,
				Ticket:     session.Ticket,
				Deliveries: []domain.Delivery{r.delivery(identity, noticeFinishFirst, session.Ticket)},
				Persisted:  true,
			})
		}
	}

	switch command {
	case domain.CommandStart, domain.CommandCancel:
		r.state.Reset(identity)
		r.persister.MarkDirty()
		res := reply(OutcomeModeChanged, noticeMenu)
		res.Deliveries[0].Actions = menuActions()
		return res
	case domain.CommandSelfHelp:
		r.state.SetMode(identity, domain.ModeSelfHelp)
		r.state.EnsurePreamble(identity, r.selfHelpPrompt)
		r.persister.MarkDirty()
		return reply(OutcomeModeChanged, noticeSelfHelpIntro)
	case domain.CommandFeedback:
		r.state.SetMode(identity, domain.ModeFeedback)
		r.persister.MarkDirty()
		return reply(OutcomeModeChanged, noticeFeedbackPrompt)
	case domain.CommandReset:
		r.state.ClearConversation(identity)
		if r.state.Mode(identity) == domain.ModeSelfHelp {
			r.state.EnsurePreamble(identity, r.selfHelpPrompt)
		}
		r.persister.MarkDirty()
		return reply(OutcomeModeChanged, noticeConversationReset)
	case domain.CommandSpecialist:
		return reply(OutcomeModeChanged, noticeSpecialist)
	}
	return reply(OutcomeUnknownCommand, noticeUnknownCommand)
}

// ExpireWaiting closes waiting sessions older than age and returns how many it closed.
func (r *Router) ExpireWaiting(ctx context.Context, age time.Duration) int {
	closed := 0
	for _, stale := range r.sessions.ListWaitingOlderThan(age) {
		if ctx.Err() != nil {
			break
		}
		unlock := r.locks.Lock(stale.Requester)
		current, err := r.sessions.Get(ctx, stale.Ticket)
		if err == nil && current.Status == domain.SessionStatusWaiting {
			res := r.finish(ctx, "expire", r.closeSession(ctx, stale.Ticket, stale.Requester, noticeExpired))
			if res.Outcome == OutcomeClosed {
				closed++
			}
		}
		unlock()
	}
	if closed > 0 {
		r.logger.Info("expired waiting sessions", zap.Int("count", closed), zap.Duration("older_than", age))
	}
	return closed
}

// OnOperatorReply sends an operator message to the requester behind ticket,
// whatever the session status. Unknown tickets answer not_found.
func (r *Router) OnOperatorReply(ctx context.Context, ticket, text string) Result {
	ticket = NormalizeTicket(ticket)
	session, err := r.sessions.Get(ctx, ticket)
	if err != nil {
		return r.finish(ctx, "operator_reply", Result{Outcome: OutcomeNotFound, Ticket: ticket, Persisted: true})
	}

	unlock := r.locks.Lock(session.Requester)
	defer unlock()

	reply := r.delivery(session.Requester, noticeOperatorReply(ticket, text), ticket)
	reply.From = domain.RoleOperator
	r.logger.Info("operator reply sent", zap.String("ticket", ticket), zap.String("status", string(session.Status)))
	return r.finish(ctx, "operator_reply", Result{
		Outcome:    OutcomeForwarded,
		Ticket:     ticket,
		Deliveries: []domain.Delivery{reply},
		Persisted:  true,
	})
}

// SessionStatus reports the lifecycle status of ticket.
func (r *Router) SessionStatus(ctx context.Context, ticket string) (domain.Session, error) {
	return r.sessions.Get(ctx, NormalizeTicket(ticket))
}

// resolve finds the open session of id on either side.
func (r *Router) resolve(id domain.Identity) (domain.Session, domain.Role, bool) {
	if session, ok := r.sessions.FindByRequester(id); ok {
		return session, domain.RoleRequester, true
	}
	if session, ok := r.sessions.FindByResponder(id); ok {
		return session, domain.RoleResponder, true
	}
	return domain.Session{}, domain.RoleNone, false
}

func (r *Router) openSessionOf(id domain.Identity) (domain.Session, bool) {
	session, _, ok := r.resolve(id)
	return session, ok
}

// rejectActive answers a second request. The registry is relinked to the open
// session so ticket lookups keep pointing at it.
func (r *Router) rejectActive(requester domain.Identity, existing domain.Session) Result {
	if existing.Requester == requester {
		r.registry.Link(existing.Ticket, requester)
	}
	return Result{
		Outcome:    OutcomeAlreadyActive,
		Ticket:     existing.Ticket,
		Deliveries: []domain.Delivery{r.delivery(requester, noticeAlreadyActive, existing.Ticket)},
		Persisted:  true,
	}
}

func sameTail(current, basis []domain.Turn) bool {
	if len(current) != len(basis) || len(basis) == 0 {
		return false
	}
	return current[len(current)-1] == basis[len(basis)-1]
}

func modeFor(session domain.Session) domain.Mode {
	switch session.Status {
	case domain.SessionStatusWaiting:
		return domain.ModeWaitingResponder
	case domain.SessionStatusActive:
		return domain.ModeInSession
	}
	return domain.ModeIdle
}

func (r *Router) delivery(target domain.Identity, text, ticket string) domain.Delivery {
	return domain.Delivery{Target: target, Text: text, Ticket: ticket, CreatedAt: r.now()}
}

// flush writes the snapshot synchronously. A failure is logged and the
// operation proceeds on in-memory state.
func (r *Router) flush(ctx context.Context, op string) bool {
	r.persister.MarkDirty()
	if err := r.persister.Flush(ctx); err != nil {
		r.logger.Error("state flush failed", zap.String("op", op), zap.Error(err))
		return false
	}
	return true
}

// finish records the outcome and hands deliveries to the gateway.
func (r *Router) finish(ctx context.Context, op string, res Result) Result {
	if res.Deliveries == nil {
		res.Deliveries = []domain.Delivery{}
	}
	r.metrics.RecordOutcome(op, string(res.Outcome))
	for _, d := range res.Deliveries {
		r.publish(ctx, events.Event{
			Type:    events.EventDelivery,
			Ticket:  d.Ticket,
			Actor:   d.Target,
			Payload: events.DeliveryPayload{Delivery: d},
		})
	}
	return res
}

func (r *Router) publish(ctx context.Context, event events.Event) {
	if r.dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = r.now()
	}
	_ = r.dispatcher.Publish(ctx, event)
}

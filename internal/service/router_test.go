package service_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/support-router/internal/domain"
	"github.com/spec-kit/support-router/internal/events"
	"github.com/spec-kit/support-router/internal/observability"
	"github.com/spec-kit/support-router/internal/service"
)

const pool = domain.Identity(-1000)

type recordingWriter struct {
	mu      sync.Mutex
	dirty   int
	flushes int
	fail    error
}

func (w *recordingWriter) MarkDirty() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.dirty++
}

func (w *recordingWriter) Flush(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushes++
	return w.fail
}

func (w *recordingWriter) flushCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushes
}

type eventLog struct {
	mu     sync.Mutex
	events []events.Event
}

func (l *eventLog) record(_ context.Context, e events.Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) ofType(t events.EventType) []events.Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []events.Event
	for _, e := range l.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type harness struct {
	router   *service.Router
	registry *service.TicketRegistry
	sessions *service.SessionStore
	state    *service.StateStore
	writer   *recordingWriter
	events   *eventLog
	metrics  *observability.Metrics
	clock    *clock
}

func newHarness(t *testing.T, generate service.TicketGenerator) *harness {
	t.Helper()
	return newHarnessWithRepo(t, generate, nil)
}

// newHarnessWithRepo backs the session store with repo. A non-nil repo owns
// ticket uniqueness, as in production.
func newHarnessWithRepo(t *testing.T, generate service.TicketGenerator, repo *fakeRepo) *harness {
	t.Helper()
	var opts []service.RegistryOption
	if repo != nil {
		opts = append(opts, service.WithDurableTickets())
	}
	h := &harness{
		registry: service.NewTicketRegistry(generate, opts...),
		state:    service.NewStateStore(0),
		writer:   &recordingWriter{},
		events:   &eventLog{},
		metrics:  observability.NewMetrics(),
		clock:    newClock(),
	}
	h.sessions = newStore(repo, h.clock)

	dispatcher := events.NewInMemoryDispatcher(zap.NewNop())
	for _, et := range []events.EventType{
		events.EventDelivery, events.EventSessionRequested, events.EventSessionClaimed,
		events.EventSessionClosed, events.EventSelfHelpTurn, events.EventFeedbackReceived,
	} {
		dispatcher.Subscribe(et, h.events.record)
	}

	h.router = service.NewRouter(service.RouterDependencies{
		Registry:       h.registry,
		Sessions:       h.sessions,
		State:          h.state,
		Persister:      h.writer,
		Dispatcher:     dispatcher,
		Metrics:        h.metrics,
		Logger:         zap.NewNop(),
		ResponderPool:  pool,
		SelfHelpPrompt: "sys",
		Now:            h.clock.Now,
	})
	return h
}

func targets(res service.Result) []domain.Identity {
	out := make([]domain.Identity, 0, len(res.Deliveries))
	for _, d := range res.Deliveries {
		out = append(out, d.Target)
	}
	return out
}

func TestScenarioFullConversation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, sequence("T1AAAAA"))
	const a, b = domain.Identity(1), domain.Identity(2)

	req := h.router.OnRequestHelp(ctx, a)
	require.Equal(t, service.OutcomeTicketIssued, req.Outcome)
	assert.Equal(t, "T1AAAAA", req.Ticket)
	assert.Equal(t, []domain.Identity{a, pool}, targets(req))
	require.Len(t, req.Deliveries[1].Actions, 1)
	assert.Equal(t, "take_T1AAAAA", req.Deliveries[1].Actions[0].Data)
	assert.True(t, req.Persisted)
	assert.Equal(t, domain.ModeWaitingResponder, h.state.Mode(a))

	session, err := h.sessions.Get(ctx, "T1AAAAA")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusWaiting, session.Status)

	claim := h.router.OnClaim(ctx, req.Deliveries[1].Actions[0].Data, b)
	require.Equal(t, service.OutcomeClaimed, claim.Outcome)
	assert.Equal(t, []domain.Identity{a, b, pool}, targets(claim))
	assert.Equal(t, domain.ModeInSession, h.state.Mode(a))
	assert.Equal(t, domain.ModeInSession, h.state.Mode(b))

	hello := h.router.OnMessage(ctx, a, "hello")
	require.Equal(t, service.OutcomeForwarded, hello.Outcome)
	require.Len(t, hello.Deliveries, 1)
	assert.Equal(t, b, hello.Deliveries[0].Target)
	assert.Equal(t, "hello", hello.Deliveries[0].Text)
	assert.Equal(t, domain.RoleRequester, hello.Deliveries[0].From)

	hi := h.router.Route(ctx, b, "hi")
	require.Len(t, hi, 1)
	assert.Equal(t, a, hi[0].Target)
	assert.Equal(t, "hi", hi[0].Text)
	assert.Equal(t, domain.RoleResponder, hi[0].From)

	// system notices carry no sender side
	for _, d := range claim.Deliveries {
		assert.Empty(t, d.From)
	}

	end := h.router.OnEndDialog(ctx, a)
	require.Equal(t, service.OutcomeClosed, end.Outcome)
	assert.ElementsMatch(t, []domain.Identity{a, b}, targets(end))

	session, err = h.sessions.Get(ctx, "T1AAAAA")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusClosed, session.Status)
	_, ok := h.sessions.FindByRequester(a)
	assert.False(t, ok)
	_, ok = h.sessions.FindByResponder(b)
	assert.False(t, ok)
	assert.Equal(t, domain.ModeIdle, h.state.Mode(a))
	assert.Equal(t, domain.ModeIdle, h.state.Mode(b))

	// request, claim and close each flushed synchronously
	assert.Equal(t, 3, h.writer.flushCount())
	assert.Len(t, h.events.ofType(events.EventSessionRequested), 1)
	assert.Len(t, h.events.ofType(events.EventSessionClaimed), 1)
	assert.Len(t, h.events.ofType(events.EventSessionClosed), 1)

	outcomes := h.metrics.Snapshot().Outcomes
	assert.Equal(t, int64(1), outcomes["claim|claimed"])
	assert.Equal(t, int64(2), outcomes["message|forwarded"])
}

func TestScenarioSecondRequestWhileWaiting(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, sequence("T1AAAAA", "T2AAAAA"))

	first := h.router.OnRequestHelp(ctx, 1)
	require.Equal(t, service.OutcomeTicketIssued, first.Outcome)

	second := h.router.OnRequestHelp(ctx, 1)
	assert.Equal(t, service.OutcomeAlreadyActive, second.Outcome)
	assert.Equal(t, "T1AAAAA", second.Ticket)
	assert.Equal(t, []domain.Identity{1}, targets(second))

	open := h.sessions.ListOpen()
	require.Len(t, open, 1)
	assert.Equal(t, "T1AAAAA", open[0].Ticket)
	id, err := h.registry.Lookup("T1AAAAA")
	require.NoError(t, err)
	assert.Equal(t, domain.Identity(1), id)
}

func TestScenarioResponderAlreadyActive(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, sequence("T1AAAAA", "T2AAAAA"))

	h.router.OnRequestHelp(ctx, 1)
	h.router.OnRequestHelp(ctx, 3)
	require.Equal(t, service.OutcomeClaimed, h.router.OnClaim(ctx, "T1AAAAA", 2).Outcome)

	res := h.router.OnClaim(ctx, "T2AAAAA", 2)
	assert.Equal(t, service.OutcomeResponderBusy, res.Outcome)
	assert.Equal(t, []domain.Identity{2}, targets(res))

	session, err := h.sessions.Get(ctx, "T2AAAAA")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusWaiting, session.Status)
}

func TestClaimFailureNotices(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, sequence("T1AAAAA"))

	missing := h.router.OnClaim(ctx, "take_NOPE123", 2)
	assert.Equal(t, service.OutcomeNotFound, missing.Outcome)
	assert.Equal(t, []domain.Identity{2}, targets(missing))

	h.router.OnRequestHelp(ctx, 1)
	require.Equal(t, service.OutcomeClaimed, h.router.OnClaim(ctx, "t1aaaaa", 2).Outcome)

	late := h.router.OnClaim(ctx, "T1AAAAA", 3)
	assert.Equal(t, service.OutcomeAlreadyClaimed, late.Outcome)
	assert.Equal(t, []domain.Identity{3}, targets(late))

	own := newHarness(t, sequence("T9AAAAA"))
	own.router.OnRequestHelp(ctx, 5)
	assert.Equal(t, service.OutcomeResponderBusy, own.router.OnClaim(ctx, "T9AAAAA", 5).Outcome)
}

func TestConcurrentClaimThroughRouter(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, sequence("T1AAAAA"))
	h.router.OnRequestHelp(ctx, 1)

	results := make([]service.Result, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = h.router.OnClaim(ctx, "T1AAAAA", domain.Identity(10+i))
		}(i)
	}
	wg.Wait()

	outcomes := []service.Outcome{results[0].Outcome, results[1].Outcome}
	assert.ElementsMatch(t, []service.Outcome{service.OutcomeClaimed, service.OutcomeAlreadyClaimed}, outcomes)
}

func TestMessageWhileWaitingIsNotForwarded(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, sequence("T1AAAAA"))
	h.router.OnRequestHelp(ctx, 1)

	res := h.router.OnMessage(ctx, 1, "anyone there?")
	assert.Equal(t, service.OutcomeStillWaiting, res.Outcome)
	assert.Equal(t, []domain.Identity{1}, targets(res))
	assert.NotEqual(t, "anyone there?", res.Deliveries[0].Text)
}

func TestMessageAfterSessionVanished(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, sequence("T1AAAAA"))
	h.router.OnRequestHelp(ctx, 1)
	h.router.OnClaim(ctx, "T1AAAAA", 2)

	// close behind the router's back, leaving stale modes
	_, err := h.sessions.Close(ctx, "T1AAAAA")
	require.NoError(t, err)

	res := h.router.OnMessage(ctx, 2, "are you there?")
	assert.Equal(t, service.OutcomeSessionEnded, res.Outcome)
	assert.Equal(t, []domain.Identity{2}, targets(res))
	assert.Equal(t, domain.ModeIdle, h.state.Mode(2))
}

func TestMessageWithoutSessionShowsMenu(t *testing.T) {
	res := newHarness(t, nil).router.OnMessage(context.Background(), 1, "hello?")
	assert.Equal(t, service.OutcomeNoSession, res.Outcome)
	require.Len(t, res.Deliveries, 1)
	assert.NotEmpty(t, res.Deliveries[0].Actions)
}

func TestEndWithoutSession(t *testing.T) {
	h := newHarness(t, nil)
	res := h.router.OnEndDialog(context.Background(), 1)
	assert.Equal(t, service.OutcomeNoSession, res.Outcome)
	assert.Equal(t, []domain.Identity{1}, targets(res))
}

func TestEndLeavesSelfHelp(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.router.OnCommand(ctx, 5, domain.CommandSelfHelp)
	h.router.OnMessage(ctx, 5, "hello")
	require.Equal(t, domain.ModeSelfHelp, h.state.Mode(5))

	res := h.router.OnEndDialog(ctx, 5)
	assert.Equal(t, service.OutcomeNoSession, res.Outcome)
	require.Len(t, res.Deliveries, 1)
	assert.NotEmpty(t, res.Deliveries[0].Actions)
	assert.Equal(t, domain.ModeIdle, h.state.Mode(5))
	assert.Empty(t, h.state.Conversation(5))

	next := h.router.OnMessage(ctx, 5, "hello again")
	assert.Equal(t, service.OutcomeNoSession, next.Outcome)
	assert.Len(t, h.events.ofType(events.EventSelfHelpTurn), 1)
}

func TestEndLeavesFeedbackMode(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.router.OnCommand(ctx, 6, domain.CommandFeedback)

	res := h.router.OnCommand(ctx, 6, "end")
	assert.Equal(t, service.OutcomeNoSession, res.Outcome)
	assert.Equal(t, domain.ModeIdle, h.state.Mode(6))

	next := h.router.OnMessage(ctx, 6, "not feedback")
	assert.Equal(t, service.OutcomeNoSession, next.Outcome)
	assert.Empty(t, h.events.ofType(events.EventFeedbackReceived))
}

func TestEndRacingClaimsNeverStrandsAResponder(t *testing.T) {
	ctx := context.Background()
	for round := 0; round < 30; round++ {
		h := newHarness(t, sequence("T1AAAAA"))
		h.router.OnRequestHelp(ctx, 1)

		var wg sync.WaitGroup
		start := make(chan struct{})
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(responder domain.Identity) {
				defer wg.Done()
				<-start
				h.router.OnClaim(ctx, "T1AAAAA", responder)
			}(domain.Identity(100 + i))
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			h.router.OnEndDialog(ctx, 1)
		}()
		close(start)
		wg.Wait()

		session, err := h.sessions.Get(ctx, "T1AAAAA")
		require.NoError(t, err)
		assert.Equal(t, domain.SessionStatusClosed, session.Status)
		assert.Empty(t, h.sessions.ListOpen())
		for i := 0; i < 4; i++ {
			assert.Equal(t, domain.ModeIdle, h.state.Mode(domain.Identity(100+i)))
		}
		assert.Equal(t, domain.ModeIdle, h.state.Mode(1))
	}
}

func TestEndWhileWaitingWithdrawsFromPool(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, sequence("T1AAAAA"))
	h.router.OnRequestHelp(ctx, 1)

	res := h.router.OnCommand(ctx, 1, "/end")
	assert.Equal(t, service.OutcomeClosed, res.Outcome)
	assert.Equal(t, []domain.Identity{1, pool}, targets(res))

	again := h.router.OnEndDialog(ctx, 1)
	assert.Equal(t, service.OutcomeNoSession, again.Outcome)
}

func TestResponderCanEndSession(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, sequence("T1AAAAA", "T2AAAAA"))
	h.router.OnRequestHelp(ctx, 1)
	h.router.OnClaim(ctx, "T1AAAAA", 2)

	res := h.router.OnEndDialog(ctx, 2)
	assert.Equal(t, service.OutcomeClosed, res.Outcome)
	assert.ElementsMatch(t, []domain.Identity{1, 2}, targets(res))

	next := h.router.OnRequestHelp(ctx, 1)
	assert.Equal(t, service.OutcomeTicketIssued, next.Outcome)
	assert.NotEqual(t, "T1AAAAA", next.Ticket)
}

func TestTicketOfClosedSessionIsNotReissued(t *testing.T) {
	ctx := context.Background()
	closedAt := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	repo := newFakeRepo(domain.Session{
		Ticket: "AAAAAAA", Requester: 9, Status: domain.SessionStatusClosed,
		CreatedAt: closedAt.Add(-time.Hour), ClosedAt: &closedAt,
	})
	h := newHarnessWithRepo(t, sequence("AAAAAAA", "BBBBBBB"), repo)

	res := h.router.OnRequestHelp(ctx, 1)
	require.Equal(t, service.OutcomeTicketIssued, res.Outcome)
	assert.Equal(t, "BBBBBBB", res.Ticket)
	_, err := h.registry.Lookup("AAAAAAA")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	h.router.OnClaim(ctx, "BBBBBBB", 2)
	end := h.router.OnEndDialog(ctx, 1)
	require.Equal(t, service.OutcomeClosed, end.Outcome)
	assert.Equal(t, service.SessionCounts{}, h.sessions.Counts())
	assert.Equal(t, domain.SessionStatusClosed, repo.status("BBBBBBB"))
}

func TestOperatorReply(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, sequence("T1AAAAA"))
	h.router.OnRequestHelp(ctx, 1)

	res := h.router.OnOperatorReply(ctx, "#t1aaaaa", "We will get back to you shortly.")
	require.Equal(t, service.OutcomeForwarded, res.Outcome)
	assert.Equal(t, "T1AAAAA", res.Ticket)
	require.Len(t, res.Deliveries, 1)
	d := res.Deliveries[0]
	assert.Equal(t, domain.Identity(1), d.Target)
	assert.Equal(t, domain.RoleOperator, d.From)
	assert.Equal(t, "T1AAAAA", d.Ticket)
	assert.Contains(t, d.Text, "T1AAAAA")
	assert.Contains(t, d.Text, "We will get back to you shortly.")

	// the reply changes no session state
	session, err := h.sessions.Get(ctx, "T1AAAAA")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusWaiting, session.Status)
	assert.Equal(t, domain.ModeWaitingResponder, h.state.Mode(1))

	// closed sessions still reach their requester
	h.router.OnEndDialog(ctx, 1)
	after := h.router.OnOperatorReply(ctx, "T1AAAAA", "follow-up")
	assert.Equal(t, service.OutcomeForwarded, after.Outcome)
	assert.Equal(t, []domain.Identity{1}, targets(after))

	missing := h.router.OnOperatorReply(ctx, "NOPE000", "hello")
	assert.Equal(t, service.OutcomeNotFound, missing.Outcome)
	assert.Empty(t, missing.Deliveries)
}

func TestFlushFailureProceedsInMemory(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, sequence("T1AAAAA"))
	h.writer.fail = errors.New("disk full")

	res := h.router.OnRequestHelp(ctx, 1)
	assert.Equal(t, service.OutcomeTicketIssued, res.Outcome)
	assert.False(t, res.Persisted)

	claim := h.router.OnClaim(ctx, "T1AAAAA", 2)
	assert.Equal(t, service.OutcomeClaimed, claim.Outcome)
	assert.False(t, claim.Persisted)
}

func TestDuplicateTicketIsRegeneratedTransparently(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, sequence("T1AAAAA", "T2AAAAA"))

	// a session created outside the registry occupies the first candidate
	_, err := h.sessions.Create(ctx, "T1AAAAA", 99)
	require.NoError(t, err)

	res := h.router.OnRequestHelp(ctx, 1)
	assert.Equal(t, service.OutcomeTicketIssued, res.Outcome)
	assert.Equal(t, "T2AAAAA", res.Ticket)
	_, err = h.registry.Lookup("T1AAAAA")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCommands(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, sequence("T1AAAAA"))

	res := h.router.OnCommand(ctx, 1, domain.CommandSelfHelp)
	assert.Equal(t, service.OutcomeModeChanged, res.Outcome)
	assert.Equal(t, domain.ModeSelfHelp, h.state.Mode(1))
	require.Len(t, h.state.Conversation(1), 1)
	assert.Equal(t, domain.TurnRoleSystem, h.state.Conversation(1)[0].Role)

	h.router.OnCommand(ctx, 1, domain.CommandReset)
	assert.Len(t, h.state.Conversation(1), 1)

	h.router.OnCommand(ctx, 1, "/cancel")
	assert.Equal(t, domain.ModeIdle, h.state.Mode(1))
	assert.Empty(t, h.state.Conversation(1))

	res = h.router.OnCommand(ctx, 1, domain.CommandSpecialist)
	assert.Equal(t, service.OutcomeModeChanged, res.Outcome)
	assert.Equal(t, domain.ModeIdle, h.state.Mode(1))

	res = h.router.OnCommand(ctx, 1, "dance")
	assert.Equal(t, service.OutcomeUnknownCommand, res.Outcome)

	res = h.router.OnCommand(ctx, 1, "help")
	assert.Equal(t, service.OutcomeTicketIssued, res.Outcome)

	// mode commands cannot abandon an anonymous session
	for _, cmd := range []domain.Command{domain.CommandStart, domain.CommandCancel, domain.CommandSelfHelp, domain.CommandFeedback} {
		res = h.router.OnCommand(ctx, 1, cmd)
		assert.Equal(t, service.OutcomeInSession, res.Outcome, string(cmd))
	}
	assert.Equal(t, domain.ModeWaitingResponder, h.state.Mode(1))
}

func TestFeedbackIsForwardedAnonymously(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.router.OnCommand(ctx, 7, domain.CommandFeedback)
	assert.Equal(t, domain.ModeFeedback, h.state.Mode(7))

	res := h.router.OnMessage(ctx, 7, "the bot is great")
	assert.Equal(t, service.OutcomeFeedback, res.Outcome)
	assert.Equal(t, []domain.Identity{pool, 7}, targets(res))
	assert.True(t, strings.Contains(res.Deliveries[0].Text, "the bot is great"))
	assert.NotContains(t, res.Deliveries[0].Text, "7")
	assert.Equal(t, domain.ModeIdle, h.state.Mode(7))

	received := h.events.ofType(events.EventFeedbackReceived)
	require.Len(t, received, 1)
	assert.Zero(t, received[0].Actor)
	payload := received[0].Payload.(events.FeedbackPayload)
	assert.Equal(t, "the bot is great", payload.Text)
	assert.Equal(t, h.clock.Now(), payload.ReceivedAt)
}

func TestSelfHelpTurnAndReply(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)
	h.router.OnCommand(ctx, 5, domain.CommandSelfHelp)

	res := h.router.OnMessage(ctx, 5, "I feel anxious")
	assert.Equal(t, service.OutcomeSelfHelp, res.Outcome)
	assert.Empty(t, res.Deliveries)

	turns := h.events.ofType(events.EventSelfHelpTurn)
	require.Len(t, turns, 1)
	payload := turns[0].Payload.(events.SelfHelpTurnPayload)
	require.Len(t, payload.Turns, 2)
	assert.Equal(t, "sys", payload.Turns[0].Text)

	reply := h.router.OnAssistantReply(ctx, 5, payload.Turns, "Let's breathe together.", nil)
	assert.Equal(t, service.OutcomeSelfHelp, reply.Outcome)
	assert.Equal(t, []domain.Identity{5}, targets(reply))
	conv := h.state.Conversation(5)
	require.Len(t, conv, 3)
	assert.Equal(t, domain.TurnRoleAssistant, conv[2].Role)

	// a reply for a buffer that moved on is dropped
	stale := h.router.OnAssistantReply(ctx, 5, payload.Turns, "late", nil)
	assert.Equal(t, service.OutcomeDiscarded, stale.Outcome)
	assert.Empty(t, stale.Deliveries)

	failed := h.router.OnAssistantReply(ctx, 5, h.state.Conversation(5), "", errors.New("timeout"))
	assert.Equal(t, service.OutcomeUnavailable, failed.Outcome)
	assert.Equal(t, []domain.Identity{5}, targets(failed))
}

func TestExpireWaiting(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, sequence("OLDAAAA", "NEWAAAA"))

	h.router.OnRequestHelp(ctx, 1)
	h.clock.Advance(2 * time.Hour)
	h.router.OnRequestHelp(ctx, 2)

	assert.Equal(t, 1, h.router.ExpireWaiting(ctx, time.Hour))

	old, err := h.sessions.Get(ctx, "OLDAAAA")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusClosed, old.Status)
	assert.Equal(t, domain.ModeIdle, h.state.Mode(1))

	fresh, err := h.sessions.Get(ctx, "NEWAAAA")
	require.NoError(t, err)
	assert.Equal(t, domain.SessionStatusWaiting, fresh.Status)

	assert.Equal(t, 0, h.router.ExpireWaiting(ctx, time.Hour))
}

func TestDeliveriesArePublished(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, sequence("T1AAAAA"))
	res := h.router.OnRequestHelp(ctx, 1)

	published := h.events.ofType(events.EventDelivery)
	require.Len(t, published, len(res.Deliveries))
	for i, e := range published {
		assert.Equal(t, res.Deliveries[i], e.Payload.(events.DeliveryPayload).Delivery)
		assert.NotEmpty(t, e.ID)
	}
}

package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/support-router/internal/events"
	"github.com/spec-kit/support-router/internal/selfhelp"
)

var errQueueFull = errors.New("self-help queue full")

// SelfHelpService generates assistant replies off the router path.
type SelfHelpService struct {
	dispatcher events.Dispatcher
	assistant  selfhelp.Assistant
	router     *Router
	pool       Submitter
	logger     *zap.Logger
}

// SelfHelpDependencies bundles collaborators of the self-help service.
type SelfHelpDependencies struct {
	Dispatcher events.Dispatcher
	Assistant  selfhelp.Assistant
	Router     *Router
	Pool       Submitter
	Logger     *zap.Logger
}

// NewSelfHelpService creates the service.
func NewSelfHelpService(deps SelfHelpDependencies) *SelfHelpService {
	assistant := deps.Assistant
	if assistant == nil {
		assistant = selfhelp.Unavailable{}
	}
	return &SelfHelpService{
		dispatcher: deps.Dispatcher,
		assistant:  assistant,
		router:     deps.Router,
		pool:       deps.Pool,
		logger:     deps.Logger.Named("self_help"),
	}
}

// RegisterHandlers subscribes to self-help turns.
func (s *SelfHelpService) RegisterHandlers() {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.Subscribe(events.EventSelfHelpTurn, s.handleTurn)
}

func (s *SelfHelpService) handleTurn(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.SelfHelpTurnPayload)
	if !ok {
		return nil
	}
	accepted := s.pool.Submit(func(ctx context.Context) {
		reply, err := s.assistant.Reply(ctx, payload.Turns)
		res := s.router.OnAssistantReply(ctx, payload.Identity, payload.Turns, reply, err)
		s.logger.Debug("assistant turn handled",
			zap.Stringer("identity", payload.Identity),
			zap.String("outcome", string(res.Outcome)))
	})
	if !accepted {
		// the caller holds the identity lock; answer once it is released
		go s.router.OnAssistantReply(context.Background(), payload.Identity, payload.Turns, "", errQueueFull)
	}
	return nil
}

package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/support-router/internal/events"
	"github.com/spec-kit/support-router/internal/gateway"
)

// Submitter queues background work.
type Submitter interface {
	Submit(job func(ctx context.Context)) bool
}

// NotificationService pushes router deliveries to the gateway and records
// lifecycle events.
type NotificationService struct {
	dispatcher events.Dispatcher
	gateway    gateway.Gateway
	pool       Submitter
	logger     *zap.Logger
}

// NewNotificationService creates the service.
func NewNotificationService(dispatcher events.Dispatcher, gw gateway.Gateway, pool Submitter, logger *zap.Logger) *NotificationService {
	return &NotificationService{
		dispatcher: dispatcher,
		gateway:    gw,
		pool:       pool,
		logger:     logger.Named("notifications"),
	}
}

// RegisterHandlers subscribes to events.
func (n *NotificationService) RegisterHandlers() {
	if n.dispatcher == nil {
		return
	}
	n.dispatcher.Subscribe(events.EventDelivery, n.handleDelivery)
	n.dispatcher.Subscribe(events.EventSessionRequested, n.handleTransition)
	n.dispatcher.Subscribe(events.EventSessionClaimed, n.handleTransition)
	n.dispatcher.Subscribe(events.EventSessionClosed, n.handleTransition)
}

func (n *NotificationService) handleDelivery(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.DeliveryPayload)
	if !ok || n.gateway == nil {
		return nil
	}
	delivery := payload.Delivery
	n.pool.Submit(func(ctx context.Context) {
		if err := n.gateway.Deliver(ctx, delivery); err != nil {
			n.logger.Warn("delivery failed",
				zap.String("event_id", event.ID),
				zap.Stringer("target", delivery.Target),
				zap.String("ticket", delivery.Ticket),
				zap.Error(err))
		}
	})
	return nil
}

func (n *NotificationService) handleTransition(_ context.Context, event events.Event) error {
	payload, ok := event.Payload.(events.TransitionPayload)
	if !ok {
		return nil
	}
	n.logger.Info(string(event.Type),
		zap.String("ticket", event.Ticket),
		zap.String("from", string(payload.Transition.From)),
		zap.String("to", string(payload.Transition.To)),
		zap.Time("at", payload.Transition.At))
	return nil
}

package gateway

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/support-router/internal/config"
	"github.com/spec-kit/support-router/internal/domain"
)

// Gateway hands outbound deliveries to the messaging platform. Retry policy
// belongs to the implementation; callers only log failures.
type Gateway interface {
	Deliver(ctx context.Context, delivery domain.Delivery) error
	Close() error
}

// New builds the gateway selected by cfg.Kind. The redis client is only used
// by the stream gateway.
func New(cfg config.GatewayConfig, client redis.UniversalClient, logger *zap.Logger) (Gateway, error) {
	switch cfg.Kind {
	case "", "none":
		return Nop{}, nil
	case "log":
		return NewLog(logger), nil
	case "webhook":
		return NewWebhook(cfg.WebhookURL, cfg.WebhookTimeout, logger)
	case "stream":
		if client == nil {
			return nil, fmt.Errorf("gateway: stream kind requires redis")
		}
		return NewStream(client, cfg.StreamTopic, logger)
	}
	return nil, fmt.Errorf("gateway: unknown kind %q", cfg.Kind)
}

// Nop drops deliveries; the adapter reads them from the HTTP responses instead.
type Nop struct{}

// Deliver implements Gateway.
func (Nop) Deliver(context.Context, domain.Delivery) error { return nil }

// Close implements Gateway.
func (Nop) Close() error { return nil }

// Log writes deliveries to the structured log. Message bodies are not logged.
type Log struct {
	logger *zap.Logger
}

// NewLog creates a log gateway.
func NewLog(logger *zap.Logger) *Log {
	return &Log{logger: logger.Named("gateway")}
}

// Deliver implements Gateway.
func (l *Log) Deliver(_ context.Context, d domain.Delivery) error {
	l.logger.Info("delivery",
		zap.Stringer("target", d.Target),
		zap.String("ticket", d.Ticket),
		zap.String("from", string(d.From)),
		zap.Int("length", len(d.Text)),
		zap.Int("actions", len(d.Actions)))
	return nil
}

// Close implements Gateway.
func (l *Log) Close() error { return nil }

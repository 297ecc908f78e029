package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/support-router/internal/domain"
)

// Webhook POSTs each delivery as JSON to the platform adapter.
type Webhook struct {
	url     string
	timeout time.Duration
	logger  *zap.Logger
}

// NewWebhook creates a webhook gateway.
func NewWebhook(url string, timeout time.Duration, logger *zap.Logger) (*Webhook, error) {
	if url == "" {
		return nil, errors.New("gateway: webhook kind requires GATEWAY_WEBHOOK_URL")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{url: url, timeout: timeout, logger: logger.Named("gateway")}, nil
}

// Deliver implements Gateway.
func (w *Webhook) Deliver(ctx context.Context, d domain.Delivery) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	agent := fiber.Post(w.url)
	agent.JSON(d)
	agent.Timeout(w.timeout)
	if err := agent.Parse(); err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}

	code, _, errs := agent.Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("webhook delivery: %w", errors.Join(errs...))
	}
	if code < 200 || code >= 300 {
		return fmt.Errorf("webhook delivery: unexpected status %d", code)
	}
	w.logger.Debug("delivery posted", zap.Stringer("target", d.Target), zap.Int("status", code))
	return nil
}

// Close implements Gateway.
func (w *Webhook) Close() error { return nil }

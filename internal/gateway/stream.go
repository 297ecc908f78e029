package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/ThreeDotsLabs/watermill"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/support-router/internal/domain"
	"github.com/spec-kit/support-router/internal/observability"
)

// Stream publishes deliveries to a Redis stream consumed by the adapter.
type Stream struct {
	publisher message.Publisher
	topic     string
	logger    *zap.Logger
}

// NewStream creates a Redis stream publisher on topic.
func NewStream(client redis.UniversalClient, topic string, logger *zap.Logger) (*Stream, error) {
	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: rstream.DefaultMarshallerUnmarshaller{},
	}, observability.NewWatermillLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("gateway: redis stream publisher: %w", err)
	}
	return NewStreamWithPublisher(pub, topic, logger), nil
}

// NewStreamWithPublisher wraps an existing watermill publisher.
func NewStreamWithPublisher(pub message.Publisher, topic string, logger *zap.Logger) *Stream {
	return &Stream{publisher: pub, topic: topic, logger: logger.Named("gateway")}
}

// Deliver implements Gateway.
func (s *Stream) Deliver(ctx context.Context, d domain.Delivery) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("encode delivery: %w", err)
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.Metadata.Set("target", strconv.FormatInt(int64(d.Target), 10))
	if d.Ticket != "" {
		msg.Metadata.Set("ticket", d.Ticket)
	}
	msg.SetContext(ctx)

	if err := s.publisher.Publish(s.topic, msg); err != nil {
		return fmt.Errorf("publish delivery: %w", err)
	}
	return nil
}

// Close implements Gateway.
func (s *Stream) Close() error {
	return s.publisher.Close()
}

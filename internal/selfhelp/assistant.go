package selfhelp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/spec-kit/support-router/internal/config"
	"github.com/spec-kit/support-router/internal/domain"
)

// ErrUnavailable is returned when no chat model is configured.
var ErrUnavailable = errors.New("self-help assistant unavailable")

// Assistant produces the next assistant turn for a conversation buffer.
type Assistant interface {
	Reply(ctx context.Context, turns []domain.Turn) (string, error)
}

// ChainAssistant runs the buffer through a compiled eino chain.
type ChainAssistant struct {
	chain       compose.Runnable[[]*schema.Message, *schema.Message]
	historySize int
	timeout     time.Duration
}

// NewChainAssistant compiles a chain around chatModel. historySize caps the
// non-system turns sent to the model; zero sends all of them.
func NewChainAssistant(ctx context.Context, chatModel model.BaseChatModel, historySize int, timeout time.Duration) (*ChainAssistant, error) {
	chain := compose.NewChain[[]*schema.Message, *schema.Message]()
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}
	return &ChainAssistant{chain: runnable, historySize: historySize, timeout: timeout}, nil
}

// Reply implements Assistant.
func (a *ChainAssistant) Reply(ctx context.Context, turns []domain.Turn) (string, error) {
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	response, err := a.chain.Invoke(ctx, BuildMessages(turns, a.historySize))
	if err != nil {
		return "", fmt.Errorf("failed to run chat chain: %w", err)
	}
	text := strings.TrimSpace(response.Content)
	if text == "" {
		return "", errors.New("empty assistant reply")
	}
	return text, nil
}

// BuildMessages converts a buffer into model messages, keeping system turns
// and the newest historySize others.
func BuildMessages(turns []domain.Turn, historySize int) []*schema.Message {
	var system, rest []domain.Turn
	for _, t := range turns {
		if t.Role == domain.TurnRoleSystem {
			system = append(system, t)
			continue
		}
		rest = append(rest, t)
	}
	if historySize > 0 && len(rest) > historySize {
		rest = rest[len(rest)-historySize:]
	}

	messages := make([]*schema.Message, 0, len(system)+len(rest))
	for _, t := range system {
		messages = append(messages, schema.SystemMessage(t.Text))
	}
	for _, t := range rest {
		switch t.Role {
		case domain.TurnRoleUser:
			messages = append(messages, schema.UserMessage(t.Text))
		case domain.TurnRoleAssistant:
			messages = append(messages, schema.AssistantMessage(t.Text, nil))
		}
	}
	return messages
}

// NewArkChatModel builds the Ark chat model described by cfg.
func NewArkChatModel(ctx context.Context, cfg config.AIConfig) (model.ChatModel, error) {
	if !cfg.Enabled() {
		return nil, ErrUnavailable
	}

	var temperature *float32
	if cfg.Temperature != nil {
		val := float32(*cfg.Temperature)
		temperature = &val
	}

	var maxTokens *int
	if cfg.MaxTokens != nil {
		val := *cfg.MaxTokens
		maxTokens = &val
	}

	return ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     cfg.BaseURL,
		Region:      cfg.Region,
		APIKey:      cfg.APIKey,
		Model:       cfg.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
}

// New returns the configured assistant, or Unavailable when AI is disabled.
func New(ctx context.Context, cfg config.AIConfig) (Assistant, error) {
	if !cfg.Enabled() {
		return Unavailable{}, nil
	}
	chatModel, err := NewArkChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewChainAssistant(ctx, chatModel, cfg.HistorySize, cfg.Timeout)
}

// Unavailable answers every request with ErrUnavailable.
type Unavailable struct{}

// Reply implements Assistant.
func (Unavailable) Reply(context.Context, []domain.Turn) (string, error) {
	return "", ErrUnavailable
}

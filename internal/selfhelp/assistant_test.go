package selfhelp_test

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-router/internal/config"
	"github.com/spec-kit/support-router/internal/domain"
	"github.com/spec-kit/support-router/internal/selfhelp"
)

type echoModel struct {
	seen []*schema.Message
	err  error
}

func (m *echoModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	m.seen = input
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage("  you said: "+input[len(input)-1].Content+"  ", nil), nil
}

func (m *echoModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func (m *echoModel) BindTools([]*schema.ToolInfo) error { return nil }

func conversation() []domain.Turn {
	return []domain.Turn{
		{Role: domain.TurnRoleSystem, Text: "be kind"},
		{Role: domain.TurnRoleUser, Text: "one"},
		{Role: domain.TurnRoleAssistant, Text: "two"},
		{Role: domain.TurnRoleUser, Text: "three"},
	}
}

func TestBuildMessagesKeepsSystemAndNewestTurns(t *testing.T) {
	msgs := selfhelp.BuildMessages(conversation(), 2)
	require.Len(t, msgs, 3)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Equal(t, "be kind", msgs[0].Content)
	assert.Equal(t, schema.Assistant, msgs[1].Role)
	assert.Equal(t, "three", msgs[2].Content)

	assert.Len(t, selfhelp.BuildMessages(conversation(), 0), 4)
}

func TestChainAssistantReply(t *testing.T) {
	fake := &echoModel{}
	assistant, err := selfhelp.NewChainAssistant(context.Background(), fake, 10, 0)
	require.NoError(t, err)

	reply, err := assistant.Reply(context.Background(), conversation())
	require.NoError(t, err)
	assert.Equal(t, "you said: three", reply)
	assert.Len(t, fake.seen, 4)
}

func TestChainAssistantPropagatesModelError(t *testing.T) {
	fake := &echoModel{err: errors.New("quota exceeded")}
	assistant, err := selfhelp.NewChainAssistant(context.Background(), fake, 10, 0)
	require.NoError(t, err)

	_, err = assistant.Reply(context.Background(), conversation())
	assert.Error(t, err)
}

func TestNewWithoutCredentialsIsUnavailable(t *testing.T) {
	assistant, err := selfhelp.New(context.Background(), config.AIConfig{})
	require.NoError(t, err)

	_, err = assistant.Reply(context.Background(), conversation())
	assert.ErrorIs(t, err, selfhelp.ErrUnavailable)
}

package ai

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/yyc3/yunshu/backend/internal/analysis/reply"
)

// ErrNoUserMessage is returned when the prompt carries no user turn.
var ErrNoUserMessage = errors.New("no user message in prompt")

// KeywordChatModel 基于关键词规则的确定性 ChatModel，不调用任何远端模型
type KeywordChatModel struct{}

var _ model.ChatModel = (*KeywordChatModel)(nil)

// NewKeywordChatModel creates the rule-backed model.
func NewKeywordChatModel() *KeywordChatModel {
	return &KeywordChatModel{}
}

// Generate answers the latest user message with the matching canned reply.
func (m *KeywordChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	query, err := lastUserContent(input)
	if err != nil {
		return nil, err
	}
	return schema.AssistantMessage(reply.Generate(query), nil), nil
}

// Stream emits the reply rune by rune.
func (m *KeywordChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := m.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}

	runes := []rune(msg.Content)
	sr, sw := schema.Pipe[*schema.Message](len(runes))
	go func() {
		defer sw.Close()
		for _, r := range runes {
			if closed := sw.Send(schema.AssistantMessage(string(r), nil), nil); closed {
				return
			}
		}
	}()
	return sr, nil
}

// BindTools is a no-op; keyword replies never call tools.
func (m *KeywordChatModel) BindTools([]*schema.ToolInfo) error {
	return nil
}

func lastUserContent(input []*schema.Message) (string, error) {
	for i := len(input) - 1; i >= 0; i-- {
		if input[i] != nil && input[i].Role == schema.User {
			return input[i].Content, nil
		}
	}
	return "", ErrNoUserMessage
}

// Package ai runs replies through an eino prompt → chat model chain.
package ai

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"
	"github.com/rs/zerolog"

	"github.com/yyc3/yunshu/backend/internal/model/chat"
)

// SystemPrompt 助手身份说明
const SystemPrompt = "你是YYC³云枢智能助手，负责解答平台功能相关的问题。"

const historyLimit = 10

// Service encapsulates reply generation.
type Service struct {
	chain compose.Runnable[map[string]any, *schema.Message]
	log   zerolog.Logger
}

// NewService compiles the chain around chatModel; nil uses KeywordChatModel.
func NewService(ctx context.Context, chatModel model.ChatModel, log zerolog.Logger) (*Service, error) {
	if chatModel == nil {
		chatModel = NewKeywordChatModel()
	}

	// 用户输入走占位符，避免花括号被当作模板变量
	template := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.MessagesPlaceholder("query", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(template)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile reply chain: %w", err)
	}

	return &Service{chain: runnable, log: log}, nil
}

// Respond produces the assistant reply for input given the prior transcript.
func (s *Service) Respond(ctx context.Context, history []chat.Message, input string) (string, error) {
	resp, err := s.chain.Invoke(ctx, buildChainInput(history, input))
	if err != nil {
		return "", fmt.Errorf("failed to run reply chain: %w", err)
	}
	s.log.Debug().Int("history", len(history)).Int("length", len([]rune(resp.Content))).Msg("generated reply")
	return resp.Content, nil
}

func buildChainInput(history []chat.Message, input string) map[string]any {
	return map[string]any{
		"system":  SystemPrompt,
		"history": historyMessages(history),
		"query":   []*schema.Message{schema.UserMessage(input)},
	}
}

func historyMessages(messages []chat.Message) []*schema.Message {
	if len(messages) > historyLimit {
		messages = messages[len(messages)-historyLimit:]
	}
	out := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case chat.RoleUser:
			out = append(out, schema.UserMessage(msg.Text))
		case chat.RoleAssistant:
			out = append(out, schema.AssistantMessage(msg.Text, nil))
		}
	}
	return out
}

package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/pkoukk/tiktoken-go"

	"magical-academy/internal/domain/model"
	"magical-academy/internal/domain/ports/adapter"
	"magical-academy/internal/infra/metrics"
)

var _ adapter.ChatCompleter = (*OpenAIChat)(nil)

// OpenAIChat implements adapter.ChatCompleter using Chat Completions.
type OpenAIChat struct {
	client openai.Client
	model  string
}

func NewOpenAIChat(apiKey, baseURL, defaultModel string, opts ...option.RequestOption) (*OpenAIChat, error) {
	if apiKey == "" {
		return nil, errors.New("openai api key empty")
	}
	if defaultModel == "" {
		defaultModel = "gpt-4o-mini"
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(withSlash(baseURL)))
	}
	reqOpts = append(reqOpts, opts...)
	return &OpenAIChat{client: openai.NewClient(reqOpts...), model: defaultModel}, nil
}

func (o *OpenAIChat) Chat(ctx context.Context, modelName string, messages []model.Message) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("openai: no messages")
	}
	modelName = modelOrDefault(modelName, o.model)

	resp, err := o.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(modelName),
		Messages: toOpenAIMessages(messages),
	})
	if err != nil {
		return "", fmt.Errorf("openai chat: %w", err)
	}
	if resp.Usage.PromptTokens > 0 {
		metrics.AddChatTokens("openai", modelName, int(resp.Usage.PromptTokens))
	}
	for _, c := range resp.Choices {
		if c.Message.Content != "" {
			return c.Message.Content, nil
		}
	}
	return "", errors.New("no choice content")
}

// CountTokens follows the cookbook accounting: 3 tokens of framing per
// message plus 3 for the reply primer.
func (o *OpenAIChat) CountTokens(ctx context.Context, modelName string, messages []model.Message) (int, error) {
	enc, err := tiktoken.EncodingForModel(modelOrDefault(modelName, o.model))
	if err != nil {
		enc, err = tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			return 0, fmt.Errorf("tiktoken: %w", err)
		}
	}
	n := 3
	for _, m := range messages {
		n += 3
		n += len(enc.Encode(m.Role, nil, nil))
		n += len(enc.Encode(m.Content, nil, nil))
	}
	return n, nil
}

func toOpenAIMessages(msgs []model.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(m.Role) {
		case model.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case model.RoleAssistant:
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func withSlash(base string) string {
	if strings.HasSuffix(base, "/") {
		return base
	}
	return base + "/"
}

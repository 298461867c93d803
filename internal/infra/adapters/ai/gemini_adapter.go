package ai

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	"magical-academy/internal/domain/model"
	"magical-academy/internal/domain/ports/adapter"
	"magical-academy/internal/infra/metrics"
)

var _ adapter.ChatCompleter = (*GeminiChat)(nil)

type GeminiChat struct {
	client       *genai.Client
	defaultModel string
	maxOut       int
}

// NewGeminiChat creates a Gemini chat completer using the official SDK.
func NewGeminiChat(ctx context.Context, apiKey, baseURL, defaultModel string, maxOut int) (*GeminiChat, error) {
	if apiKey == "" {
		return nil, errors.New("gemini: empty api key")
	}
	if defaultModel == "" {
		defaultModel = "gemini-2.0-flash"
	}
	c, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{
			BaseURL: baseURL,
		},
	})
	if err != nil {
		return nil, err
	}
	return &GeminiChat{client: c, defaultModel: defaultModel, maxOut: maxOut}, nil
}

func (g *GeminiChat) CountTokens(ctx context.Context, modelName string, messages []model.Message) (int, error) {
	_, history := splitSystem(messages)
	resp, err := g.client.Models.CountTokens(ctx, modelOrDefault(modelName, g.defaultModel), toGenAIHistory(history), nil)
	if err != nil {
		return 0, err
	}
	return int(resp.TotalTokens), nil
}

func (g *GeminiChat) Chat(ctx context.Context, modelName string, messages []model.Message) (string, error) {
	system, rest := splitSystem(messages)
	if len(rest) == 0 {
		return "", errors.New("gemini: no messages")
	}
	last := rest[len(rest)-1]
	if strings.ToLower(last.Role) != model.RoleUser {
		return "", errors.New("gemini: last message must be from user")
	}
	modelName = modelOrDefault(modelName, g.defaultModel)

	cfg := &genai.GenerateContentConfig{}
	if g.maxOut > 0 {
		cfg.MaxOutputTokens = int32(g.maxOut)
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	chat, err := g.client.Chats.Create(ctx, modelName, cfg, toGenAIHistory(rest[:len(rest)-1]))
	if err != nil {
		return "", err
	}
	resp, err := chat.SendMessage(ctx, genai.Part{Text: last.Content})
	if err != nil {
		return "", err
	}
	if resp != nil && resp.UsageMetadata != nil {
		metrics.AddChatTokens("gemini", modelName, int(resp.UsageMetadata.PromptTokenCount))
	}

	text := ""
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil && len(resp.Candidates[0].Content.Parts) > 0 {
		text = resp.Candidates[0].Content.Parts[0].Text
	}
	if text == "" {
		return "", errors.New("gemini: empty reply")
	}
	return text, nil
}

// splitSystem lifts system messages out of the transcript; Gemini takes
// them as a separate instruction.
func splitSystem(msgs []model.Message) (string, []model.Message) {
	var sys []string
	rest := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		if strings.ToLower(m.Role) == model.RoleSystem {
			sys = append(sys, m.Content)
			continue
		}
		rest = append(rest, m)
	}
	return strings.Join(sys, "\n"), rest
}

func toGenAIHistory(msgs []model.Message) []*genai.Content {
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := string(genai.RoleUser)
		switch strings.ToLower(m.Role) {
		case model.RoleAssistant, "model":
			role = string(genai.RoleModel)
		}
		out = append(out, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: m.Content}},
		})
	}
	return out
}

func modelOrDefault(name, def string) string {
	if strings.TrimSpace(name) != "" {
		return name
	}
	return def
}

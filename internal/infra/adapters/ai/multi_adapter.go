package ai

import (
	"context"
	"errors"
	"strings"

	"magical-academy/internal/domain/model"
	"magical-academy/internal/domain/ports/adapter"
)

var _ adapter.ChatCompleter = (*MultiChat)(nil)

var errNoProvider = errors.New("no chat provider configured")

// MultiChat routes each call to a provider by model name.
type MultiChat struct {
	defaultProvider string // "openai" | "gemini"
	byProvider      map[string]adapter.ChatCompleter
	modelToProvider map[string]string
}

// NewMultiChat only knows a default provider; each provider keeps its own
// default model.
func NewMultiChat(
	defaultProvider string,
	byProvider map[string]adapter.ChatCompleter,
	modelToProvider map[string]string,
) *MultiChat {
	return &MultiChat{
		defaultProvider: strings.ToLower(defaultProvider),
		byProvider:      byProvider,
		modelToProvider: modelToProvider,
	}
}

func (m *MultiChat) resolveProvider(modelName string) string {
	if p := m.modelToProvider[modelName]; p != "" {
		return strings.ToLower(p)
	}
	l := strings.ToLower(modelName)
	switch {
	case strings.HasPrefix(l, "gemini"):
		return "gemini"
	case strings.HasPrefix(l, "gpt"), strings.HasPrefix(l, "o1"), strings.HasPrefix(l, "o3"):
		return "openai"
	default:
		return m.defaultProvider
	}
}

func (m *MultiChat) pick(modelName string) adapter.ChatCompleter {
	if c := m.byProvider[m.resolveProvider(modelName)]; c != nil {
		return c
	}
	if c := m.byProvider[m.defaultProvider]; c != nil {
		return c
	}
	return nil
}

func (m *MultiChat) Chat(ctx context.Context, modelName string, messages []model.Message) (string, error) {
	c := m.pick(modelName)
	if c == nil {
		return "", errNoProvider
	}
	return c.Chat(ctx, modelName, messages)
}

func (m *MultiChat) CountTokens(ctx context.Context, modelName string, messages []model.Message) (int, error) {
	c := m.pick(modelName)
	if c == nil {
		return 0, errNoProvider
	}
	return c.CountTokens(ctx, modelName, messages)
}

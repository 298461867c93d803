package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"magical-academy/internal/domain"
	"magical-academy/internal/domain/ports/adapter"
	"magical-academy/internal/infra/logging"
)

var _ StoryUseCase = (*storyUC)(nil)

// StoryUseCase illustrates and narrates story pages.
type StoryUseCase interface {
	Illustrate(ctx context.Context, scene string) ([]string, error)
	Narrate(ctx context.Context, text string) ([]byte, error)
}

type storyUC struct {
	media adapter.MediaGenerator
	log   *zerolog.Logger
}

func NewStoryUseCase(media adapter.MediaGenerator, logger *zerolog.Logger) *storyUC {
	if logger == nil {
		logger = logging.Nop()
	}
	compLog := logger.With().Str("component", "StoryUseCase").Logger()
	return &storyUC{media: media, log: &compLog}
}

func (s *storyUC) Illustrate(ctx context.Context, scene string) ([]string, error) {
	scene = strings.TrimSpace(scene)
	if scene == "" {
		return nil, fmt.Errorf("illustrate: %w: empty scene", domain.ErrInvalidArgument)
	}
	urls, err := s.media.GenerateImages(ctx, illustrationPrompt(scene))
	if err != nil {
		logging.With(ctx, s.log).Warn().Err(err).Msg("illustration failed")
		return nil, err
	}
	return urls, nil
}

func (s *storyUC) Narrate(ctx context.Context, text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("narrate: %w: empty text", domain.ErrInvalidArgument)
	}
	audio, err := s.media.GenerateSpeech(ctx, text)
	if err != nil {
		logging.With(ctx, s.log).Warn().Err(err).Msg("narration failed")
		return nil, err
	}
	return audio, nil
}

func illustrationPrompt(scene string) string {
	return "A colorful, child-friendly storybook illustration of: " + scene
}

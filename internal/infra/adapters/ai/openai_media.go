package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"magical-academy/internal/domain/ports/adapter"
	"magical-academy/internal/infra/metrics"
)

var _ adapter.MediaGenerator = (*OpenAIMedia)(nil)

// OpenAIMedia renders story illustrations and narration.
type OpenAIMedia struct {
	client      openai.Client
	imageModel  string
	speechModel string
	voice       string
}

type MediaConfig struct {
	APIKey      string
	BaseURL     string
	ImageModel  string // dall-e-3
	SpeechModel string // tts-1
	Voice       string // alloy
}

func NewOpenAIMedia(cfg MediaConfig, opts ...option.RequestOption) (*OpenAIMedia, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("openai api key empty")
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(withSlash(cfg.BaseURL)))
	}
	reqOpts = append(reqOpts, opts...)
	m := &OpenAIMedia{
		client:      openai.NewClient(reqOpts...),
		imageModel:  modelOrDefault(cfg.ImageModel, "dall-e-3"),
		speechModel: modelOrDefault(cfg.SpeechModel, "tts-1"),
		voice:       modelOrDefault(cfg.Voice, "alloy"),
	}
	return m, nil
}

func (m *OpenAIMedia) GenerateImages(ctx context.Context, prompt string) ([]string, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, errors.New("image prompt empty")
	}
	resp, err := m.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         prompt,
		Model:          openai.ImageModel(m.imageModel),
		N:              openai.Int(1),
		Size:           openai.ImageGenerateParamsSize1024x1024,
		Style:          openai.ImageGenerateParamsStyleVivid,
		ResponseFormat: openai.ImageGenerateParamsResponseFormatURL,
	})
	if err != nil {
		metrics.IncMediaGeneration("image", false)
		return nil, fmt.Errorf("generate image: %w", err)
	}
	urls := make([]string, 0, len(resp.Data))
	for _, img := range resp.Data {
		if img.URL != "" {
			urls = append(urls, img.URL)
		}
	}
	if len(urls) == 0 {
		metrics.IncMediaGeneration("image", false)
		return nil, errors.New("generate image: empty response")
	}
	metrics.IncMediaGeneration("image", true)
	return urls, nil
}

func (m *OpenAIMedia) GenerateSpeech(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, errors.New("speech text empty")
	}
	resp, err := m.client.Audio.Speech.New(ctx, openai.AudioSpeechNewParams{
		Input:          text,
		Model:          openai.SpeechModel(m.speechModel),
		Voice:          openai.AudioSpeechNewParamsVoice(m.voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormatAAC,
	})
	if err != nil {
		metrics.IncMediaGeneration("speech", false)
		return nil, fmt.Errorf("generate speech: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.IncMediaGeneration("speech", false)
		return nil, fmt.Errorf("read speech: %w", err)
	}
	metrics.IncMediaGeneration("speech", true)
	return audio, nil
}

package generate

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ErrMissingAPIKey is returned when an OpenAI source is built without a key.
var ErrMissingAPIKey = errors.New("openai api key is required")

// OpenAIConfig defines configuration options for the OpenAI source.
type OpenAIConfig struct {
	APIKey string
	// BaseURL overrides the API endpoint, for OpenAI-compatible servers.
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float32
	Logger      zerolog.Logger
}

// OpenAISource generates candidates with the chat completion API.
type OpenAISource struct {
	client *openai.Client
	cfg    OpenAIConfig
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAISource builds a source using the provided configuration.
func NewOpenAISource(cfg OpenAIConfig) (*OpenAISource, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}

	if cfg.Model == "" {
		cfg.Model = openai.GPT3Dot5Turbo
	}

	logger := cfg.Logger
	if logger.GetLevel() == zerolog.Disabled {
		logger = zerolog.Nop()
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAISource{
		client: openai.NewClientWithConfig(config),
		cfg:    cfg,
		tracer: otel.Tracer("github.com/soypete/promptbench/pkg/generate"),
		logger: logger,
	}, nil
}

func (s *OpenAISource) Name() string {
	return "openai"
}

func (s *OpenAISource) Generate(parent context.Context, prompt, task string) (string, error) {
	ctx, span := s.tracer.Start(parent, "openai.generate", trace.WithAttributes(
		attribute.String("model", s.cfg.Model),
	))
	defer span.End()

	// A zero temperature is dropped by omitempty and the server default applies.
	temperature := s.cfg.Temperature
	if temperature == 0 {
		temperature = math.SmallestNonzeroFloat32
	}

	start := time.Now()
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.cfg.Model,
		MaxTokens:   s.cfg.MaxTokens,
		Temperature: temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: task},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("openai generate: %w", err)
	}

	if len(resp.Choices) == 0 {
		err := errors.New("no choices returned from openai")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	s.logger.Debug().
		Str("model", resp.Model).
		Int("total_tokens", resp.Usage.TotalTokens).
		Dur("duration", time.Since(start)).
		Msg("openai completion")

	return resp.Choices[0].Message.Content, nil
}

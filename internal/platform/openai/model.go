// Package openai implements generation.Model on OpenAI-compatible chat
// completion endpoints.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/phrazzld/scry-hook/internal/config"
	"github.com/phrazzld/scry-hook/internal/generation"
	goopenai "github.com/sashabaranov/go-openai"
)

// Model implements generation.Model using chat completions in JSON mode.
type Model struct {
	client      *goopenai.Client
	modelName   string
	temperature float32
	logger      *slog.Logger
}

var _ generation.Model = (*Model)(nil)

// New creates a Model from the LLM configuration. OpenAIBaseURL, when set,
// points the client at a compatible endpoint.
func New(cfg config.LLMConfig, logger *slog.Logger) (*Model, error) {
	if cfg.OpenAIAPIKey == "" {
		return nil, fmt.Errorf("%w: openai API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	clientCfg := goopenai.DefaultConfig(cfg.OpenAIAPIKey)
	if cfg.OpenAIBaseURL != "" {
		clientCfg.BaseURL = strings.TrimRight(cfg.OpenAIBaseURL, "/")
	}

	return &Model{
		client:      goopenai.NewClientWithConfig(clientCfg),
		modelName:   cfg.ModelName,
		temperature: cfg.Temperature,
		logger:      logger.With(slog.String("component", "openai")),
	}, nil
}

// Name returns the configured model name.
func (m *Model) Name() string { return m.modelName }

// Complete implements generation.Model.
func (m *Model) Complete(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", generation.ErrEmptyText
	}

	resp, err := m.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model:       m.modelName,
		Temperature: m.temperature,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "OpenAI API call error", slog.String("error", err.Error()))
		return "", mapError(err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: no choices in response", generation.ErrInvalidResponse)
	}
	choice := resp.Choices[0]
	switch choice.FinishReason {
	case goopenai.FinishReasonContentFilter:
		return "", fmt.Errorf("%w: content filter", generation.ErrContentBlocked)
	case goopenai.FinishReasonLength:
		return "", fmt.Errorf("%w: response truncated", generation.ErrInvalidResponse)
	}
	if choice.Message.Content == "" {
		return "", fmt.Errorf("%w: empty message content", generation.ErrInvalidResponse)
	}
	return choice.Message.Content, nil
}

func mapError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr *goopenai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusUnauthorized || apiErr.HTTPStatusCode == http.StatusForbidden:
			return fmt.Errorf("%w: %v", generation.ErrInvalidConfig, err)
		case apiErr.HTTPStatusCode == http.StatusBadRequest && apiErr.Code == "content_filter":
			return fmt.Errorf("%w: %v", generation.ErrContentBlocked, err)
		case apiErr.HTTPStatusCode == http.StatusBadRequest:
			return fmt.Errorf("%w: %v", generation.ErrInvalidResponse, err)
		}
	}
	return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
}

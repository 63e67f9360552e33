package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/phrazzld/scry-hook/internal/config"
	"github.com/phrazzld/scry-hook/internal/generation"
	"google.golang.org/genai"
)

// Model implements generation.Model using the Gemini API.
type Model struct {
	client      *genai.Client
	modelName   string
	temperature float32
	logger      *slog.Logger
}

var _ generation.Model = (*Model)(nil)

// New creates a Model from the LLM configuration.
func New(ctx context.Context, cfg config.LLMConfig, logger *slog.Logger) (*Model, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}
	return NewWithClient(client, cfg, logger)
}

// NewWithClient wraps an existing genai client.
func NewWithClient(client *genai.Client, cfg config.LLMConfig, logger *slog.Logger) (*Model, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: client cannot be nil", generation.ErrInvalidConfig)
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}
	return &Model{
		client:      client,
		modelName:   cfg.ModelName,
		temperature: cfg.Temperature,
		logger:      logger.With(slog.String("component", "gemini")),
	}, nil
}

func validateConfig(cfg config.LLMConfig) error {
	if cfg.GeminiAPIKey == "" {
		return fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}
	return nil
}

// Name returns the configured model name.
func (m *Model) Name() string { return m.modelName }

// Complete implements generation.Model.
func (m *Model) Complete(ctx context.Context, prompt string) (string, error) {
	if prompt == "" {
		return "", generation.ErrEmptyText
	}

	resp, err := m.client.Models.GenerateContent(ctx, m.modelName, genai.Text(prompt), &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(m.temperature),
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		m.logger.ErrorContext(ctx, "Gemini API call error", slog.String("error", err.Error()))
		return "", mapError(err)
	}
	return extractText(resp)
}

func extractText(resp *genai.GenerateContentResponse) (string, error) {
	if resp == nil {
		return "", fmt.Errorf("%w: nil response", generation.ErrInvalidResponse)
	}
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return "", fmt.Errorf("%w: prompt blocked (%s)", generation.ErrContentBlocked, resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}

	candidate := resp.Candidates[0]
	switch candidate.FinishReason {
	case genai.FinishReasonSafety, genai.FinishReasonBlocklist, genai.FinishReasonProhibitedContent:
		return "", fmt.Errorf("%w: finish reason %s", generation.ErrContentBlocked, candidate.FinishReason)
	case genai.FinishReasonMaxTokens:
		return "", fmt.Errorf("%w: response truncated", generation.ErrInvalidResponse)
	}
	if candidate.Content == nil {
		return "", fmt.Errorf("%w: empty content in response", generation.ErrInvalidResponse)
	}

	var b strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("%w: no text parts in response", generation.ErrInvalidResponse)
	}
	return b.String(), nil
}

// mapError classifies a genai client error.
func mapError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return fmt.Errorf("%w: %v", generation.ErrInvalidConfig, err)
		case apiErr.Code == http.StatusBadRequest:
			return fmt.Errorf("%w: %v", generation.ErrInvalidResponse, err)
		}
	}
	return fmt.Errorf("%w: %v", generation.ErrTransientFailure, err)
}

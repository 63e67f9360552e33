package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/phrazzld/scry-hook/internal/domain"
)

// ModelAnalyzer implements Analyzer with one model call per attempt.
type ModelAnalyzer struct {
	model  Model
	policy RetryPolicy
	logger *slog.Logger
}

var _ Analyzer = (*ModelAnalyzer)(nil)

// NewModelAnalyzer creates an analyzer over model.
func NewModelAnalyzer(model Model, policy RetryPolicy, logger *slog.Logger) (*ModelAnalyzer, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: model cannot be nil", ErrInvalidConfig)
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &ModelAnalyzer{
		model:  model,
		policy: policy,
		logger: logger.With(slog.String("component", "analyzer")),
	}, nil
}

type analysisPromptData struct {
	Text        string
	MinConcepts int
	MaxConcepts int
}

// Analyze implements Analyzer.
func (a *ModelAnalyzer) Analyze(ctx context.Context, text string) (*domain.Analysis, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}

	prompt, err := renderPrompt("analysis.tmpl", analysisPromptData{
		Text:        truncateText(text, MaxPromptTextBytes),
		MinConcepts: 3,
		MaxConcepts: 10,
	})
	if err != nil {
		return nil, err
	}

	a.logger.DebugContext(ctx, "requesting analysis",
		slog.String("model", a.model.Name()),
		slog.Int("prompt_length", len(prompt)))

	return Retry(ctx, a.policy, "analyze", func(ctx context.Context) (*domain.Analysis, error) {
		raw, err := a.model.Complete(ctx, prompt)
		if err != nil {
			return nil, err
		}
		return parseAnalysis(raw)
	})
}

func parseAnalysis(raw string) (*domain.Analysis, error) {
	body, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}
	var analysis domain.Analysis
	if err := json.Unmarshal([]byte(body), &analysis); err != nil {
		return nil, fmt.Errorf("%w: failed to parse analysis: %v", ErrInvalidResponse, err)
	}
	if err := analysis.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return &analysis, nil
}

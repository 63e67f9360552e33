package generation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/scry-hook/internal/domain"
)

// Question counts per kind.
const (
	HookQuestionCount     = 3
	ScaffoldQuestionCount = 8
)

// excerptBytes bounds the document text sent with a synthesis prompt; the
// analysis already carries the structure.
const excerptBytes = 20_000

// ModelSynthesizer implements Synthesizer with one model call per attempt.
type ModelSynthesizer struct {
	model  Model
	policy RetryPolicy
	logger *slog.Logger
}

var _ Synthesizer = (*ModelSynthesizer)(nil)

// NewModelSynthesizer creates a synthesizer over model.
func NewModelSynthesizer(model Model, policy RetryPolicy, logger *slog.Logger) (*ModelSynthesizer, error) {
	if model == nil {
		return nil, fmt.Errorf("%w: model cannot be nil", ErrInvalidConfig)
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &ModelSynthesizer{
		model:  model,
		policy: policy,
		logger: logger.With(slog.String("component", "synthesizer")),
	}, nil
}

type synthesisPromptData struct {
	Kind     domain.QuestionSetKind
	Count    int
	Analysis *domain.Analysis
	Text     string
}

// QuestionCount returns how many questions a set of kind holds.
func QuestionCount(kind domain.QuestionSetKind) int {
	if kind == domain.QuestionSetKindScaffold {
		return ScaffoldQuestionCount
	}
	return HookQuestionCount
}

// Synthesize implements Synthesizer.
func (s *ModelSynthesizer) Synthesize(ctx context.Context, req SynthesisRequest) (*domain.QuestionPayload, error) {
	if !req.Kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidQuestionSetKind, req.Kind)
	}
	if req.Analysis == nil {
		return nil, fmt.Errorf("%w: %v", ErrGenerationFailed, domain.ErrEmptyAnalysis)
	}

	count := QuestionCount(req.Kind)
	prompt, err := renderPrompt("synthesis.tmpl", synthesisPromptData{
		Kind:     req.Kind,
		Count:    count,
		Analysis: req.Analysis,
		Text:     truncateText(req.Text, excerptBytes),
	})
	if err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "requesting questions",
		slog.String("model", s.model.Name()),
		slog.String("kind", string(req.Kind)),
		slog.Int("count", count))

	return Retry(ctx, s.policy, "synthesize", func(ctx context.Context) (*domain.QuestionPayload, error) {
		raw, err := s.model.Complete(ctx, prompt)
		if err != nil {
			return nil, err
		}
		return parsePayload(raw, req.Kind)
	})
}

func parsePayload(raw string, kind domain.QuestionSetKind) (*domain.QuestionPayload, error) {
	body, err := extractJSON(raw)
	if err != nil {
		return nil, err
	}
	var payload domain.QuestionPayload
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		return nil, fmt.Errorf("%w: failed to parse questions: %v", ErrInvalidResponse, err)
	}
	payload.Kind = kind
	if err := payload.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return &payload, nil
}

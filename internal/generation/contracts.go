package generation

import (
	"context"

	"github.com/phrazzld/scry-hook/internal/domain"
)

// Document is fetched content reduced to plain text.
type Document struct {
	Text     string
	Metadata domain.ContentMetadata
}

// DocumentFetcher retrieves the document behind a normalized reference.
// Implementations return a domain.TerminalError when the reference is
// permanently unreachable or unsupported and a domain.RetryableError for
// transient faults.
type DocumentFetcher interface {
	Fetch(ctx context.Context, normalizedRef string) (*Document, error)
}

// Analyzer runs the structural and pedagogical pass over document text.
type Analyzer interface {
	Analyze(ctx context.Context, text string) (*domain.Analysis, error)
}

// SynthesisRequest is the input to question synthesis.
type SynthesisRequest struct {
	Kind     domain.QuestionSetKind
	Analysis *domain.Analysis
	Text     string
}

// Synthesizer turns an analysis into questions of the requested kind.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthesisRequest) (*domain.QuestionPayload, error)
}

// Model is a single-turn completion against a language model that has been
// asked for JSON output. Implementations map safety blocks to
// ErrContentBlocked and malformed responses to ErrInvalidResponse.
type Model interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Name() string
}

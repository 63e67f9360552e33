package mocks

import (
	"context"
	"strings"
	"sync"

	"github.com/phrazzld/scry-hook/internal/domain"
	"github.com/phrazzld/scry-hook/internal/generation"
)

// MockFetcher implements generation.DocumentFetcher for testing.
type MockFetcher struct {
	FetchFn func(ctx context.Context, normalizedRef string) (*generation.Document, error)

	// Default response values
	Document *generation.Document
	Err      error

	FetchCalls struct {
		mu    sync.Mutex
		Count int
		Refs  []string
	}
}

// Fetch implements generation.DocumentFetcher.
func (m *MockFetcher) Fetch(ctx context.Context, normalizedRef string) (*generation.Document, error) {
	m.FetchCalls.mu.Lock()
	m.FetchCalls.Count++
	m.FetchCalls.Refs = append(m.FetchCalls.Refs, normalizedRef)
	m.FetchCalls.mu.Unlock()

	if m.FetchFn != nil {
		return m.FetchFn(ctx, normalizedRef)
	}
	return m.Document, m.Err
}

// Calls returns how many times Fetch ran.
func (m *MockFetcher) Calls() int {
	m.FetchCalls.mu.Lock()
	defer m.FetchCalls.mu.Unlock()
	return m.FetchCalls.Count
}

// MockAnalyzer implements generation.Analyzer for testing.
type MockAnalyzer struct {
	AnalyzeFn func(ctx context.Context, text string) (*domain.Analysis, error)

	Analysis *domain.Analysis
	Err      error

	AnalyzeCalls struct {
		mu    sync.Mutex
		Count int
		Texts []string
	}
}

// Analyze implements generation.Analyzer.
func (m *MockAnalyzer) Analyze(ctx context.Context, text string) (*domain.Analysis, error) {
	m.AnalyzeCalls.mu.Lock()
	m.AnalyzeCalls.Count++
	m.AnalyzeCalls.Texts = append(m.AnalyzeCalls.Texts, text)
	m.AnalyzeCalls.mu.Unlock()

	if m.AnalyzeFn != nil {
		return m.AnalyzeFn(ctx, text)
	}
	return m.Analysis, m.Err
}

// Calls returns how many times Analyze ran.
func (m *MockAnalyzer) Calls() int {
	m.AnalyzeCalls.mu.Lock()
	defer m.AnalyzeCalls.mu.Unlock()
	return m.AnalyzeCalls.Count
}

// MockSynthesizer implements generation.Synthesizer for testing. Errs, when
// set, is consumed one entry per call before falling back to Payload and Err.
type MockSynthesizer struct {
	SynthesizeFn func(ctx context.Context, req generation.SynthesisRequest) (*domain.QuestionPayload, error)

	Payload *domain.QuestionPayload
	Err     error
	Errs    []error

	SynthesizeCalls struct {
		mu       sync.Mutex
		Count    int
		Requests []generation.SynthesisRequest
	}
}

// Synthesize implements generation.Synthesizer.
func (m *MockSynthesizer) Synthesize(ctx context.Context, req generation.SynthesisRequest) (*domain.QuestionPayload, error) {
	m.SynthesizeCalls.mu.Lock()
	m.SynthesizeCalls.Count++
	m.SynthesizeCalls.Requests = append(m.SynthesizeCalls.Requests, req)
	var queued error
	if len(m.Errs) > 0 {
		queued, m.Errs = m.Errs[0], m.Errs[1:]
	}
	m.SynthesizeCalls.mu.Unlock()

	if queued != nil {
		return nil, queued
	}
	if m.SynthesizeFn != nil {
		return m.SynthesizeFn(ctx, req)
	}
	if m.Payload != nil {
		return m.Payload, m.Err
	}
	if m.Err != nil {
		return nil, m.Err
	}
	return SamplePayload(req.Kind), nil
}

// Calls returns how many times Synthesize ran.
func (m *MockSynthesizer) Calls() int {
	m.SynthesizeCalls.mu.Lock()
	defer m.SynthesizeCalls.mu.Unlock()
	return m.SynthesizeCalls.Count
}

// MockModel implements generation.Model for testing.
type MockModel struct {
	CompleteFn func(ctx context.Context, prompt string) (string, error)

	Response string
	Err      error
	ModelID  string

	CompleteCalls struct {
		mu      sync.Mutex
		Count   int
		Prompts []string
	}
}

// Complete implements generation.Model.
func (m *MockModel) Complete(ctx context.Context, prompt string) (string, error) {
	m.CompleteCalls.mu.Lock()
	m.CompleteCalls.Count++
	m.CompleteCalls.Prompts = append(m.CompleteCalls.Prompts, prompt)
	m.CompleteCalls.mu.Unlock()

	if m.CompleteFn != nil {
		return m.CompleteFn(ctx, prompt)
	}
	return m.Response, m.Err
}

// Name implements generation.Model.
func (m *MockModel) Name() string {
	if m.ModelID == "" {
		return "mock-model"
	}
	return m.ModelID
}

// NewMockFetcherWithText creates a MockFetcher returning a plain text document.
func NewMockFetcherWithText(title, text string) *MockFetcher {
	return &MockFetcher{Document: SampleDocument(title, text)}
}

// NewMockFetcherWithError creates a MockFetcher that always fails with err.
func NewMockFetcherWithError(err error) *MockFetcher {
	return &MockFetcher{Err: err}
}

// SampleDocument builds a document with metadata filled in from text.
func SampleDocument(title, text string) *generation.Document {
	return &generation.Document{
		Text: text,
		Metadata: domain.ContentMetadata{
			Title:       title,
			ContentType: "text/html",
			WordCount:   len(strings.Fields(text)),
			ByteSize:    int64(len(text)),
		},
	}
}

// SampleAnalysis returns a small valid analysis.
func SampleAnalysis() *domain.Analysis {
	return &domain.Analysis{
		Title:   "Tides",
		Summary: "Tides are driven by the moon's gravity.",
		KeyConcepts: []domain.Concept{
			{Name: "gravity", Explanation: "The moon pulls on the oceans.", Importance: 5},
			{Name: "spring tide", Explanation: "Sun and moon align.", Importance: 3},
		},
	}
}

// SamplePayload returns a valid payload of the given kind.
func SamplePayload(kind domain.QuestionSetKind) *domain.QuestionPayload {
	return &domain.QuestionPayload{
		Kind: kind,
		Questions: []domain.Question{
			{
				Prompt:      "What mainly drives ocean tides?",
				Options:     []string{"Wind", "The moon's gravity", "Earth's core"},
				AnswerIndex: 1,
				Concept:     "gravity",
			},
		},
	}
}

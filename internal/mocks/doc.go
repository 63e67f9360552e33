// Package mocks provides shared test doubles for the generation contracts.
//
// Each mock has a function field per method for custom behaviour, default
// return values used when the function is nil, and mutex-guarded call
// tracking so it can be shared by concurrent workers:
//
//	analyzer := &mocks.MockAnalyzer{Analysis: mocks.SampleAnalysis()}
//	synth := &mocks.MockSynthesizer{
//	    SynthesizeFn: func(ctx context.Context, req generation.SynthesisRequest) (*domain.QuestionPayload, error) {
//	        return mocks.SamplePayload(req.Kind), nil
//	    },
//	}
package mocks

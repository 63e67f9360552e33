// Package generation defines the contracts the pipeline consumes for turning
// a document into quiz questions: a DocumentFetcher, an Analyzer for the
// structural pass and a Synthesizer for the question pass. It also carries the
// model-backed Analyzer and Synthesizer, which render embedded prompt
// templates and hand them to any Model (Gemini, OpenAI), and the fixed-delay
// Retry that bounds each external call.
package generation

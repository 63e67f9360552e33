// Package web implements generation.DocumentFetcher.
//
// http and https references are fetched with net/http and reduced to plain
// text: HTML through golang.org/x/net/html, PDF through ledongthuc/pdf, and
// text/* passed through with whitespace collapsed. Upload references are
// resolved from the blob store, where the upload handler left the raw bytes.
//
// Failures are classified for the pipeline: a reference that can never be
// fetched (404, 410, 451, auth walls, unsupported or empty documents) is a
// domain.TerminalError, anything that may succeed later (network faults, 429,
// 5xx) is a domain.RetryableError.
package web

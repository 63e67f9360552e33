package web

import "errors"

var (
	// ErrUnsupportedContentType is returned for documents the extractor
	// cannot turn into text.
	ErrUnsupportedContentType = errors.New("unsupported content type")

	// ErrNoText is returned when a document yields no readable text.
	ErrNoText = errors.New("document contains no extractable text")

	// ErrTooLarge is returned when a response exceeds the configured size limit.
	ErrTooLarge = errors.New("document exceeds size limit")

	// ErrUnreachable is returned for HTTP statuses and hosts that will not
	// change on retry.
	ErrUnreachable = errors.New("reference unreachable")

	// ErrUpstream is returned for HTTP statuses that may clear up later.
	ErrUpstream = errors.New("upstream temporarily unavailable")
)

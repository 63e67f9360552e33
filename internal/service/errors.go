package service

import (
	"errors"
	"fmt"

	"github.com/phrazzld/scry-hook/internal/domain"
	"github.com/phrazzld/scry-hook/internal/store"
)

// Common service errors - sentinel errors used across service implementations.
// These errors represent common conditions that callers may want to check for with errors.Is().
//
// Error handling principles:
// 1. Service methods return sentinel errors for expected error conditions
// 2. Unexpected errors are wrapped in SessionServiceError
// 3. Callers use errors.Is/errors.As to check for specific error conditions
// 4. The API layer maps service errors to appropriate HTTP status codes
var (
	// ErrNotOwned indicates a session is owned by a different user than the one making the request.
	// API layer should map this to HTTP 403 Forbidden.
	ErrNotOwned = errors.New("resource is owned by another user")

	// ErrSessionNotFound indicates that no session has the given token.
	// API layer should map this to HTTP 404 Not Found.
	ErrSessionNotFound = errors.New("session not found")

	// ErrEmptyUpload indicates an upload without content.
	ErrEmptyUpload = errors.New("upload is empty")

	// ErrUploadTooLarge indicates an upload above the configured size limit.
	// API layer should map this to HTTP 413 Request Entity Too Large.
	ErrUploadTooLarge = errors.New("upload exceeds size limit")

	// ErrUnknownUpload indicates an upload reference whose bytes were never stored.
	ErrUnknownUpload = errors.New("upload not found")
)

// SessionServiceError wraps errors from the session service with context.
type SessionServiceError struct {
	// Operation is the operation that failed (e.g., "submit_reference", "get_question_set")
	Operation string
	// Message is a human-readable description of the error
	Message string
	// Err is the underlying error that caused the failure
	Err error
}

// Error implements the error interface for SessionServiceError.
func (e *SessionServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("session service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *SessionServiceError) Unwrap() error {
	return e.Err
}

// passthrough are errors returned to callers as they are.
var passthrough = []error{
	ErrNotOwned,
	ErrSessionNotFound,
	ErrEmptyUpload,
	ErrUploadTooLarge,
	ErrUnknownUpload,
	domain.ErrInvalidReference,
	domain.ErrUnsupportedScheme,
	domain.ErrInvalidQuestionSetKind,
	domain.ErrInvalidStudyProgress,
}

// NewSessionServiceError creates a new SessionServiceError.
// It returns known sentinel errors directly without wrapping, and maps the
// store's session not-found error to ErrSessionNotFound.
func NewSessionServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrSessionNotFound) {
		return ErrSessionNotFound
	}
	for _, sentinel := range passthrough {
		if errors.Is(err, sentinel) {
			return err
		}
	}
	return &SessionServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

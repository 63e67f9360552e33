package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Common domain errors used across the application.
var (
	// ErrInvalidReference is returned when a submitted reference cannot be
	// normalized into a supported locator.
	ErrInvalidReference = errors.New("invalid reference")

	// ErrUnsupportedScheme is returned for references whose scheme the
	// pipeline cannot fetch.
	ErrUnsupportedScheme = errors.New("unsupported reference scheme")

	// ErrInvalidTransition is returned when a status change is not permitted
	// by the entity's transition table.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrClaimLost is returned when a completion presents a claim that has
	// since expired or been superseded by another worker.
	ErrClaimLost = errors.New("claim no longer held")
)

// TerminalError marks a failure that must not be retried at any level.
// Unreachable or unsupported references and safety-blocked content are
// terminal.
type TerminalError struct {
	Op  string
	Err error
}

func (e *TerminalError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("terminal: %v", e.Err)
	}
	return fmt.Sprintf("%s: terminal: %v", e.Op, e.Err)
}

func (e *TerminalError) Unwrap() error { return e.Err }

// RetryableError marks a transient fault. The owning resource returns to a
// retry-eligible state and its attempt counter is incremented.
type RetryableError struct {
	Op  string
	Err error
}

func (e *RetryableError) Error() string {
	if e.Op == "" {
		return fmt.Sprintf("retryable: %v", e.Err)
	}
	return fmt.Sprintf("%s: retryable: %v", e.Op, e.Err)
}

func (e *RetryableError) Unwrap() error { return e.Err }

// InvalidStateError reports a claim or transition attempted against a
// resource in an unexpected state. It is treated as terminal.
type InvalidStateError struct {
	Entity   string
	ID       string
	Status   string
	Expected []string
	// LostClaim is set when the status matched but the caller's claim did not.
	LostClaim bool
}

func (e *InvalidStateError) Error() string {
	if e.LostClaim {
		return fmt.Sprintf("%s %s in status %q: %v", e.Entity, e.ID, e.Status, ErrClaimLost)
	}
	return fmt.Sprintf("%s %s in status %q, expected one of [%s]",
		e.Entity, e.ID, e.Status, strings.Join(e.Expected, ", "))
}

func (e *InvalidStateError) Unwrap() []error {
	if e.LostClaim {
		return []error{ErrInvalidTransition, ErrClaimLost}
	}
	return []error{ErrInvalidTransition}
}

// NewTerminalError wraps err as a TerminalError for the given operation.
func NewTerminalError(op string, err error) error {
	return &TerminalError{Op: op, Err: err}
}

// NewRetryableError wraps err as a RetryableError for the given operation.
func NewRetryableError(op string, err error) error {
	return &RetryableError{Op: op, Err: err}
}

// IsTerminal reports whether err must not be retried. Invalid state errors
// count as terminal.
func IsTerminal(err error) bool {
	var terminal *TerminalError
	if errors.As(err, &terminal) {
		return true
	}
	var invalid *InvalidStateError
	return errors.As(err, &invalid)
}

// IsRetryable reports whether err is a transient fault. Errors that are
// neither terminal nor explicitly retryable are treated as retryable by
// callers, so this is only needed where the distinction matters.
func IsRetryable(err error) bool {
	if IsTerminal(err) {
		return false
	}
	var retryable *RetryableError
	return errors.As(err, &retryable)
}

// IsInvalidState reports whether err is an InvalidStateError.
func IsInvalidState(err error) bool {
	var invalid *InvalidStateError
	return errors.As(err, &invalid)
}

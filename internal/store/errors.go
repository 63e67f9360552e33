package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	// Entity-specific not found errors wrap it.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would create a duplicate
	// of a unique entity.
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrUpdateFailed is returned when a conditional update matched no row
	// even though the row exists.
	ErrUpdateFailed = errors.New("update failed")

	// ErrConflict is returned when a statement lost a lock or serialization
	// conflict with a concurrent transaction. Retrying the transaction is safe.
	ErrConflict = errors.New("concurrent transaction conflict")

	// ErrTransactionFailed is returned when a database transaction fails
	// to commit or when an operation within a transaction fails.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrContentItemNotFound indicates that the requested content item does not exist.
	ErrContentItemNotFound = fmt.Errorf("%w: content item", ErrNotFound)

	// ErrQuizContainerNotFound indicates that the requested quiz container does not exist.
	ErrQuizContainerNotFound = fmt.Errorf("%w: quiz container", ErrNotFound)

	// ErrQuestionSetNotFound indicates that the requested question set does not exist.
	ErrQuestionSetNotFound = fmt.Errorf("%w: question set", ErrNotFound)

	// ErrSessionNotFound indicates that the requested session does not exist.
	ErrSessionNotFound = fmt.Errorf("%w: session", ErrNotFound)

	// ErrBlobNotFound indicates that no content is stored under the pointer.
	ErrBlobNotFound = fmt.Errorf("%w: blob", ErrNotFound)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsDuplicateError checks if the error is any kind of "duplicate" error.
func IsDuplicateError(err error) bool {
	return errors.Is(err, ErrDuplicate)
}

// StoreError is a custom error type for store-specific errors with additional context.
type StoreError struct {
	Entity    string // The entity type (e.g., "session", "question set")
	Operation string // The operation that failed (e.g., "claim", "complete")
	Message   string // Error message
	Err       error  // Original error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s operation on %s failed: %s: %v", e.Operation, e.Entity, e.Message, e.Err)
	}
	return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Entity, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError with the given entity, operation, message, and wrapped error.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}

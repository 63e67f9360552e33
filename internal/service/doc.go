// Package service contains the caller-facing use cases of the quiz pipeline.
// It orchestrates domain objects, stores (defined in internal/store) and the
// admission queue to fulfill application features, and never depends on a
// specific infrastructure implementation.
//
// SessionService is the entry point for callers: it accepts references and
// uploads, answers status polls, hands out finished question sets and records
// study progress. Background work is requested by emitting events; the task
// runner picks them up.
//
// Error handling:
//   - Expected conditions are sentinel errors (ErrSessionNotFound, ErrNotOwned,
//     domain.ErrInvalidReference, ...) returned unwrapped so callers can use
//     errors.Is.
//   - Unexpected failures are wrapped in SessionServiceError with the operation
//     that failed. The API layer maps both to HTTP status codes.
package service

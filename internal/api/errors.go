package api

import (
	"errors"
	"net/http"

	"github.com/phrazzld/scry-hook/internal/api/shared"
	"github.com/phrazzld/scry-hook/internal/domain"
	"github.com/phrazzld/scry-hook/internal/service"
	"github.com/phrazzld/scry-hook/internal/service/auth"
	"github.com/phrazzld/scry-hook/internal/store"
)

// MapErrorToStatusCode maps internal errors to appropriate HTTP status codes
// based on the error type. This prevents leaking internal error types or
// messages to clients.
func MapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrWrongTokenType):
		return http.StatusUnauthorized

	case errors.Is(err, service.ErrNotOwned):
		return http.StatusForbidden

	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, service.ErrUploadTooLarge):
		return http.StatusRequestEntityTooLarge

	case errors.Is(err, domain.ErrInvalidReference),
		errors.Is(err, domain.ErrUnsupportedScheme),
		errors.Is(err, domain.ErrInvalidQuestionSetKind),
		errors.Is(err, domain.ErrInvalidStudyProgress),
		errors.Is(err, service.ErrEmptyUpload),
		errors.Is(err, service.ErrUnknownUpload),
		errors.Is(err, store.ErrInvalidEntity):
		return http.StatusBadRequest

	default:
		return http.StatusInternalServerError
	}
}

// GetSafeErrorMessage returns a sanitized, user-friendly error message
// based on the error type. This prevents leaking sensitive internal details.
func GetSafeErrorMessage(err error) string {
	switch {
	case err == nil:
		return "An unexpected error occurred"

	case errors.Is(err, auth.ErrExpiredToken):
		return "Token expired"
	case errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrMissingToken),
		errors.Is(err, auth.ErrWrongTokenType):
		return "Invalid token"

	case errors.Is(err, service.ErrNotOwned):
		return "You do not own this session"
	case errors.Is(err, service.ErrSessionNotFound):
		return "Session not found"
	case errors.Is(err, store.ErrNotFound):
		return "Resource not found"

	case errors.Is(err, domain.ErrUnsupportedScheme):
		return "Only http and https references are supported"
	case errors.Is(err, domain.ErrInvalidReference):
		return "Invalid reference"
	case errors.Is(err, domain.ErrInvalidQuestionSetKind):
		return "Unknown question set kind"
	case errors.Is(err, domain.ErrInvalidStudyProgress):
		return "Invalid study progress"
	case errors.Is(err, service.ErrEmptyUpload):
		return "Upload is empty"
	case errors.Is(err, service.ErrUploadTooLarge):
		return "Upload is too large"
	case errors.Is(err, service.ErrUnknownUpload):
		return "Upload not found"
	case errors.Is(err, store.ErrInvalidEntity):
		return "Invalid entity data"

	default:
		return "An unexpected error occurred"
	}
}

// HandleAPIError writes the status and safe message for err. defaultMsg
// replaces the generic message for errors without a specific mapping.
func HandleAPIError(w http.ResponseWriter, r *http.Request, err error, defaultMsg string) {
	status := MapErrorToStatusCode(err)
	msg := GetSafeErrorMessage(err)
	if status == http.StatusInternalServerError && defaultMsg != "" {
		msg = defaultMsg
	}
	shared.RespondWithErrorAndLog(w, r, status, msg, err)
}

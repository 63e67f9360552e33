// Package middleware holds the HTTP middleware of the session API.
package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-hook/internal/api/shared"
	"github.com/phrazzld/scry-hook/internal/platform/logger"
	"github.com/phrazzld/scry-hook/internal/service/auth"
)

// AuthMiddleware provides JWT authentication for routes.
type AuthMiddleware struct {
	jwtService auth.JWTService
}

// NewAuthMiddleware creates a new AuthMiddleware with the given dependencies.
func NewAuthMiddleware(jwtService auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{jwtService: jwtService}
}

// Authenticate validates the bearer token in the Authorization header and
// adds the user ID to the request context for authorized requests.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Authorization header required")
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid authorization format")
			return
		}

		claims, err := m.jwtService.ValidateToken(r.Context(), strings.TrimSpace(token))
		switch {
		case err == nil:
		case errors.Is(err, auth.ErrExpiredToken):
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Token expired")
			return
		case errors.Is(err, auth.ErrInvalidToken),
			errors.Is(err, auth.ErrWrongTokenType),
			errors.Is(err, auth.ErrTokenNotYetValid),
			errors.Is(err, auth.ErrMissingToken):
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid token")
			return
		default:
			shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError, "Authentication error", err)
			return
		}

		logger.FromContextOrDefault(r.Context(), slog.Default()).DebugContext(r.Context(), "request authenticated",
			slog.String("user_id", claims.UserID.String()))
		next.ServeHTTP(w, r.WithContext(shared.WithUserID(r.Context(), claims.UserID)))
	})
}

// GetUserID extracts the user ID from the request context.
// Returns the user ID and a boolean indicating if it was found.
func GetUserID(r *http.Request) (uuid.UUID, bool) {
	return shared.UserIDFromContext(r.Context())
}

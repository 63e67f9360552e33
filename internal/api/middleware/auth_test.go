package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-hook/internal/service/auth"
	"github.com/stretchr/testify/assert"
)

type stubJWTService struct {
	claims *auth.Claims
	err    error
	seen   string
}

func (s *stubJWTService) GenerateToken(context.Context, uuid.UUID) (string, error) {
	return "", errors.New("not used")
}

func (s *stubJWTService) ValidateToken(_ context.Context, token string) (*auth.Claims, error) {
	s.seen = token
	return s.claims, s.err
}

func TestAuthenticate(t *testing.T) {
	t.Parallel()

	userID := uuid.New()

	tests := []struct {
		name       string
		header     string
		claims     *auth.Claims
		err        error
		wantStatus int
		wantBody   string
		wantToken  string
	}{
		{name: "valid", header: "Bearer good", claims: &auth.Claims{UserID: userID}, wantStatus: http.StatusOK, wantToken: "good"},
		{name: "lower-case scheme", header: "bearer good", claims: &auth.Claims{UserID: userID}, wantStatus: http.StatusOK, wantToken: "good"},
		{name: "missing header", wantStatus: http.StatusUnauthorized, wantBody: "Authorization header required"},
		{name: "basic scheme", header: "Basic abc", wantStatus: http.StatusUnauthorized, wantBody: "Invalid authorization format"},
		{name: "empty token", header: "Bearer  ", wantStatus: http.StatusUnauthorized, wantBody: "Invalid authorization format"},
		{name: "expired", header: "Bearer old", err: auth.ErrExpiredToken, wantStatus: http.StatusUnauthorized, wantBody: "Token expired"},
		{name: "invalid", header: "Bearer bad", err: auth.ErrInvalidToken, wantStatus: http.StatusUnauthorized, wantBody: "Invalid token"},
		{name: "wrong type", header: "Bearer refresh", err: auth.ErrWrongTokenType, wantStatus: http.StatusUnauthorized, wantBody: "Invalid token"},
		{name: "unexpected", header: "Bearer x", err: errors.New("boom"), wantStatus: http.StatusInternalServerError, wantBody: "Authentication error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			jwtService := &stubJWTService{claims: tc.claims, err: tc.err}
			var gotUser uuid.UUID
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotUser, _ = GetUserID(r)
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			NewAuthMiddleware(jwtService).Authenticate(next).ServeHTTP(rec, req)

			assert.Equal(t, tc.wantStatus, rec.Code)
			if tc.wantBody != "" {
				assert.Contains(t, rec.Body.String(), tc.wantBody)
			}
			if tc.wantStatus == http.StatusOK {
				assert.Equal(t, userID, gotUser)
				assert.Equal(t, tc.wantToken, jwtService.seen)
			}
		})
	}
}

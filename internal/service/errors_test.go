package service

import (
	"errors"
	"fmt"
	"testing"

	"github.com/phrazzld/scry-hook/internal/domain"
	"github.com/phrazzld/scry-hook/internal/store"
	"github.com/stretchr/testify/assert"
)

func TestNewSessionServiceError(t *testing.T) {
	t.Parallel()

	cause := errors.New("connection reset")
	invalidRef := fmt.Errorf("%w: missing scheme", domain.ErrInvalidReference)

	tests := []struct {
		name       string
		err        error
		wantNil    bool
		wantIs     error
		wantSame   bool
		wantWrap   bool
		wantString string
	}{
		{name: "nil", err: nil, wantNil: true},
		{name: "store not found maps to service sentinel", err: fmt.Errorf("get: %w", store.ErrSessionNotFound), wantIs: ErrSessionNotFound},
		{name: "service sentinel passes through", err: ErrNotOwned, wantIs: ErrNotOwned, wantSame: true},
		{name: "domain sentinel keeps its detail", err: invalidRef, wantIs: domain.ErrInvalidReference, wantSame: true},
		{
			name:       "unexpected errors are wrapped",
			err:        cause,
			wantIs:     cause,
			wantWrap:   true,
			wantString: "session service submit_reference failed: failed to save session: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewSessionServiceError("submit_reference", "failed to save session", tt.err)
			if tt.wantNil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tt.wantIs)
			if tt.wantSame {
				assert.Equal(t, tt.err, got)
			}
			var svcErr *SessionServiceError
			assert.Equal(t, tt.wantWrap, errors.As(got, &svcErr))
			if tt.wantString != "" {
				assert.Equal(t, tt.wantString, got.Error())
			}
		})
	}
}

func TestSessionServiceError_WithoutCause(t *testing.T) {
	t.Parallel()
	err := &SessionServiceError{Operation: "create_service", Message: "admission cannot be nil"}
	assert.Equal(t, "session service create_service failed: admission cannot be nil", err.Error())
	assert.NoError(t, err.Unwrap())
}

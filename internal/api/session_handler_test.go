package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-hook/internal/config"
	"github.com/phrazzld/scry-hook/internal/domain"
	"github.com/phrazzld/scry-hook/internal/service"
	"github.com/phrazzld/scry-hook/internal/service/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testJWTSecret = "test-secret-that-is-at-least-32-characters"

// fakeSessionService records calls and answers with canned results.
type fakeSessionService struct {
	submitReference func(ctx context.Context, userID uuid.UUID, ref string) (*service.Submission, error)
	submitUpload    func(ctx context.Context, userID uuid.UUID, name, contentType string, data []byte) (*service.Submission, error)
	getStatus       func(ctx context.Context, token string) (*service.SessionView, error)
	getQuestionSet  func(ctx context.Context, token string, kind domain.QuestionSetKind) (*service.QuestionSetView, error)

	progressCalls []string
	archiveCalls  []string
	mutationErr   error
}

func (f *fakeSessionService) SubmitReference(ctx context.Context, userID uuid.UUID, ref string) (*service.Submission, error) {
	return f.submitReference(ctx, userID, ref)
}

func (f *fakeSessionService) SubmitUpload(ctx context.Context, userID uuid.UUID, name, contentType string, data []byte) (*service.Submission, error) {
	return f.submitUpload(ctx, userID, name, contentType, data)
}

func (f *fakeSessionService) GetSessionStatus(ctx context.Context, token string) (*service.SessionView, error) {
	return f.getStatus(ctx, token)
}

func (f *fakeSessionService) GetQuestionSet(ctx context.Context, token string, kind domain.QuestionSetKind) (*service.QuestionSetView, error) {
	return f.getQuestionSet(ctx, token, kind)
}

func (f *fakeSessionService) RecordProgress(_ context.Context, _ uuid.UUID, token string) (*domain.Session, error) {
	f.progressCalls = append(f.progressCalls, token)
	return &domain.Session{Token: token}, f.mutationErr
}

func (f *fakeSessionService) ArchiveSession(_ context.Context, _ uuid.UUID, token string) (*domain.Session, error) {
	f.archiveCalls = append(f.archiveCalls, token)
	return &domain.Session{Token: token}, f.mutationErr
}

type routerFixture struct {
	router http.Handler
	svc    *fakeSessionService
	userID uuid.UUID
	bearer string
}

func newRouterFixture(t *testing.T) *routerFixture {
	t.Helper()

	jwtService, err := auth.NewJWTService(config.AuthConfig{
		JWTSecret:            testJWTSecret,
		TokenLifetimeMinutes: 60,
	})
	require.NoError(t, err)

	userID := uuid.New()
	token, err := jwtService.GenerateToken(context.Background(), userID)
	require.NoError(t, err)

	svc := &fakeSessionService{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	router := NewRouter(RouterConfig{
		Sessions: NewSessionHandler(svc, 1024, log),
		JWT:      jwtService,
		Logger:   log,
	})

	return &routerFixture{router: router, svc: svc, userID: userID, bearer: "Bearer " + token}
}

func (f *routerFixture) do(t *testing.T, method, path string, body io.Reader, authed bool) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if authed {
		req.Header.Set("Authorization", f.bearer)
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestSubmitSession(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		body       string
		authed     bool
		created    bool
		serviceErr error
		wantStatus int
		wantError  string
	}{
		{name: "new session", body: `{"reference":"https://example.com/a"}`, authed: true, created: true, wantStatus: http.StatusAccepted},
		{name: "existing session", body: `{"reference":"https://example.com/a"}`, authed: true, wantStatus: http.StatusOK},
		{name: "unauthenticated", body: `{"reference":"https://example.com/a"}`, wantStatus: http.StatusUnauthorized, wantError: "Authorization header required"},
		{name: "missing reference", body: `{}`, authed: true, wantStatus: http.StatusBadRequest, wantError: "Invalid reference: required field"},
		{name: "unknown field", body: `{"reference":"https://example.com","x":1}`, authed: true, wantStatus: http.StatusBadRequest, wantError: "Invalid request format"},
		{name: "malformed json", body: `{"reference":`, authed: true, wantStatus: http.StatusBadRequest, wantError: "Invalid request format"},
		{
			name:       "unsupported scheme",
			body:       `{"reference":"ftp://example.com/a"}`,
			authed:     true,
			serviceErr: fmt.Errorf("normalize: %w", domain.ErrUnsupportedScheme),
			wantStatus: http.StatusBadRequest,
			wantError:  "Only http and https references are supported",
		},
		{
			name:       "store failure",
			body:       `{"reference":"https://example.com/a"}`,
			authed:     true,
			serviceErr: errors.New("connection refused"),
			wantStatus: http.StatusInternalServerError,
			wantError:  "Failed to submit reference",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newRouterFixture(t)
			f.svc.submitReference = func(_ context.Context, userID uuid.UUID, ref string) (*service.Submission, error) {
				assert.Equal(t, f.userID, userID)
				if tc.serviceErr != nil {
					return nil, tc.serviceErr
				}
				return &service.Submission{
					Session: &domain.Session{Token: "tok", Reference: ref, Status: domain.SessionStatusQueued},
					Created: tc.created,
				}, nil
			}

			rec := f.do(t, http.MethodPost, "/api/sessions", strings.NewReader(tc.body), tc.authed)

			assert.Equal(t, tc.wantStatus, rec.Code, rec.Body.String())
			if tc.wantError != "" {
				resp := decodeBody[struct {
					Error   string `json:"error"`
					TraceID string `json:"trace_id"`
				}](t, rec)
				assert.Equal(t, tc.wantError, resp.Error)
				assert.NotEmpty(t, resp.TraceID)
				assert.NotContains(t, rec.Body.String(), "connection refused")
				return
			}
			resp := decodeBody[SubmissionResponse](t, rec)
			assert.Equal(t, "tok", resp.Token)
			assert.Equal(t, "queued", resp.Status)
			assert.Equal(t, tc.created, resp.Created)
		})
	}
}

func TestSubmitSession_ExpiredToken(t *testing.T) {
	t.Parallel()
	f := newRouterFixture(t)
	f.bearer = "Bearer not-a-jwt"

	rec := f.do(t, http.MethodPost, "/api/sessions", strings.NewReader(`{"reference":"https://example.com"}`), true)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid token")
}

func multipartBody(t *testing.T, field, name string, data []byte) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = part.Write(data)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestSubmitUpload(t *testing.T) {
	t.Parallel()

	t.Run("stores the file", func(t *testing.T) {
		t.Parallel()
		f := newRouterFixture(t)
		var gotName string
		var gotData []byte
		f.svc.submitUpload = func(_ context.Context, userID uuid.UUID, name, _ string, data []byte) (*service.Submission, error) {
			gotName, gotData = name, data
			return &service.Submission{
				Session: &domain.Session{Token: "up", Status: domain.SessionStatusActive},
				Created: true,
			}, nil
		}

		body, contentType := multipartBody(t, "file", "notes.txt", []byte("some notes"))
		req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", f.bearer)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
		assert.Equal(t, "notes.txt", gotName)
		assert.Equal(t, []byte("some notes"), gotData)
		assert.Equal(t, "up", decodeBody[SubmissionResponse](t, rec).Token)
	})

	t.Run("missing file field", func(t *testing.T) {
		t.Parallel()
		f := newRouterFixture(t)
		body, contentType := multipartBody(t, "other", "notes.txt", []byte("x"))
		req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", f.bearer)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("service rejects size", func(t *testing.T) {
		t.Parallel()
		f := newRouterFixture(t)
		f.svc.submitUpload = func(context.Context, uuid.UUID, string, string, []byte) (*service.Submission, error) {
			return nil, service.ErrUploadTooLarge
		}
		body, contentType := multipartBody(t, "file", "big.bin", []byte("0123456789"))
		req := httptest.NewRequest(http.MethodPost, "/api/uploads", body)
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Authorization", f.bearer)
		rec := httptest.NewRecorder()
		f.router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	})
}

func TestGetSession(t *testing.T) {
	t.Parallel()

	t.Run("no auth needed with token", func(t *testing.T) {
		t.Parallel()
		f := newRouterFixture(t)
		now := time.Now().UTC()
		f.svc.getStatus = func(_ context.Context, token string) (*service.SessionView, error) {
			assert.Equal(t, "abc", token)
			return &service.SessionView{
				Session: &domain.Session{
					Token:         token,
					Reference:     "https://example.com",
					Status:        domain.SessionStatusErrored,
					StudyProgress: domain.StudyProgressNotStarted,
					CreatedAt:     now,
					UpdatedAt:     now,
				},
				ContentItemStatus: domain.ContentItemStatusFailed,
				ErrorSummary:      "fetch failed",
			}, nil
		}

		rec := f.do(t, http.MethodGet, "/api/sessions/abc", nil, false)

		require.Equal(t, http.StatusOK, rec.Code)
		resp := decodeBody[SessionResponse](t, rec)
		assert.Equal(t, "errored", resp.Status)
		assert.Equal(t, "not_started", resp.StudyProgress)
		assert.Equal(t, string(domain.ContentItemStatusFailed), resp.ContentItemStatus)
		assert.Equal(t, "fetch failed", resp.Error)
		assert.False(t, resp.Archived)
	})

	t.Run("unknown token", func(t *testing.T) {
		t.Parallel()
		f := newRouterFixture(t)
		f.svc.getStatus = func(context.Context, string) (*service.SessionView, error) {
			return nil, service.ErrSessionNotFound
		}

		rec := f.do(t, http.MethodGet, "/api/sessions/nope", nil, false)

		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Contains(t, rec.Body.String(), "Session not found")
	})
}

func TestGetQuestionSet(t *testing.T) {
	t.Parallel()

	payload := &domain.QuestionPayload{
		Kind: domain.QuestionSetKindHook,
		Questions: []domain.Question{
			{Prompt: "Q?", Options: []string{"a", "b"}, AnswerIndex: 1},
		},
	}

	tests := []struct {
		name       string
		view       *service.QuestionSetView
		err        error
		wantStatus int
		check      func(t *testing.T, resp QuestionSetResponse)
	}{
		{
			name:       "ready",
			view:       &service.QuestionSetView{Kind: domain.QuestionSetKindHook, Status: domain.QuestionSetStatusReady, Payload: payload},
			wantStatus: http.StatusOK,
			check: func(t *testing.T, resp QuestionSetResponse) {
				assert.False(t, resp.Pending)
				require.Len(t, resp.Questions, 1)
				assert.Equal(t, 1, resp.Questions[0].AnswerIndex)
			},
		},
		{
			name:       "pending",
			view:       &service.QuestionSetView{Kind: domain.QuestionSetKindScaffold, Status: domain.QuestionSetStatusGenerating},
			wantStatus: http.StatusAccepted,
			check: func(t *testing.T, resp QuestionSetResponse) {
				assert.True(t, resp.Pending)
				assert.Empty(t, resp.Questions)
			},
		},
		{
			name: "failed for good",
			view: &service.QuestionSetView{
				Kind:         domain.QuestionSetKindHook,
				Status:       domain.QuestionSetStatusRetriesExhausted,
				ErrorSummary: "model returned no questions",
			},
			wantStatus: http.StatusUnprocessableEntity,
			check: func(t *testing.T, resp QuestionSetResponse) {
				assert.False(t, resp.Pending)
				assert.Equal(t, "model returned no questions", resp.Error)
			},
		},
		{
			name:       "unknown kind",
			err:        fmt.Errorf("kind %q: %w", "bogus", domain.ErrInvalidQuestionSetKind),
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newRouterFixture(t)
			f.svc.getQuestionSet = func(_ context.Context, token string, kind domain.QuestionSetKind) (*service.QuestionSetView, error) {
				assert.Equal(t, "abc", token)
				return tc.view, tc.err
			}

			rec := f.do(t, http.MethodGet, "/api/sessions/abc/question-sets/hook", nil, false)

			require.Equal(t, tc.wantStatus, rec.Code, rec.Body.String())
			if tc.check != nil {
				tc.check(t, decodeBody[QuestionSetResponse](t, rec))
			}
		})
	}
}

func TestUpdateProgress(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		body         string
		mutationErr  error
		wantStatus   int
		wantProgress int
		wantArchive  int
	}{
		{name: "in progress", body: `{"progress":"in_progress"}`, wantStatus: http.StatusNoContent, wantProgress: 1},
		{name: "completed archives", body: `{"progress":"completed"}`, wantStatus: http.StatusNoContent, wantArchive: 1},
		{name: "invalid value", body: `{"progress":"not_started"}`, wantStatus: http.StatusBadRequest},
		{name: "not owner", body: `{"progress":"in_progress"}`, mutationErr: service.ErrNotOwned, wantStatus: http.StatusForbidden, wantProgress: 1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			f := newRouterFixture(t)
			f.svc.mutationErr = tc.mutationErr

			rec := f.do(t, http.MethodPut, "/api/sessions/abc/progress", strings.NewReader(tc.body), true)

			assert.Equal(t, tc.wantStatus, rec.Code, rec.Body.String())
			assert.Len(t, f.svc.progressCalls, tc.wantProgress)
			assert.Len(t, f.svc.archiveCalls, tc.wantArchive)
		})
	}
}

func TestArchiveSession(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t)
	rec := f.do(t, http.MethodPost, "/api/sessions/abc/archive", nil, true)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"abc"}, f.svc.archiveCalls)

	rec = f.do(t, http.MethodPost, "/api/sessions/abc/archive", nil, false)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Len(t, f.svc.archiveCalls, 1)
}

func TestHealth(t *testing.T) {
	t.Parallel()

	f := newRouterFixture(t)
	rec := f.do(t, http.MethodGet, "/health", nil, false)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())

	failing := NewRouter(RouterConfig{
		Sessions: NewSessionHandler(&fakeSessionService{}, 0, nil),
		JWT:      nil,
		Health:   func(*http.Request) error { return errors.New("db down") },
	})
	rec = httptest.NewRecorder()
	failing.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

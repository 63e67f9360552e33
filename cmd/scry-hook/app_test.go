package main

import (
	"bytes"
	"context"
	"encoding/json"
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
	"github.com/phrazzld/scry-hook/internal/mocks"
	"github.com/phrazzld/scry-hook/internal/platform/sqlite"
	"github.com/phrazzld/scry-hook/internal/platform/sqlstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "thisisasecretkeythatis32charslong!!"

func testConfig() *config.Config {
	return &config.Config{
		Server:   config.ServerConfig{Port: 8080, LogLevel: "error", ShutdownTimeout: 5 * time.Second},
		Database: config.DatabaseConfig{Driver: "sqlite", URL: sqlite.MemoryDSN, MaxOpenConns: 1},
		Auth:     config.AuthConfig{JWTSecret: testSecret, TokenLifetimeMinutes: 60},
		LLM: config.LLMConfig{
			Provider:    "gemini",
			ModelName:   "stub",
			MaxAttempts: 1,
		},
		Pipeline: config.PipelineConfig{
			Prefetch:              true,
			AdmissionCap:          2,
			MaxQuestionSetRetries: 3,
			MaxFetchAttempts:      3,
			FreshnessWindow:       time.Hour,
			GenerationConcurrency: 2,
			FetchWaitInterval:     10 * time.Millisecond,
			FetchWaitTimeout:      time.Second,
			ErrorSummaryLength:    200,
		},
		Task: config.TaskConfig{
			WorkerCount:   2,
			QueueSize:     16,
			StuckClaimAge: time.Minute,
			SweepInterval: time.Minute,
			RunTimeout:    10 * time.Second,
		},
		Content: config.ContentConfig{
			BlobBackend:  "sql",
			FetchTimeout: time.Second,
			MaxBytes:     1 << 20,
			UserAgent:    "scry-hook-test",
		},
	}
}

// stubModel answers analysis prompts with an analysis and every other
// prompt with questions.
func stubModel() *mocks.MockModel {
	analysis, _ := json.Marshal(mocks.SampleAnalysis())
	payload, _ := json.Marshal(mocks.SamplePayload("hook"))
	return &mocks.MockModel{
		CompleteFn: func(_ context.Context, prompt string) (string, error) {
			if strings.Contains(prompt, "describe its structure") {
				return string(analysis), nil
			}
			return string(payload), nil
		},
	}
}

func newTestApplication(t *testing.T, model *mocks.MockModel) *application {
	t.Helper()
	ctx := context.Background()
	cfg := testConfig()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, dialect, err := openDatabase(ctx, cfg.Database)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlstore.Migrate(ctx, db, dialect, log))

	app, err := newApplication(ctx, cfg, log, db, dialect, overrides{model: model})
	require.NoError(t, err)
	t.Cleanup(app.cleanup)
	return app
}

func TestApplication_UploadToReadyQuiz(t *testing.T) {
	model := stubModel()
	app := newTestApplication(t, model)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, app.runner.Start(ctx))
	t.Cleanup(func() {
		cancel()
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = app.runner.Stop(stopCtx)
	})

	router := app.router()
	token, err := app.jwt.GenerateToken(context.Background(), uuid.New())
	require.NoError(t, err)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "tides.txt")
	require.NoError(t, err)
	_, err = part.Write([]byte("Tides are driven mainly by the moon's gravity pulling on the oceans."))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/uploads", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	var submitted struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &submitted))
	require.NotEmpty(t, submitted.Token)

	require.Eventually(t, func() bool {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/"+submitted.Token, nil))
		var status struct {
			Status string `json:"status"`
		}
		_ = json.Unmarshal(rec.Body.Bytes(), &status)
		return status.Status == "ready"
	}, 5*time.Second, 20*time.Millisecond)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/sessions/"+submitted.Token+"/question-sets/hook", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "What mainly drives ocean tides?")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "scry_session_settlements_total")

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNewApplication_UnsupportedBackends(t *testing.T) {
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	db, dialect, err := openDatabase(ctx, testConfig().Database)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := testConfig()
	cfg.Content.BlobBackend = "s3"
	_, err = newApplication(ctx, cfg, log, db, dialect, overrides{model: stubModel()})
	assert.ErrorContains(t, err, `unsupported blob backend "s3"`)

	cfg = testConfig()
	cfg.LLM.Provider = "mystery"
	_, err = newApplication(ctx, cfg, log, db, dialect, overrides{})
	assert.ErrorContains(t, err, `unsupported LLM provider "mystery"`)

	_, _, err = openDatabase(ctx, config.DatabaseConfig{Driver: "mysql"})
	assert.ErrorContains(t, err, `unsupported database driver "mysql"`)
}

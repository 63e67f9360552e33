package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	apimiddleware "github.com/phrazzld/scry-hook/internal/api/middleware"
	"github.com/phrazzld/scry-hook/internal/service/auth"
)

// RouterConfig holds what NewRouter wires together.
type RouterConfig struct {
	Sessions *SessionHandler
	JWT      auth.JWTService
	// Metrics serves /metrics when set.
	Metrics http.Handler
	// Health reports readiness. A nil Health always answers OK.
	Health func(r *http.Request) error
	Logger *slog.Logger
}

// NewRouter builds the HTTP router of the session API.
func NewRouter(cfg RouterConfig) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(apimiddleware.NewTraceMiddleware(log))

	authMiddleware := apimiddleware.NewAuthMiddleware(cfg.JWT)

	r.Route("/api", func(r chi.Router) {
		// the token is the capability for reads
		r.Get("/sessions/{token}", cfg.Sessions.GetSession)
		r.Get("/sessions/{token}/question-sets/{kind}", cfg.Sessions.GetQuestionSet)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			r.Post("/sessions", cfg.Sessions.SubmitSession)
			r.Post("/uploads", cfg.Sessions.SubmitUpload)
			r.Put("/sessions/{token}/progress", cfg.Sessions.UpdateProgress)
			r.Post("/sessions/{token}/archive", cfg.Sessions.ArchiveSession)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if cfg.Health != nil {
			if err := cfg.Health(r); err != nil {
				log.ErrorContext(r.Context(), "health check failed", slog.String("error", err.Error()))
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			log.Error("failed to write health check response", slog.String("error", err.Error()))
		}
	})
	if cfg.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.Metrics)
	}

	return r
}

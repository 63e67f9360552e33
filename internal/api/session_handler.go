package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/scry-hook/internal/api/shared"
	"github.com/phrazzld/scry-hook/internal/domain"
	"github.com/phrazzld/scry-hook/internal/platform/logger"
	"github.com/phrazzld/scry-hook/internal/service"
)

// uploadFormField is the multipart field carrying an uploaded document.
const uploadFormField = "file"

// SessionService is the application surface the handler drives.
// *service.SessionService implements it.
type SessionService interface {
	SubmitReference(ctx context.Context, userID uuid.UUID, reference string) (*service.Submission, error)
	SubmitUpload(ctx context.Context, userID uuid.UUID, name, contentType string, data []byte) (*service.Submission, error)
	GetSessionStatus(ctx context.Context, token string) (*service.SessionView, error)
	GetQuestionSet(ctx context.Context, token string, kind domain.QuestionSetKind) (*service.QuestionSetView, error)
	RecordProgress(ctx context.Context, userID uuid.UUID, token string) (*domain.Session, error)
	ArchiveSession(ctx context.Context, userID uuid.UUID, token string) (*domain.Session, error)
}

// SessionHandler handles session HTTP requests.
type SessionHandler struct {
	sessions       SessionService
	maxUploadBytes int64
	logger         *slog.Logger
}

// NewSessionHandler creates a SessionHandler. maxUploadBytes bounds the
// multipart body of an upload.
func NewSessionHandler(sessions SessionService, maxUploadBytes int64, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionHandler{
		sessions:       sessions,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.With(slog.String("component", "session_handler")),
	}
}

// SubmitSession handles POST /api/sessions.
func (h *SessionHandler) SubmitSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req SubmitSessionRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, shared.ValidationMessage(err), err)
		return
	}

	sub, err := h.sessions.SubmitReference(r.Context(), userID, req.Reference)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to submit reference")
		return
	}
	respondWithSubmission(w, r, sub)
}

// SubmitUpload handles POST /api/uploads with a multipart "file" field.
func (h *SessionHandler) SubmitUpload(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	if h.maxUploadBytes > 0 {
		// headroom for the multipart envelope
		r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+64<<10)
	}
	file, header, err := r.FormFile(uploadFormField)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			HandleAPIError(w, r, service.ErrUploadTooLarge, "")
			return
		}
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "A file field is required", err)
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Failed to read upload", err)
		return
	}

	sub, err := h.sessions.SubmitUpload(r.Context(), userID, header.Filename, header.Header.Get("Content-Type"), data)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to submit upload")
		return
	}
	respondWithSubmission(w, r, sub)
}

// GetSession handles GET /api/sessions/{token}.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.sessions.GetSessionStatus(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get session")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, sessionViewToResponse(view))
}

// GetQuestionSet handles GET /api/sessions/{token}/question-sets/{kind}. It
// answers 200 with questions, 202 while generation is pending and 422 when
// the set failed for good.
func (h *SessionHandler) GetQuestionSet(w http.ResponseWriter, r *http.Request) {
	kind := domain.QuestionSetKind(chi.URLParam(r, "kind"))
	view, err := h.sessions.GetQuestionSet(r.Context(), chi.URLParam(r, "token"), kind)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to get question set")
		return
	}

	status := http.StatusOK
	switch {
	case view.Pending():
		status = http.StatusAccepted
	case view.Payload == nil:
		status = http.StatusUnprocessableEntity
	}
	shared.RespondWithJSON(w, r, status, questionSetViewToResponse(view))
}

// UpdateProgress handles PUT /api/sessions/{token}/progress.
func (h *SessionHandler) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req ProgressRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, shared.ValidationMessage(err), err)
		return
	}

	token := chi.URLParam(r, "token")
	var err error
	if domain.StudyProgress(req.Progress) == domain.StudyProgressCompleted {
		_, err = h.sessions.ArchiveSession(r.Context(), userID, token)
	} else {
		_, err = h.sessions.RecordProgress(r.Context(), userID, token)
	}
	if err != nil {
		HandleAPIError(w, r, err, "Failed to record progress")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ArchiveSession handles POST /api/sessions/{token}/archive.
func (h *SessionHandler) ArchiveSession(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}
	if _, err := h.sessions.ArchiveSession(r.Context(), userID, chi.URLParam(r, "token")); err != nil {
		HandleAPIError(w, r, err, "Failed to archive session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *SessionHandler) requireUser(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		logger.FromContextOrDefault(r.Context(), h.logger).
			WarnContext(r.Context(), "user ID not found or invalid in request context")
		shared.RespondWithError(w, r, http.StatusUnauthorized, "User ID not found or invalid")
		return uuid.Nil, false
	}
	return userID, true
}

// respondWithSubmission answers 202 for a new session and 200 when an
// existing one was returned.
func respondWithSubmission(w http.ResponseWriter, r *http.Request, sub *service.Submission) {
	status := http.StatusAccepted
	if !sub.Created {
		status = http.StatusOK
	}
	shared.RespondWithJSON(w, r, status, submissionToResponse(sub))
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-hook/internal/domain"
	"github.com/phrazzld/scry-hook/internal/events"
	"github.com/phrazzld/scry-hook/internal/platform/logger"
	"github.com/phrazzld/scry-hook/internal/redact"
	"github.com/phrazzld/scry-hook/internal/store"
)

// Admission promotes queued sessions and archives them. *admission.Queue
// implements it.
type Admission interface {
	Fill(ctx context.Context, userID uuid.UUID) ([]*domain.Session, error)
	Archive(ctx context.Context, sessionID uuid.UUID) (*domain.Session, error)
}

// Reconciler settles a session whose hook set finished under another
// session. *pipeline.Coordinator implements it.
type Reconciler interface {
	Reconcile(ctx context.Context, sess *domain.Session) (*domain.Session, error)
}

// Stores are the persistence dependencies of SessionService.
type Stores struct {
	ContentItems store.ContentItemStore
	Containers   store.QuizContainerStore
	QuestionSets store.QuestionSetStore
	Sessions     store.SessionStore
	Blobs        store.BlobStore
}

// Config tunes SessionService.
type Config struct {
	// Prefetch requests a content fetch on submission, before admission.
	Prefetch bool
	// FreshnessWindow decides whether a stored document needs a refetch.
	FreshnessWindow time.Duration
	// MaxUploadBytes bounds uploaded documents. Zero means unbounded.
	MaxUploadBytes int64
	// ErrorSummaryLength bounds error text returned to callers.
	ErrorSummaryLength int
}

// Submission is the outcome of SubmitReference.
type Submission struct {
	Session *domain.Session
	// Created is false when an unarchived session for the same reference
	// already existed and was returned instead.
	Created bool
}

// SessionView is what a status poll returns.
type SessionView struct {
	Session           *domain.Session
	ContentItemStatus domain.ContentItemStatus
	Title             string
	QuestionSetStatus domain.QuestionSetStatus
	ErrorSummary      string
}

// QuestionSetView is what a question set poll returns. Exactly one of
// Payload and ErrorSummary is set once the set has settled.
type QuestionSetView struct {
	Kind         domain.QuestionSetKind
	Status       domain.QuestionSetStatus
	Payload      *domain.QuestionPayload
	ErrorSummary string
}

// Pending reports whether the caller should poll again.
func (v *QuestionSetView) Pending() bool {
	return v.Payload == nil && v.ErrorSummary == ""
}

// SessionService implements the caller-facing session operations.
type SessionService struct {
	stores     Stores
	admission  Admission
	reconciler Reconciler
	emitter    events.EventEmitter
	cfg        Config
	logger     *slog.Logger
}

// NewSessionService creates a SessionService.
// It returns an error if any of the required dependencies are nil.
func NewSessionService(
	stores Stores,
	admission Admission,
	reconciler Reconciler,
	emitter events.EventEmitter,
	cfg Config,
	logger *slog.Logger,
) (*SessionService, error) {
	switch {
	case stores.ContentItems == nil, stores.Containers == nil, stores.QuestionSets == nil,
		stores.Sessions == nil, stores.Blobs == nil:
		return nil, &SessionServiceError{Operation: "create_service", Message: "all stores are required"}
	case admission == nil:
		return nil, &SessionServiceError{Operation: "create_service", Message: "admission cannot be nil"}
	case reconciler == nil:
		return nil, &SessionServiceError{Operation: "create_service", Message: "reconciler cannot be nil"}
	}
	if emitter == nil {
		emitter = events.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ErrorSummaryLength <= 0 {
		cfg.ErrorSummaryLength = redact.DefaultSummaryLength
	}
	if cfg.FreshnessWindow <= 0 {
		cfg.FreshnessWindow = domain.DefaultFreshnessWindow
	}

	return &SessionService{
		stores:     stores,
		admission:  admission,
		reconciler: reconciler,
		emitter:    emitter,
		cfg:        cfg,
		logger:     logger.With("component", "session_service"),
	}, nil
}

// SubmitReference opens a session for reference on behalf of userID. A
// repeated submission of the same normalized reference returns the user's
// existing unarchived session. The session is admitted right away when the
// user has a free slot and stays queued otherwise.
func (s *SessionService) SubmitReference(ctx context.Context, userID uuid.UUID, reference string) (*Submission, error) {
	const op = "submit_reference"

	normalized, err := domain.NormalizeReference(reference)
	if err != nil {
		return nil, NewSessionServiceError(op, "invalid reference", err)
	}
	if digest, ok := domain.UploadDigest(normalized); ok {
		if _, err := s.stores.Blobs.GetBlob(ctx, store.UploadBlobKey(digest)); err != nil {
			if errors.Is(err, store.ErrBlobNotFound) {
				return nil, ErrUnknownUpload
			}
			return nil, NewSessionServiceError(op, "failed to look up upload", err)
		}
	}
	return s.submit(ctx, userID, reference, normalized)
}

// SubmitUpload stores an uploaded document under its content-addressed
// reference and submits that reference. name is kept as the session's
// display reference when set.
func (s *SessionService) SubmitUpload(
	ctx context.Context,
	userID uuid.UUID,
	name string,
	contentType string,
	data []byte,
) (*Submission, error) {
	const op = "submit_upload"

	if len(data) == 0 {
		return nil, ErrEmptyUpload
	}
	if s.cfg.MaxUploadBytes > 0 && int64(len(data)) > s.cfg.MaxUploadBytes {
		return nil, ErrUploadTooLarge
	}
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	ref := domain.UploadReference(data)
	digest, _ := domain.UploadDigest(ref)
	if _, err := s.stores.Blobs.PutBlob(ctx, store.UploadBlobKey(digest), store.Blob{
		Data:        data,
		ContentType: contentType,
	}); err != nil {
		return nil, NewSessionServiceError(op, "failed to store upload", err)
	}

	display := ref
	if name != "" {
		display = name
	}
	return s.submit(ctx, userID, display, ref)
}

func (s *SessionService) submit(ctx context.Context, userID uuid.UUID, reference, normalized string) (*Submission, error) {
	const op = "submit_reference"
	log := logger.FromContextOrDefault(ctx, s.logger)

	sess, err := domain.NewSession(userID, reference, normalized)
	if err != nil {
		return nil, NewSessionServiceError(op, "failed to create session object", err)
	}
	sess, created, err := s.stores.Sessions.CreateSession(ctx, sess)
	if err != nil {
		return nil, NewSessionServiceError(op, "failed to save session", err)
	}
	if !created {
		log.DebugContext(ctx, "returning existing session",
			slog.String("session_id", sess.ID.String()),
			slog.String("user_id", userID.String()))
		sess, err = s.reconcile(ctx, sess)
		if err != nil {
			return nil, NewSessionServiceError(op, "failed to reconcile session", err)
		}
		return &Submission{Session: sess}, nil
	}

	candidate, err := domain.NewContentItem(normalized, reference)
	if err != nil {
		return nil, NewSessionServiceError(op, "failed to create content item object", err)
	}
	item, _, err := s.stores.ContentItems.EnsureContentItem(ctx, candidate)
	if err != nil {
		return nil, NewSessionServiceError(op, "failed to ensure content item", err)
	}
	container, err := s.stores.Containers.EnsureQuizContainer(ctx, item.ID)
	if err != nil {
		return nil, NewSessionServiceError(op, "failed to ensure quiz container", err)
	}
	if err := s.stores.Sessions.AttachContainer(ctx, sess.ID, container.ID); err != nil {
		return nil, NewSessionServiceError(op, "failed to attach container", err)
	}
	sess.ContainerID = &container.ID

	// a finished hook set settles the session without using a slot
	if sess, err = s.reconciler.Reconcile(ctx, sess); err != nil {
		return nil, NewSessionServiceError(op, "failed to reconcile session", err)
	}
	if _, err := s.admission.Fill(ctx, userID); err != nil {
		return nil, NewSessionServiceError(op, "failed to admit session", err)
	}
	if sess, err = s.stores.Sessions.GetSession(ctx, sess.ID); err != nil {
		return nil, NewSessionServiceError(op, "failed to reload session", err)
	}

	if s.cfg.Prefetch && item.NeedsFetch(time.Now(), s.cfg.FreshnessWindow) {
		s.emit(ctx, events.TypeContentRequested, events.ContentPayload{ContentItemID: item.ID})
	}

	log.InfoContext(ctx, "session submitted",
		slog.String("session_id", sess.ID.String()),
		slog.String("user_id", userID.String()),
		slog.String("content_item_id", item.ID.String()),
		slog.String("status", string(sess.Status)))
	return &Submission{Session: sess, Created: true}, nil
}

// GetSessionStatus returns the session behind token with the status of its
// content item and hook question set.
func (s *SessionService) GetSessionStatus(ctx context.Context, token string) (*SessionView, error) {
	const op = "get_session_status"

	sess, err := s.byToken(ctx, token)
	if err != nil {
		return nil, NewSessionServiceError(op, "failed to load session", err)
	}
	if sess, err = s.reconcile(ctx, sess); err != nil {
		return nil, NewSessionServiceError(op, "failed to reconcile session", err)
	}

	view := &SessionView{Session: sess}
	item, err := s.contentItem(ctx, sess)
	if err != nil {
		return nil, NewSessionServiceError(op, "failed to load content item", err)
	}
	if item != nil {
		view.ContentItemStatus = item.EffectiveStatus(time.Now(), s.cfg.FreshnessWindow)
		view.Title = item.Metadata.Title
	}

	var hook *domain.QuestionSet
	if sess.ContainerID != nil {
		hook, err = s.stores.QuestionSets.FindQuestionSet(ctx, *sess.ContainerID, domain.QuestionSetKindHook)
		if err != nil && !errors.Is(err, store.ErrQuestionSetNotFound) {
			return nil, NewSessionServiceError(op, "failed to load question set", err)
		}
		if hook != nil {
			view.QuestionSetStatus = hook.Status
		}
	}

	switch {
	case sess.LastError != "":
		view.ErrorSummary = s.summary(sess.LastError)
	case hook != nil && hook.Status.IsTerminal():
		view.ErrorSummary = s.summary(hook.LastError)
	}
	return view, nil
}

// GetQuestionSet returns the question set of kind for the session behind
// token. A scaffold set is created and its generation requested on first
// access once the session is admitted; until then it reads as pending and
// the next poll after admission requests it.
func (s *SessionService) GetQuestionSet(ctx context.Context, token string, kind domain.QuestionSetKind) (*QuestionSetView, error) {
	const op = "get_question_set"

	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidQuestionSetKind, kind)
	}
	sess, err := s.byToken(ctx, token)
	if err != nil {
		return nil, NewSessionServiceError(op, "failed to load session", err)
	}
	if sess, err = s.reconcile(ctx, sess); err != nil {
		return nil, NewSessionServiceError(op, "failed to reconcile session", err)
	}

	view := &QuestionSetView{Kind: kind}
	if sess.ContainerID == nil {
		return view, nil
	}

	var qs *domain.QuestionSet
	if kind == domain.QuestionSetKindHook {
		qs, err = s.stores.QuestionSets.FindQuestionSet(ctx, *sess.ContainerID, kind)
		if errors.Is(err, store.ErrQuestionSetNotFound) {
			if sess.Status.IsTerminal() {
				view.ErrorSummary = s.summary(sess.LastError)
			}
			return view, nil
		}
	} else if !sess.Admitted() {
		// a queued session may read a set another session finished but never
		// starts generation itself
		qs, err = s.stores.QuestionSets.FindQuestionSet(ctx, *sess.ContainerID, kind)
		if errors.Is(err, store.ErrQuestionSetNotFound) {
			view.Status = domain.QuestionSetStatusQueued
			return view, nil
		}
	} else {
		qs, err = s.stores.QuestionSets.EnsureQuestionSet(ctx, *sess.ContainerID, kind)
	}
	if err != nil {
		return nil, NewSessionServiceError(op, "failed to load question set", err)
	}
	view.Status = qs.Status

	switch {
	case qs.Status == domain.QuestionSetStatusReady:
		var payload domain.QuestionPayload
		if err := json.Unmarshal(qs.Payload, &payload); err != nil {
			return nil, NewSessionServiceError(op, "failed to decode question payload", err)
		}
		view.Payload = &payload
	case qs.Status.IsTerminal():
		msg := qs.LastError
		if msg == "" {
			msg = "question set " + string(qs.Status)
		}
		view.ErrorSummary = s.summary(msg)
	case kind != domain.QuestionSetKindHook && sess.Admitted() && !qs.Status.IsInProgress():
		s.emit(ctx, events.TypeQuestionSetRequested, events.QuestionSetPayload{SessionID: sess.ID, Kind: kind})
	}
	return view, nil
}

// RecordProgress marks the session as being studied. Completed and archived
// sessions are left as they are.
func (s *SessionService) RecordProgress(ctx context.Context, userID uuid.UUID, token string) (*domain.Session, error) {
	const op = "record_progress"

	sess, err := s.owned(ctx, userID, token)
	if err != nil {
		return nil, NewSessionServiceError(op, "failed to load session", err)
	}
	if sess.IsArchived() || sess.StudyProgress != domain.StudyProgressNotStarted {
		return sess, nil
	}
	sess, err = s.stores.Sessions.UpdateStudyProgress(ctx, sess.ID, domain.StudyProgressInProgress)
	if err != nil {
		return nil, NewSessionServiceError(op, "failed to update study progress", err)
	}
	return sess, nil
}

// ArchiveSession completes study of the session, frees its admission slot and
// lets the user's next queued session in. Archiving twice is a no-op.
func (s *SessionService) ArchiveSession(ctx context.Context, userID uuid.UUID, token string) (*domain.Session, error) {
	const op = "archive_session"

	sess, err := s.owned(ctx, userID, token)
	if err != nil {
		return nil, NewSessionServiceError(op, "failed to load session", err)
	}
	if sess.IsArchived() {
		return sess, nil
	}
	archived, err := s.admission.Archive(ctx, sess.ID)
	if err != nil {
		return nil, NewSessionServiceError(op, "failed to archive session", err)
	}
	logger.FromContextOrDefault(ctx, s.logger).InfoContext(ctx, "session archived",
		slog.String("session_id", archived.ID.String()),
		slog.String("status", string(archived.Status)))
	return archived, nil
}

func (s *SessionService) byToken(ctx context.Context, token string) (*domain.Session, error) {
	if token == "" {
		return nil, ErrSessionNotFound
	}
	return s.stores.Sessions.GetSessionByToken(ctx, token)
}

func (s *SessionService) owned(ctx context.Context, userID uuid.UUID, token string) (*domain.Session, error) {
	sess, err := s.byToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if sess.UserID != userID {
		return nil, ErrNotOwned
	}
	return sess, nil
}

func (s *SessionService) reconcile(ctx context.Context, sess *domain.Session) (*domain.Session, error) {
	if sess.IsArchived() || sess.Status.IsSettled() {
		return sess, nil
	}
	return s.reconciler.Reconcile(ctx, sess)
}

func (s *SessionService) contentItem(ctx context.Context, sess *domain.Session) (*domain.ContentItem, error) {
	if sess.ContainerID != nil {
		container, err := s.stores.Containers.GetQuizContainer(ctx, *sess.ContainerID)
		if err != nil {
			return nil, err
		}
		return s.stores.ContentItems.GetContentItem(ctx, container.ContentItemID)
	}
	item, err := s.stores.ContentItems.GetContentItemByReference(ctx, sess.NormalizedReference)
	if errors.Is(err, store.ErrContentItemNotFound) {
		return nil, nil
	}
	return item, err
}

func (s *SessionService) summary(msg string) string {
	return redact.Truncate(redact.String(msg), s.cfg.ErrorSummaryLength)
}

// emit requests background work. A lost request is picked up again by the
// next poll or sweep, so failures are only logged.
func (s *SessionService) emit(ctx context.Context, eventType string, payload any) {
	log := logger.FromContextOrDefault(ctx, s.logger)
	event, err := events.New(eventType, payload)
	if err != nil {
		log.ErrorContext(ctx, "failed to build event", slog.String("event_type", eventType), slog.String("error", err.Error()))
		return
	}
	if err := s.emitter.EmitEvent(ctx, event); err != nil {
		log.WarnContext(ctx, "failed to emit event", slog.String("event_type", eventType), slog.String("error", err.Error()))
	}
}

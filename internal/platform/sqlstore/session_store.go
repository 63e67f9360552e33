package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-hook/internal/domain"
	"github.com/phrazzld/scry-hook/internal/store"
)

const sessionColumns = `id, token, user_id, reference, normalized_reference, container_id, status,
	study_progress, holds_slot, last_error, archived_at, created_at, updated_at`

// SessionStore implements store.SessionStore.
type SessionStore struct {
	conn
}

// NewSessionStore creates a SessionStore over db.
func NewSessionStore(db store.DBTX, dialect Dialect, logger *slog.Logger) *SessionStore {
	return &SessionStore{conn: newConn(db, dialect, logger, "session_store")}
}

var _ store.SessionStore = (*SessionStore)(nil)

func scanSession(row rowScanner) (*domain.Session, error) {
	var (
		sess                             domain.Session
		status, progress                 string
		containerID                      uuid.NullUUID
		lastError                        sql.NullString
		archivedAt, createdAt, updatedAt dbTime
	)
	err := row.Scan(
		&sess.ID,
		&sess.Token,
		&sess.UserID,
		&sess.Reference,
		&sess.NormalizedReference,
		&containerID,
		&status,
		&progress,
		&sess.HoldsSlot,
		&lastError,
		&archivedAt,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if containerID.Valid {
		id := containerID.UUID
		sess.ContainerID = &id
	}
	sess.Status = domain.SessionStatus(status)
	sess.StudyProgress = domain.StudyProgress(progress)
	sess.LastError = lastError.String
	sess.ArchivedAt = archivedAt.Ptr()
	sess.CreatedAt = createdAt.Time
	sess.UpdatedAt = updatedAt.Time
	return &sess, nil
}

func (s *SessionStore) one(ctx context.Context, query string, args ...any) (*domain.Session, error) {
	sess, err := scanSession(s.queryRow(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrSessionNotFound
	}
	if err != nil {
		return nil, s.dialect.MapError(err)
	}
	return sess, nil
}

func (s *SessionStore) many(ctx context.Context, query string, args ...any) ([]*domain.Session, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var sessions []*domain.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, s.dialect.MapError(err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, s.dialect.MapError(err)
	}
	return sessions, nil
}

// CreateSession implements store.SessionStore.
func (s *SessionStore) CreateSession(ctx context.Context, sess *domain.Session) (*domain.Session, bool, error) {
	if err := sess.Validate(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	ts := now()
	inserted, err := s.one(ctx, `
		INSERT INTO sessions (id, token, user_id, reference, normalized_reference, status,
			study_progress, holds_slot, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8, $8)
		ON CONFLICT (user_id, normalized_reference) WHERE archived_at IS NULL DO NOTHING
		RETURNING `+sessionColumns,
		sess.ID, sess.Token, sess.UserID, sess.Reference, sess.NormalizedReference,
		string(sess.Status), string(sess.StudyProgress), ts)
	if err == nil {
		s.logger.DebugContext(ctx, "session created",
			slog.String("session_id", inserted.ID.String()),
			slog.String("user_id", inserted.UserID.String()))
		return inserted, true, nil
	}
	if !errors.Is(err, store.ErrSessionNotFound) {
		return nil, false, err
	}

	existing, err := s.one(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 AND normalized_reference = $2 AND archived_at IS NULL`,
		sess.UserID, sess.NormalizedReference)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetSession implements store.SessionStore.
func (s *SessionStore) GetSession(ctx context.Context, id uuid.UUID) (*domain.Session, error) {
	return s.one(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, id)
}

// GetSessionByToken implements store.SessionStore.
func (s *SessionStore) GetSessionByToken(ctx context.Context, token string) (*domain.Session, error) {
	return s.one(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE token = $1`, token)
}

// AttachContainer implements store.SessionStore. Attaching is idempotent;
// a session keeps the first container it was given.
func (s *SessionStore) AttachContainer(ctx context.Context, id, containerID uuid.UUID) error {
	n, err := s.exec(ctx, `
		UPDATE sessions SET container_id = $1, updated_at = $2
		WHERE id = $3 AND container_id IS NULL`,
		containerID, now(), id)
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetSession(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// TransitionSession implements store.SessionStore.
func (s *SessionStore) TransitionSession(
	ctx context.Context,
	id uuid.UUID,
	from []domain.SessionStatus,
	to domain.SessionStatus,
	lastError string,
) (store.ClaimResult[domain.Session], error) {
	if len(from) == 0 {
		return store.ClaimResult[domain.Session]{}, fmt.Errorf("%w: no source statuses", domain.ErrInvalidTransition)
	}
	for _, f := range from {
		if !domain.SessionTransitions.Allows(f, to) {
			return store.ClaimResult[domain.Session]{}, fmt.Errorf("%w: session %s -> %s", domain.ErrInvalidTransition, f, to)
		}
	}

	args := []any{string(to), nullString(lastError), now(), id}
	for _, f := range from {
		args = append(args, string(f))
	}
	sess, err := s.one(ctx, `
		UPDATE sessions
		SET status = $1, last_error = $2, updated_at = $3
		WHERE id = $4 AND status IN (`+placeholders(5, len(from))+`)
		RETURNING `+sessionColumns, args...)
	if err == nil {
		return store.Claimed(sess), nil
	}
	if !errors.Is(err, store.ErrSessionNotFound) {
		return store.ClaimResult[domain.Session]{}, err
	}

	current, err := s.GetSession(ctx, id)
	if err != nil {
		return store.ClaimResult[domain.Session]{}, err
	}
	return store.Lost(current), nil
}

// SetHoldsSlot implements store.SessionStore.
func (s *SessionStore) SetHoldsSlot(ctx context.Context, id uuid.UUID, holds bool) (bool, error) {
	n, err := s.exec(ctx, `
		UPDATE sessions SET holds_slot = $1, updated_at = $2
		WHERE id = $3 AND holds_slot = $4`,
		holds, now(), id, !holds)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// OldestQueued implements store.SessionStore.
func (s *SessionStore) OldestQueued(ctx context.Context, userID uuid.UUID) (*domain.Session, error) {
	return s.one(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE user_id = $1 AND status = $2 AND archived_at IS NULL
		ORDER BY created_at, id
		LIMIT 1`,
		userID, string(domain.SessionStatusQueued))
}

// ListByContainer implements store.SessionStore.
func (s *SessionStore) ListByContainer(
	ctx context.Context,
	containerID uuid.UUID,
	statuses []domain.SessionStatus,
) ([]*domain.Session, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := []any{containerID}
	for _, st := range statuses {
		args = append(args, string(st))
	}
	return s.many(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE container_id = $1 AND archived_at IS NULL AND status IN (`+placeholders(2, len(statuses))+`)
		ORDER BY created_at, id`, args...)
}

// ListByStatus implements store.SessionStore.
func (s *SessionStore) ListByStatus(
	ctx context.Context,
	statuses []domain.SessionStatus,
	limit int,
) ([]*domain.Session, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := []any{limit}
	for _, st := range statuses {
		args = append(args, string(st))
	}
	return s.many(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE archived_at IS NULL AND status IN (`+placeholders(2, len(statuses))+`)
		ORDER BY created_at, id
		LIMIT $1`, args...)
}

// ListIdle implements store.SessionStore.
func (s *SessionStore) ListIdle(
	ctx context.Context,
	statuses []domain.SessionStatus,
	before time.Time,
	limit int,
) ([]*domain.Session, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := []any{limit, before.UTC()}
	for _, st := range statuses {
		args = append(args, string(st))
	}
	return s.many(ctx, `
		SELECT `+sessionColumns+` FROM sessions
		WHERE archived_at IS NULL AND updated_at < $2
		  AND status IN (`+placeholders(3, len(statuses))+`)
		ORDER BY created_at, id
		LIMIT $1`, args...)
}

// CountByStatus implements store.SessionStore.
func (s *SessionStore) CountByStatus(
	ctx context.Context,
	userID uuid.UUID,
	statuses []domain.SessionStatus,
) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	args := []any{userID}
	for _, st := range statuses {
		args = append(args, string(st))
	}
	var count int
	err := s.queryRow(ctx, `
		SELECT COUNT(*) FROM sessions
		WHERE user_id = $1 AND archived_at IS NULL AND status IN (`+placeholders(2, len(statuses))+`)`,
		args...).Scan(&count)
	if err != nil {
		return 0, s.dialect.MapError(err)
	}
	return count, nil
}

// ArchiveSession implements store.SessionStore.
func (s *SessionStore) ArchiveSession(ctx context.Context, id uuid.UUID, at time.Time) (*domain.Session, error) {
	sess, err := s.one(ctx, `
		UPDATE sessions
		SET archived_at = $1, study_progress = $2, updated_at = $3
		WHERE id = $4 AND archived_at IS NULL
		RETURNING `+sessionColumns,
		at.UTC().Truncate(time.Microsecond), string(domain.StudyProgressCompleted), now(), id)
	if errors.Is(err, store.ErrSessionNotFound) {
		return s.GetSession(ctx, id)
	}
	return sess, err
}

// UpdateStudyProgress implements store.SessionStore.
func (s *SessionStore) UpdateStudyProgress(
	ctx context.Context,
	id uuid.UUID,
	progress domain.StudyProgress,
) (*domain.Session, error) {
	if !progress.IsValid() {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, domain.ErrInvalidStudyProgress)
	}
	return s.one(ctx, `
		UPDATE sessions SET study_progress = $1, updated_at = $2
		WHERE id = $3
		RETURNING `+sessionColumns,
		string(progress), now(), id)
}

// WithTx implements store.SessionStore.
func (s *SessionStore) WithTx(tx *sql.Tx) store.SessionStore {
	return &SessionStore{conn: s.withDB(tx)}
}

package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-hook/internal/domain"
	"github.com/phrazzld/scry-hook/internal/store"
)

const questionSetColumns = `id, container_id, kind, status, payload, derivation, retry_count,
	last_error, claim_id, created_at, updated_at`

// QuestionSetStore implements store.QuestionSetStore.
type QuestionSetStore struct {
	conn
}

// NewQuestionSetStore creates a QuestionSetStore over db.
func NewQuestionSetStore(db store.DBTX, dialect Dialect, logger *slog.Logger) *QuestionSetStore {
	return &QuestionSetStore{conn: newConn(db, dialect, logger, "question_set_store")}
}

var _ store.QuestionSetStore = (*QuestionSetStore)(nil)

func scanQuestionSet(row rowScanner) (*domain.QuestionSet, error) {
	var (
		qs                   domain.QuestionSet
		kind, status         string
		payload, derivation  []byte
		lastError            sql.NullString
		claimID              uuid.NullUUID
		createdAt, updatedAt dbTime
	)
	err := row.Scan(
		&qs.ID,
		&qs.ContainerID,
		&kind,
		&status,
		&payload,
		&derivation,
		&qs.RetryCount,
		&lastError,
		&claimID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	qs.Kind = domain.QuestionSetKind(kind)
	qs.Status = domain.QuestionSetStatus(status)
	if len(payload) > 0 {
		qs.Payload = json.RawMessage(payload)
	}
	if len(derivation) > 0 {
		qs.Derivation = json.RawMessage(derivation)
	}
	qs.LastError = lastError.String
	if claimID.Valid {
		qs.ClaimID = claimID.UUID
	}
	qs.CreatedAt = createdAt.Time
	qs.UpdatedAt = updatedAt.Time
	return &qs, nil
}

func (s *QuestionSetStore) one(ctx context.Context, query string, args ...any) (*domain.QuestionSet, error) {
	qs, err := scanQuestionSet(s.queryRow(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrQuestionSetNotFound
	}
	if err != nil {
		return nil, s.dialect.MapError(err)
	}
	return qs, nil
}

// EnsureQuestionSet implements store.QuestionSetStore.
func (s *QuestionSetStore) EnsureQuestionSet(
	ctx context.Context,
	containerID uuid.UUID,
	kind domain.QuestionSetKind,
) (*domain.QuestionSet, error) {
	qs, err := domain.NewQuestionSet(containerID, kind)
	if err != nil {
		return nil, err
	}

	ts := now()
	inserted, err := s.one(ctx, `
		INSERT INTO question_sets (id, container_id, kind, status, retry_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 0, $5, $5)
		ON CONFLICT (container_id, kind) DO NOTHING
		RETURNING `+questionSetColumns,
		qs.ID, containerID, string(kind), string(domain.QuestionSetStatusQueued), ts)
	if err == nil {
		s.logger.DebugContext(ctx, "question set created",
			slog.String("question_set_id", inserted.ID.String()),
			slog.String("kind", string(kind)))
		return inserted, nil
	}
	if !errors.Is(err, store.ErrQuestionSetNotFound) {
		return nil, err
	}
	return s.FindQuestionSet(ctx, containerID, kind)
}

// GetQuestionSet implements store.QuestionSetStore.
func (s *QuestionSetStore) GetQuestionSet(ctx context.Context, id uuid.UUID) (*domain.QuestionSet, error) {
	return s.one(ctx, `SELECT `+questionSetColumns+` FROM question_sets WHERE id = $1`, id)
}

// FindQuestionSet implements store.QuestionSetStore.
func (s *QuestionSetStore) FindQuestionSet(
	ctx context.Context,
	containerID uuid.UUID,
	kind domain.QuestionSetKind,
) (*domain.QuestionSet, error) {
	return s.one(ctx, `SELECT `+questionSetColumns+` FROM question_sets WHERE container_id = $1 AND kind = $2`,
		containerID, string(kind))
}

// ClaimQuestionSet implements store.QuestionSetStore. The eligible statuses
// come from the transition table; failed sets also need retries left.
func (s *QuestionSetStore) ClaimQuestionSet(
	ctx context.Context,
	id uuid.UUID,
	maxRetries int,
) (store.ClaimResult[domain.QuestionSet], error) {
	sources := domain.QuestionSetTransitions.Sources(domain.QuestionSetStatusGenerating, domain.QuestionSetStatuses)
	args := []any{
		string(domain.QuestionSetStatusGenerating), uuid.New(), now(), id,
		string(domain.QuestionSetStatusFailed), maxRetries,
	}
	for _, src := range sources {
		args = append(args, string(src))
	}

	claimed, err := s.one(ctx, `
		UPDATE question_sets
		SET status = $1, claim_id = $2, updated_at = $3
		WHERE id = $4
		  AND (status <> $5 OR retry_count < $6)
		  AND status IN (`+placeholders(7, len(sources))+`)
		RETURNING `+questionSetColumns, args...)
	if err == nil {
		return store.Claimed(claimed), nil
	}
	if !errors.Is(err, store.ErrQuestionSetNotFound) {
		return store.ClaimResult[domain.QuestionSet]{}, err
	}

	current, err := s.GetQuestionSet(ctx, id)
	if err != nil {
		return store.ClaimResult[domain.QuestionSet]{}, err
	}
	return store.Lost(current), nil
}

// SaveDerivation implements store.QuestionSetStore.
func (s *QuestionSetStore) SaveDerivation(ctx context.Context, id, claimID uuid.UUID, derivation json.RawMessage) error {
	n, err := s.exec(ctx, `
		UPDATE question_sets
		SET derivation = $1, updated_at = $2
		WHERE id = $3 AND status = $4 AND claim_id = $5`,
		nullJSON(derivation), now(), id, string(domain.QuestionSetStatusGenerating), claimID)
	if err != nil {
		return err
	}
	if n == 0 {
		return s.notClaimed(ctx, id)
	}
	return nil
}

// CompleteQuestionSet implements store.QuestionSetStore.
func (s *QuestionSetStore) CompleteQuestionSet(
	ctx context.Context,
	id, claimID uuid.UUID,
	payload json.RawMessage,
) (*domain.QuestionSet, error) {
	qs, err := s.one(ctx, `
		UPDATE question_sets
		SET status = $1, payload = $2, last_error = NULL, claim_id = NULL, updated_at = $3
		WHERE id = $4 AND status = $5 AND claim_id = $6
		RETURNING `+questionSetColumns,
		string(domain.QuestionSetStatusReady), nullJSON(payload), now(), id,
		string(domain.QuestionSetStatusGenerating), claimID)
	if errors.Is(err, store.ErrQuestionSetNotFound) {
		return nil, s.notClaimed(ctx, id)
	}
	return qs, err
}

// FailQuestionSet implements store.QuestionSetStore.
func (s *QuestionSetStore) FailQuestionSet(
	ctx context.Context,
	id, claimID uuid.UUID,
	errMsg string,
	maxRetries int,
) (*domain.QuestionSet, error) {
	qs, err := s.one(ctx, `
		UPDATE question_sets
		SET status = CASE WHEN retry_count + 1 >= $1 THEN $2 ELSE $3 END,
			retry_count = retry_count + 1, last_error = $4, claim_id = NULL, updated_at = $5
		WHERE id = $6 AND status = $7 AND claim_id = $8
		RETURNING `+questionSetColumns,
		maxRetries, string(domain.QuestionSetStatusRetriesExhausted), string(domain.QuestionSetStatusFailed),
		nullString(errMsg), now(), id, string(domain.QuestionSetStatusGenerating), claimID)
	if errors.Is(err, store.ErrQuestionSetNotFound) {
		return nil, s.notClaimed(ctx, id)
	}
	return qs, err
}

// ExhaustQuestionSet implements store.QuestionSetStore.
func (s *QuestionSetStore) ExhaustQuestionSet(ctx context.Context, id, claimID uuid.UUID, errMsg string) (*domain.QuestionSet, error) {
	qs, err := s.one(ctx, `
		UPDATE question_sets
		SET status = $1, retry_count = retry_count + 1, last_error = $2, claim_id = NULL, updated_at = $3
		WHERE id = $4 AND status = $5 AND claim_id = $6
		RETURNING `+questionSetColumns,
		string(domain.QuestionSetStatusRetriesExhausted), nullString(errMsg), now(), id,
		string(domain.QuestionSetStatusGenerating), claimID)
	if errors.Is(err, store.ErrQuestionSetNotFound) {
		return nil, s.notClaimed(ctx, id)
	}
	return qs, err
}

// SkipQuestionSet implements store.QuestionSetStore.
func (s *QuestionSetStore) SkipQuestionSet(ctx context.Context, id uuid.UUID) (store.ClaimResult[domain.QuestionSet], error) {
	sources := domain.QuestionSetTransitions.Sources(domain.QuestionSetStatusAdminSkipped, domain.QuestionSetStatuses)
	args := []any{string(domain.QuestionSetStatusAdminSkipped), now(), id}
	for _, src := range sources {
		args = append(args, string(src))
	}

	qs, err := s.one(ctx, `
		UPDATE question_sets
		SET status = $1, claim_id = NULL, updated_at = $2
		WHERE id = $3 AND status IN (`+placeholders(4, len(sources))+`)
		RETURNING `+questionSetColumns, args...)
	if err == nil {
		return store.Claimed(qs), nil
	}
	if !errors.Is(err, store.ErrQuestionSetNotFound) {
		return store.ClaimResult[domain.QuestionSet]{}, err
	}

	current, err := s.GetQuestionSet(ctx, id)
	if err != nil {
		return store.ClaimResult[domain.QuestionSet]{}, err
	}
	return store.Lost(current), nil
}

// ExpireStuckGenerations implements store.QuestionSetStore.
func (s *QuestionSetStore) ExpireStuckGenerations(
	ctx context.Context,
	cutoff time.Time,
	errMsg string,
	maxRetries int,
) ([]*domain.QuestionSet, error) {
	rows, err := s.query(ctx, `
		UPDATE question_sets
		SET status = CASE WHEN retry_count + 1 >= $1 THEN $2 ELSE $3 END,
			retry_count = retry_count + 1, last_error = $4, claim_id = NULL, updated_at = $5
		WHERE status = $6 AND updated_at < $7
		RETURNING `+questionSetColumns,
		maxRetries, string(domain.QuestionSetStatusRetriesExhausted), string(domain.QuestionSetStatusFailed),
		nullString(errMsg), now(), string(domain.QuestionSetStatusGenerating), cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var sets []*domain.QuestionSet
	for rows.Next() {
		qs, err := scanQuestionSet(rows)
		if err != nil {
			return nil, s.dialect.MapError(err)
		}
		sets = append(sets, qs)
	}
	if err := rows.Err(); err != nil {
		return nil, s.dialect.MapError(err)
	}
	return sets, nil
}

// WithTx implements store.QuestionSetStore.
func (s *QuestionSetStore) WithTx(tx *sql.Tx) store.QuestionSetStore {
	return &QuestionSetStore{conn: s.withDB(tx)}
}

// notClaimed builds the error for a completion whose claim is no longer
// current, either because the set left generating or because another
// worker re-claimed it after the sweeper expired this one.
func (s *QuestionSetStore) notClaimed(ctx context.Context, id uuid.UUID) error {
	current, err := s.GetQuestionSet(ctx, id)
	if err != nil {
		return err
	}
	return &domain.InvalidStateError{
		Entity:    "question set",
		ID:        id.String(),
		Status:    string(current.Status),
		Expected:  []string{string(domain.QuestionSetStatusGenerating)},
		LostClaim: current.Status == domain.QuestionSetStatusGenerating,
	}
}

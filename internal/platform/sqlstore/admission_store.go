package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-hook/internal/store"
)

// AdmissionStore implements store.AdmissionStore on the user_admissions
// counter table.
type AdmissionStore struct {
	conn
}

// NewAdmissionStore creates an AdmissionStore over db.
func NewAdmissionStore(db store.DBTX, dialect Dialect, logger *slog.Logger) *AdmissionStore {
	return &AdmissionStore{conn: newConn(db, dialect, logger, "admission_store")}
}

var _ store.AdmissionStore = (*AdmissionStore)(nil)

// AcquireSlot implements store.AdmissionStore.
func (s *AdmissionStore) AcquireSlot(ctx context.Context, userID uuid.UUID, limit int) (bool, error) {
	ts := now()
	if _, err := s.exec(ctx, `
		INSERT INTO user_admissions (user_id, active_count, updated_at)
		VALUES ($1, 0, $2)
		ON CONFLICT (user_id) DO NOTHING`,
		userID, ts); err != nil {
		return false, err
	}

	n, err := s.exec(ctx, `
		UPDATE user_admissions
		SET active_count = active_count + 1, updated_at = $1
		WHERE user_id = $2 AND active_count < $3`,
		ts, userID, limit)
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseSlot implements store.AdmissionStore.
func (s *AdmissionStore) ReleaseSlot(ctx context.Context, userID uuid.UUID) error {
	n, err := s.exec(ctx, `
		UPDATE user_admissions
		SET active_count = active_count - 1, updated_at = $1
		WHERE user_id = $2 AND active_count > 0`,
		now(), userID)
	if err != nil {
		return err
	}
	if n == 0 {
		s.logger.WarnContext(ctx, "slot release without a held slot",
			slog.String("user_id", userID.String()))
	}
	return nil
}

// ActiveCount implements store.AdmissionStore.
func (s *AdmissionStore) ActiveCount(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := s.queryRow(ctx, `SELECT active_count FROM user_admissions WHERE user_id = $1`, userID).Scan(&count)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, s.dialect.MapError(err)
	}
	return count, nil
}

// WithTx implements store.AdmissionStore.
func (s *AdmissionStore) WithTx(tx *sql.Tx) store.AdmissionStore {
	return &AdmissionStore{conn: s.withDB(tx)}
}

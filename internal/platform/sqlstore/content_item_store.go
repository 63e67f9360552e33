package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-hook/internal/domain"
	"github.com/phrazzld/scry-hook/internal/store"
)

const contentItemColumns = `id, normalized_reference, original_reference, status, content_pointer,
	content_hash, last_fetched_at, metadata, fetch_attempts, last_error, claim_id, created_at, updated_at`

// ContentItemStore implements store.ContentItemStore.
type ContentItemStore struct {
	conn
}

// NewContentItemStore creates a ContentItemStore over db.
func NewContentItemStore(db store.DBTX, dialect Dialect, logger *slog.Logger) *ContentItemStore {
	return &ContentItemStore{conn: newConn(db, dialect, logger, "content_item_store")}
}

var _ store.ContentItemStore = (*ContentItemStore)(nil)

func scanContentItem(row rowScanner) (*domain.ContentItem, error) {
	var (
		item          domain.ContentItem
		status        string
		pointer, hash sql.NullString
		lastError     sql.NullString
		claimID       uuid.NullUUID
		lastFetchedAt dbTime
		createdAt     dbTime
		updatedAt     dbTime
		metadata      []byte
	)
	err := row.Scan(
		&item.ID,
		&item.NormalizedReference,
		&item.OriginalReference,
		&status,
		&pointer,
		&hash,
		&lastFetchedAt,
		&metadata,
		&item.FetchAttempts,
		&lastError,
		&claimID,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	item.Status = domain.ContentItemStatus(status)
	item.ContentPointer = pointer.String
	item.ContentHash = hash.String
	item.LastError = lastError.String
	if claimID.Valid {
		item.ClaimID = claimID.UUID
	}
	item.LastFetchedAt = lastFetchedAt.Ptr()
	item.CreatedAt = createdAt.Time
	item.UpdatedAt = updatedAt.Time
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &item.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode content metadata: %w", err)
		}
	}
	return &item, nil
}

func (s *ContentItemStore) one(ctx context.Context, query string, args ...any) (*domain.ContentItem, error) {
	item, err := scanContentItem(s.queryRow(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrContentItemNotFound
	}
	if err != nil {
		return nil, s.dialect.MapError(err)
	}
	return item, nil
}

func (s *ContentItemStore) many(ctx context.Context, query string, args ...any) ([]*domain.ContentItem, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var items []*domain.ContentItem
	for rows.Next() {
		item, err := scanContentItem(rows)
		if err != nil {
			return nil, s.dialect.MapError(err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, s.dialect.MapError(err)
	}
	return items, nil
}

// claim runs a conditional update and falls back to a snapshot read when the
// row was not eligible.
func (s *ContentItemStore) claim(
	ctx context.Context,
	id uuid.UUID,
	query string,
	args ...any,
) (store.ClaimResult[domain.ContentItem], error) {
	item, err := s.one(ctx, query, args...)
	if err == nil {
		return store.Claimed(item), nil
	}
	if !errors.Is(err, store.ErrContentItemNotFound) {
		return store.ClaimResult[domain.ContentItem]{}, err
	}

	current, err := s.GetContentItem(ctx, id)
	if err != nil {
		return store.ClaimResult[domain.ContentItem]{}, err
	}
	return store.Lost(current), nil
}

// EnsureContentItem implements store.ContentItemStore.
func (s *ContentItemStore) EnsureContentItem(
	ctx context.Context,
	item *domain.ContentItem,
) (*domain.ContentItem, bool, error) {
	if err := item.Validate(); err != nil {
		return nil, false, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	metadata, err := json.Marshal(item.Metadata)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode content metadata: %w", err)
	}

	ts := now()
	inserted, err := s.one(ctx, `
		INSERT INTO content_items (id, normalized_reference, original_reference, status,
			metadata, fetch_attempts, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6, $6)
		ON CONFLICT (normalized_reference) DO NOTHING
		RETURNING `+contentItemColumns,
		item.ID, item.NormalizedReference, item.OriginalReference, string(item.Status), string(metadata), ts)
	if err == nil {
		s.logger.DebugContext(ctx, "content item created",
			slog.String("content_item_id", inserted.ID.String()),
			slog.String("reference", inserted.NormalizedReference))
		return inserted, true, nil
	}
	if !errors.Is(err, store.ErrContentItemNotFound) {
		return nil, false, err
	}

	existing, err := s.GetContentItemByReference(ctx, item.NormalizedReference)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetContentItem implements store.ContentItemStore.
func (s *ContentItemStore) GetContentItem(ctx context.Context, id uuid.UUID) (*domain.ContentItem, error) {
	return s.one(ctx, `SELECT `+contentItemColumns+` FROM content_items WHERE id = $1`, id)
}

// GetContentItemByReference implements store.ContentItemStore.
func (s *ContentItemStore) GetContentItemByReference(ctx context.Context, normalizedRef string) (*domain.ContentItem, error) {
	return s.one(ctx, `SELECT `+contentItemColumns+` FROM content_items WHERE normalized_reference = $1`, normalizedRef)
}

// ClaimContentFetch implements store.ContentItemStore. The eligible statuses
// come from the transition table; available items must also be stale.
func (s *ContentItemStore) ClaimContentFetch(
	ctx context.Context,
	id uuid.UUID,
	staleBefore time.Time,
) (store.ClaimResult[domain.ContentItem], error) {
	sources := domain.ContentItemTransitions.Sources(domain.ContentItemStatusFetching, domain.ContentItemStatuses)
	args := []any{
		string(domain.ContentItemStatusFetching), uuid.New(), now(), id,
		string(domain.ContentItemStatusAvailable), staleBefore.UTC(),
	}
	for _, src := range sources {
		args = append(args, string(src))
	}
	return s.claim(ctx, id, `
		UPDATE content_items
		SET status = $1, claim_id = $2, fetch_attempts = fetch_attempts + 1, updated_at = $3
		WHERE id = $4
		  AND (status <> $5 OR last_fetched_at < $6)
		  AND status IN (`+placeholders(7, len(sources))+`)
		RETURNING `+contentItemColumns, args...)
}

// CompleteContentFetch implements store.ContentItemStore.
func (s *ContentItemStore) CompleteContentFetch(
	ctx context.Context,
	id, claimID uuid.UUID,
	result store.FetchResult,
) (*domain.ContentItem, error) {
	metadata, err := json.Marshal(result.Metadata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode content metadata: %w", err)
	}
	fetchedAt := result.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = now()
	}

	item, err := s.one(ctx, `
		UPDATE content_items
		SET status = $1, content_pointer = $2, content_hash = $3, metadata = $4,
			last_fetched_at = $5, fetch_attempts = 0, last_error = NULL, claim_id = NULL, updated_at = $6
		WHERE id = $7 AND status = $8 AND claim_id = $9
		RETURNING `+contentItemColumns,
		string(domain.ContentItemStatusAvailable), result.ContentPointer, result.ContentHash, string(metadata),
		fetchedAt.UTC().Truncate(time.Microsecond), now(), id, string(domain.ContentItemStatusFetching), claimID)
	if errors.Is(err, store.ErrContentItemNotFound) {
		return nil, s.notClaimed(ctx, id)
	}
	return item, err
}

// FailContentFetch implements store.ContentItemStore.
func (s *ContentItemStore) FailContentFetch(
	ctx context.Context,
	id, claimID uuid.UUID,
	errMsg string,
	terminal bool,
	maxAttempts int,
) (*domain.ContentItem, error) {
	var (
		item *domain.ContentItem
		err  error
	)
	if terminal {
		item, err = s.one(ctx, `
			UPDATE content_items
			SET status = $1, last_error = $2, claim_id = NULL, updated_at = $3
			WHERE id = $4 AND status = $5 AND claim_id = $6
			RETURNING `+contentItemColumns,
			string(domain.ContentItemStatusRetriesExhausted), nullString(errMsg), now(), id,
			string(domain.ContentItemStatusFetching), claimID)
	} else {
		item, err = s.one(ctx, `
			UPDATE content_items
			SET status = CASE WHEN fetch_attempts >= $1 THEN $2 ELSE $3 END,
				last_error = $4, claim_id = NULL, updated_at = $5
			WHERE id = $6 AND status = $7 AND claim_id = $8
			RETURNING `+contentItemColumns,
			maxAttempts, string(domain.ContentItemStatusRetriesExhausted), string(domain.ContentItemStatusFailed),
			nullString(errMsg), now(), id, string(domain.ContentItemStatusFetching), claimID)
	}
	if errors.Is(err, store.ErrContentItemNotFound) {
		return nil, s.notClaimed(ctx, id)
	}
	return item, err
}

// SkipContentItem implements store.ContentItemStore.
func (s *ContentItemStore) SkipContentItem(ctx context.Context, id uuid.UUID) (store.ClaimResult[domain.ContentItem], error) {
	sources := domain.ContentItemTransitions.Sources(domain.ContentItemStatusAdminSkipped, domain.ContentItemStatuses)
	args := []any{string(domain.ContentItemStatusAdminSkipped), now(), id}
	for _, src := range sources {
		args = append(args, string(src))
	}
	return s.claim(ctx, id, `
		UPDATE content_items
		SET status = $1, claim_id = NULL, updated_at = $2
		WHERE id = $3 AND status IN (`+placeholders(4, len(sources))+`)
		RETURNING `+contentItemColumns, args...)
}

// ExpireStuckFetches implements store.ContentItemStore.
func (s *ContentItemStore) ExpireStuckFetches(
	ctx context.Context,
	cutoff time.Time,
	maxAttempts int,
) ([]*domain.ContentItem, error) {
	return s.many(ctx, `
		UPDATE content_items
		SET status = CASE WHEN fetch_attempts >= $1 THEN $2 ELSE $3 END,
			last_error = $4, claim_id = NULL, updated_at = $5
		WHERE status = $6 AND updated_at < $7
		RETURNING `+contentItemColumns,
		maxAttempts, string(domain.ContentItemStatusRetriesExhausted), string(domain.ContentItemStatusFailed),
		"fetch claim expired", now(), string(domain.ContentItemStatusFetching), cutoff.UTC())
}

// WithTx implements store.ContentItemStore.
func (s *ContentItemStore) WithTx(tx *sql.Tx) store.ContentItemStore {
	return &ContentItemStore{conn: s.withDB(tx)}
}

// notClaimed builds the error for a completion against an item this caller
// no longer owns.
func (s *ContentItemStore) notClaimed(ctx context.Context, id uuid.UUID) error {
	current, err := s.GetContentItem(ctx, id)
	if err != nil {
		return err
	}
	return &domain.InvalidStateError{
		Entity:    "content item",
		ID:        id.String(),
		Status:    string(current.Status),
		Expected:  []string{string(domain.ContentItemStatusFetching)},
		LostClaim: current.Status == domain.ContentItemStatusFetching,
	}
}

package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-hook/internal/domain"
)

// FetchResult is what a successful fetch records on a content item.
type FetchResult struct {
	ContentPointer string
	ContentHash    string
	Metadata       domain.ContentMetadata
	FetchedAt      time.Time
}

// ContentItemStore defines persistence for content items.
type ContentItemStore interface {
	// EnsureContentItem returns the content item for item.NormalizedReference,
	// inserting item if none exists. created reports whether this call
	// inserted the row.
	EnsureContentItem(ctx context.Context, item *domain.ContentItem) (existing *domain.ContentItem, created bool, err error)

	// GetContentItem retrieves a content item by ID.
	// Returns ErrContentItemNotFound if it does not exist.
	GetContentItem(ctx context.Context, id uuid.UUID) (*domain.ContentItem, error)

	// GetContentItemByReference retrieves a content item by normalized reference.
	GetContentItemByReference(ctx context.Context, normalizedRef string) (*domain.ContentItem, error)

	// ClaimContentFetch moves the item to fetching if it is unfetched, failed,
	// or available with last_fetched_at before staleBefore, incrementing
	// fetch_attempts and issuing a fresh ClaimID.
	ClaimContentFetch(ctx context.Context, id uuid.UUID, staleBefore time.Time) (ClaimResult[domain.ContentItem], error)

	// CompleteContentFetch records a successful fetch on an item in fetching
	// under claimID. A stale claim fails with domain.ErrClaimLost.
	CompleteContentFetch(ctx context.Context, id, claimID uuid.UUID, result FetchResult) (*domain.ContentItem, error)

	// FailContentFetch records a failed fetch on an item in fetching. Terminal
	// failures, and retryable ones once fetch_attempts reaches maxAttempts,
	// move the item to retries_exhausted; others return it to failed.
	FailContentFetch(ctx context.Context, id, claimID uuid.UUID, errMsg string, terminal bool, maxAttempts int) (*domain.ContentItem, error)

	// SkipContentItem moves a non-terminal item to admin_skipped.
	SkipContentItem(ctx context.Context, id uuid.UUID) (ClaimResult[domain.ContentItem], error)

	// ExpireStuckFetches fails items that have been fetching since before
	// cutoff, applying the same ceiling as FailContentFetch.
	ExpireStuckFetches(ctx context.Context, cutoff time.Time, maxAttempts int) ([]*domain.ContentItem, error)

	// WithTx returns a ContentItemStore bound to tx.
	WithTx(tx *sql.Tx) ContentItemStore
}

// QuizContainerStore defines persistence for quiz containers.
type QuizContainerStore interface {
	// EnsureQuizContainer returns the container for contentItemID, creating
	// it on first access.
	EnsureQuizContainer(ctx context.Context, contentItemID uuid.UUID) (*domain.QuizContainer, error)

	// GetQuizContainer retrieves a container by ID.
	GetQuizContainer(ctx context.Context, id uuid.UUID) (*domain.QuizContainer, error)

	// WithTx returns a QuizContainerStore bound to tx.
	WithTx(tx *sql.Tx) QuizContainerStore
}

// Blob is stored document content.
type Blob struct {
	Data        []byte
	ContentType string
}

// BlobStore keeps fetched text and uploaded documents outside the row store.
type BlobStore interface {
	// PutBlob stores data under key, overwriting any previous value, and
	// returns the pointer to persist.
	PutBlob(ctx context.Context, key string, blob Blob) (pointer string, err error)

	// GetBlob retrieves the blob behind pointer.
	// Returns ErrBlobNotFound if nothing is stored there.
	GetBlob(ctx context.Context, pointer string) (*Blob, error)
}

// UploadBlobKey is where the raw bytes of an uploaded document are kept,
// keyed by the digest in its upload reference.
func UploadBlobKey(digest string) string {
	return "uploads/" + digest
}

// ContentBlobKey is where extracted document text is kept, keyed by the
// content hash of that text.
func ContentBlobKey(contentHash string) string {
	return "content/" + contentHash
}

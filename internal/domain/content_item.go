package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ContentItemStatus represents the fetch state of a content item.
type ContentItemStatus string

// Possible content item status values. ContentItemStatusStale is never
// stored: it is reported for available items older than the freshness window.
const (
	ContentItemStatusUnfetched        ContentItemStatus = "unfetched"
	ContentItemStatusFetching         ContentItemStatus = "fetching"
	ContentItemStatusAvailable        ContentItemStatus = "available"
	ContentItemStatusStale            ContentItemStatus = "stale"
	ContentItemStatusFailed           ContentItemStatus = "failed"
	ContentItemStatusAdminSkipped     ContentItemStatus = "admin_skipped"
	ContentItemStatusRetriesExhausted ContentItemStatus = "retries_exhausted"
)

// DefaultFreshnessWindow is how long fetched content is considered current.
const DefaultFreshnessWindow = 30 * 24 * time.Hour

// ContentItemTransitions is the allowed-transition table for content items.
var ContentItemTransitions = Transitions[ContentItemStatus]{
	ContentItemStatusUnfetched: {
		ContentItemStatusFetching,
		ContentItemStatusAdminSkipped,
		ContentItemStatusRetriesExhausted,
	},
	ContentItemStatusFetching: {
		ContentItemStatusAvailable,
		ContentItemStatusFailed,
		ContentItemStatusAdminSkipped,
		ContentItemStatusRetriesExhausted,
	},
	ContentItemStatusAvailable: {
		ContentItemStatusFetching,
		ContentItemStatusAdminSkipped,
		ContentItemStatusRetriesExhausted,
	},
	ContentItemStatusFailed: {
		ContentItemStatusFetching,
		ContentItemStatusAdminSkipped,
		ContentItemStatusRetriesExhausted,
	},
}

// ContentItemStatuses lists the stored content item statuses in lifecycle order.
var ContentItemStatuses = []ContentItemStatus{
	ContentItemStatusUnfetched,
	ContentItemStatusFetching,
	ContentItemStatusAvailable,
	ContentItemStatusFailed,
	ContentItemStatusAdminSkipped,
	ContentItemStatusRetriesExhausted,
}

var (
	ErrEmptyContentReference    = errors.New("content item reference cannot be empty")
	ErrInvalidContentItemStatus = errors.New("invalid content item status")
)

// ContentMetadata is derived from a fetched document.
type ContentMetadata struct {
	Title       string `json:"title,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	SiteName    string `json:"site_name,omitempty"`
	WordCount   int    `json:"word_count,omitempty"`
	ByteSize    int64  `json:"byte_size,omitempty"`
}

// ContentItem is the fetched document behind one normalized reference.
type ContentItem struct {
	ID                  uuid.UUID         `json:"id"`
	NormalizedReference string            `json:"normalized_reference"`
	OriginalReference   string            `json:"original_reference"`
	Status              ContentItemStatus `json:"status"`
	ContentPointer      string            `json:"content_pointer,omitempty"`
	ContentHash         string            `json:"content_hash,omitempty"`
	LastFetchedAt       *time.Time        `json:"last_fetched_at,omitempty"`
	Metadata            ContentMetadata   `json:"metadata"`
	FetchAttempts       int               `json:"fetch_attempts"`
	LastError           string            `json:"last_error,omitempty"`
	ClaimID             uuid.UUID         `json:"-"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// NewContentItem creates an unfetched content item for a normalized reference.
func NewContentItem(normalizedRef, originalRef string) (*ContentItem, error) {
	now := time.Now().UTC()
	item := &ContentItem{
		ID:                  uuid.New(),
		NormalizedReference: normalizedRef,
		OriginalReference:   originalRef,
		Status:              ContentItemStatusUnfetched,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := item.Validate(); err != nil {
		return nil, err
	}
	return item, nil
}

// Validate checks if the ContentItem has valid data.
func (c *ContentItem) Validate() error {
	if c.NormalizedReference == "" {
		return ErrEmptyContentReference
	}
	if !isStoredContentItemStatus(c.Status) {
		return ErrInvalidContentItemStatus
	}
	return nil
}

// IsStale reports whether an available item has outlived the freshness window.
func (c *ContentItem) IsStale(now time.Time, window time.Duration) bool {
	if c.Status != ContentItemStatusAvailable || c.LastFetchedAt == nil {
		return false
	}
	return now.Sub(*c.LastFetchedAt) > window
}

// EffectiveStatus returns the caller-facing status, reporting stale in place
// of available when the freshness window has passed.
func (c *ContentItem) EffectiveStatus(now time.Time, window time.Duration) ContentItemStatus {
	if c.IsStale(now, window) {
		return ContentItemStatusStale
	}
	return c.Status
}

// NeedsFetch reports whether a worker must claim the item before its text
// can be used.
func (c *ContentItem) NeedsFetch(now time.Time, window time.Duration) bool {
	switch c.Status {
	case ContentItemStatusUnfetched, ContentItemStatusFailed:
		return true
	case ContentItemStatusAvailable:
		return c.IsStale(now, window)
	default:
		return false
	}
}

// IsTerminal reports whether the item is in an absorbing status.
func (c *ContentItem) IsTerminal() bool {
	return c.Status.IsTerminal()
}

// IsTerminal reports whether s is an absorbing content item status.
func (s ContentItemStatus) IsTerminal() bool {
	return s == ContentItemStatusAdminSkipped || s == ContentItemStatusRetriesExhausted
}

func isStoredContentItemStatus(s ContentItemStatus) bool {
	for _, known := range ContentItemStatuses {
		if s == known {
			return true
		}
	}
	return false
}

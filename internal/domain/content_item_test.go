package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewContentItem(t *testing.T) {
	t.Parallel()

	item, err := NewContentItem("https://example.com/a", "https://Example.com/a")
	require.NoError(t, err)
	assert.Equal(t, ContentItemStatusUnfetched, item.Status)
	assert.Zero(t, item.FetchAttempts)
	assert.Nil(t, item.LastFetchedAt)

	_, err = NewContentItem("", "x")
	assert.ErrorIs(t, err, ErrEmptyContentReference)
}

func TestContentItem_Staleness(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	fresh := now.Add(-29 * 24 * time.Hour)
	old := now.Add(-31 * 24 * time.Hour)

	tests := []struct {
		name          string
		status        ContentItemStatus
		fetchedAt     *time.Time
		wantStale     bool
		wantNeedFetch bool
		wantEffective ContentItemStatus
	}{
		{"fresh available", ContentItemStatusAvailable, &fresh, false, false, ContentItemStatusAvailable},
		{"old available", ContentItemStatusAvailable, &old, true, true, ContentItemStatusStale},
		{"unfetched", ContentItemStatusUnfetched, nil, false, true, ContentItemStatusUnfetched},
		{"failed", ContentItemStatusFailed, &old, false, true, ContentItemStatusFailed},
		{"fetching", ContentItemStatusFetching, &old, false, false, ContentItemStatusFetching},
		{"exhausted", ContentItemStatusRetriesExhausted, &old, false, false, ContentItemStatusRetriesExhausted},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			item := &ContentItem{Status: tc.status, LastFetchedAt: tc.fetchedAt}
			assert.Equal(t, tc.wantStale, item.IsStale(now, DefaultFreshnessWindow))
			assert.Equal(t, tc.wantNeedFetch, item.NeedsFetch(now, DefaultFreshnessWindow))
			assert.Equal(t, tc.wantEffective, item.EffectiveStatus(now, DefaultFreshnessWindow))
		})
	}
}

package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-hook/internal/domain"
	"github.com/phrazzld/scry-hook/internal/generation"
	"github.com/phrazzld/scry-hook/internal/redact"
	"github.com/phrazzld/scry-hook/internal/store"
)

const textContentType = "text/plain; charset=utf-8"

// LoadContent returns the item's document text, fetching it first when the
// item is unfetched, failed or stale. When another worker owns the fetch it
// waits for that fetch to settle. Terminal items yield a terminal error.
func (w *Worker) LoadContent(ctx context.Context, item *domain.ContentItem) (*domain.ContentItem, string, error) {
	current, err := w.ensureFetched(ctx, item)
	if err != nil {
		return current, "", err
	}

	blob, err := w.blobs.GetBlob(ctx, current.ContentPointer)
	if errors.Is(err, store.ErrBlobNotFound) {
		return current, "", domain.NewRetryableError("load content", fmt.Errorf("content blob missing for %s", current.ID))
	}
	if err != nil {
		return current, "", domain.NewRetryableError("load content", err)
	}
	return current, string(blob.Data), nil
}

// Prefetch makes sure the item's document has been fetched, without reading
// the text. It is used to populate metadata ahead of generation.
func (w *Worker) Prefetch(ctx context.Context, itemID uuid.UUID) (*domain.ContentItem, error) {
	item, err := w.contents.GetContentItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return w.ensureFetched(ctx, item)
}

func (w *Worker) ensureFetched(ctx context.Context, item *domain.ContentItem) (*domain.ContentItem, error) {
	now := time.Now().UTC()

	switch {
	case item.IsTerminal():
		return item, terminalContentError(item)
	case item.Status == domain.ContentItemStatusFetching:
		return w.waitForFetch(ctx, item.ID)
	case !item.NeedsFetch(now, w.cfg.FreshnessWindow):
		return item, nil
	}

	res, err := w.contents.ClaimContentFetch(ctx, item.ID, now.Add(-w.cfg.FreshnessWindow))
	if err != nil {
		return item, err
	}
	if !res.Claimed {
		snapshot := res.Snapshot
		switch {
		case snapshot.IsTerminal():
			return snapshot, terminalContentError(snapshot)
		case snapshot.Status == domain.ContentItemStatusFetching:
			return w.waitForFetch(ctx, snapshot.ID)
		case snapshot.Status == domain.ContentItemStatusAvailable:
			return snapshot, nil
		}
		return snapshot, domain.NewRetryableError("fetch content", fmt.Errorf("content item %s in status %s", snapshot.ID, snapshot.Status))
	}
	return w.fetch(ctx, res.Snapshot)
}

// fetch runs the document fetch for an item this worker has claimed and
// records the outcome.
func (w *Worker) fetch(ctx context.Context, item *domain.ContentItem) (*domain.ContentItem, error) {
	log := w.logger.With(
		slog.String("content_item_id", item.ID.String()),
		slog.Int("fetch_attempts", item.FetchAttempts))
	log.InfoContext(ctx, "fetching content")

	doc, err := generation.Retry(ctx, w.cfg.FetchRetry, "fetch document",
		func(ctx context.Context) (*generation.Document, error) {
			return w.fetcher.Fetch(ctx, item.NormalizedReference)
		})
	if err == nil {
		var completed *domain.ContentItem
		completed, err = w.storeDocument(ctx, item, doc)
		if err == nil {
			log.InfoContext(ctx, "content available",
				slog.String("title", completed.Metadata.Title),
				slog.Int("word_count", completed.Metadata.WordCount))
			return completed, nil
		}
		if domain.IsInvalidState(err) {
			return w.settledElsewhere(ctx, item, err)
		}
	}

	terminal := domain.IsTerminal(err)
	failed, failErr := w.contents.FailContentFetch(context.WithoutCancel(ctx), item.ID, item.ClaimID,
		redact.Summary(err, w.cfg.ErrorSummaryLength), terminal, w.cfg.MaxFetchAttempts)
	if failErr != nil {
		if domain.IsInvalidState(failErr) {
			return w.settledElsewhere(context.WithoutCancel(ctx), item, failErr)
		}
		return item, fmt.Errorf("failed to record fetch failure: %w", failErr)
	}

	log.WarnContext(ctx, "content fetch failed",
		slog.String("status", string(failed.Status)),
		slog.Bool("terminal", terminal),
		slog.String("error", err.Error()))

	if failed.IsTerminal() {
		return failed, terminalContentError(failed)
	}
	return failed, err
}

func (w *Worker) storeDocument(ctx context.Context, item *domain.ContentItem, doc *generation.Document) (*domain.ContentItem, error) {
	data := []byte(doc.Text)
	hash := domain.ContentDigest(data)

	pointer, err := w.blobs.PutBlob(ctx, store.ContentBlobKey(hash), store.Blob{
		Data:        data,
		ContentType: textContentType,
	})
	if err != nil {
		return nil, domain.NewRetryableError("store content", err)
	}

	return w.contents.CompleteContentFetch(ctx, item.ID, item.ClaimID, store.FetchResult{
		ContentPointer: pointer,
		ContentHash:    hash,
		Metadata:       doc.Metadata,
		FetchedAt:      time.Now().UTC(),
	})
}

// settledElsewhere resolves a completion that found the item no longer under
// this worker's claim. The sweeper may have expired the claim and another
// worker may already have finished the fetch.
func (w *Worker) settledElsewhere(ctx context.Context, item *domain.ContentItem, cause error) (*domain.ContentItem, error) {
	latest, err := w.contents.GetContentItem(ctx, item.ID)
	if err != nil {
		return item, err
	}
	w.logger.WarnContext(ctx, "content fetch claim lost",
		slog.String("content_item_id", item.ID.String()),
		slog.String("status", string(latest.Status)))
	switch {
	case latest.IsTerminal():
		return latest, terminalContentError(latest)
	case latest.Status == domain.ContentItemStatusAvailable:
		return latest, nil
	}
	return latest, domain.NewRetryableError("fetch content", cause)
}

// waitForFetch polls an item another worker is fetching until the fetch
// settles. Concurrent waiters in this process share one polling loop, which
// runs detached from any single caller and is bounded by FetchWaitTimeout;
// each caller stops waiting when its own context ends.
func (w *Worker) waitForFetch(ctx context.Context, id uuid.UUID) (*domain.ContentItem, error) {
	detached := context.WithoutCancel(ctx)
	ch := w.waits.DoChan(id.String(), func() (any, error) {
		return w.poll(detached, id)
	})
	select {
	case r := <-ch:
		item, _ := r.Val.(*domain.ContentItem)
		return item, r.Err
	case <-ctx.Done():
		return nil, domain.NewRetryableError("wait for fetch", ctx.Err())
	}
}

func (w *Worker) poll(ctx context.Context, id uuid.UUID) (*domain.ContentItem, error) {
	deadline := time.NewTimer(w.cfg.FetchWaitTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(w.cfg.FetchWaitInterval)
	defer ticker.Stop()

	for {
		item, err := w.contents.GetContentItem(ctx, id)
		if err != nil {
			return nil, err
		}
		switch {
		case item.IsTerminal():
			return item, terminalContentError(item)
		case item.Status == domain.ContentItemStatusAvailable:
			return item, nil
		case item.Status == domain.ContentItemStatusFailed:
			return item, domain.NewRetryableError("fetch content", errors.New(item.LastError))
		}

		select {
		case <-ctx.Done():
			return item, domain.NewRetryableError("wait for fetch", ctx.Err())
		case <-deadline.C:
			return item, domain.NewRetryableError("wait for fetch", ErrFetchPending)
		case <-ticker.C:
		}
	}
}

func terminalContentError(item *domain.ContentItem) error {
	reason := item.LastError
	if reason == "" {
		reason = "content is " + string(item.Status)
	}
	return domain.NewTerminalError("load content", errors.New(reason))
}

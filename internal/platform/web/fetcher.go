package web

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/phrazzld/scry-hook/internal/config"
	"github.com/phrazzld/scry-hook/internal/domain"
	"github.com/phrazzld/scry-hook/internal/generation"
	"github.com/phrazzld/scry-hook/internal/store"
)

const acceptHeader = "text/html,application/xhtml+xml,application/pdf,text/plain;q=0.9,*/*;q=0.5"

// Fetcher implements generation.DocumentFetcher for web and upload references.
type Fetcher struct {
	client    *http.Client
	blobs     store.BlobStore
	userAgent string
	maxBytes  int64
	logger    *slog.Logger
}

var _ generation.DocumentFetcher = (*Fetcher)(nil)

// NewFetcher creates a Fetcher. blobs is where uploaded documents are read
// from.
func NewFetcher(cfg config.ContentConfig, blobs store.BlobStore, logger *slog.Logger) (*Fetcher, error) {
	if blobs == nil {
		return nil, errors.New("blob store cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		blobs:     blobs,
		userAgent: cfg.UserAgent,
		maxBytes:  cfg.MaxBytes,
		logger:    logger.With(slog.String("component", "web_fetcher")),
	}, nil
}

// Fetch implements generation.DocumentFetcher.
func (f *Fetcher) Fetch(ctx context.Context, normalizedRef string) (*generation.Document, error) {
	if digest, ok := domain.UploadDigest(normalizedRef); ok {
		return f.fetchUpload(ctx, digest)
	}
	return f.fetchURL(ctx, normalizedRef)
}

func (f *Fetcher) fetchUpload(ctx context.Context, digest string) (*generation.Document, error) {
	const op = "fetch upload"

	blob, err := f.blobs.GetBlob(ctx, store.UploadBlobKey(digest))
	if errors.Is(err, store.ErrBlobNotFound) {
		return nil, domain.NewTerminalError(op, fmt.Errorf("%w: upload %s not found", ErrUnreachable, digest))
	}
	if err != nil {
		return nil, domain.NewRetryableError(op, err)
	}

	doc, err := Extract(blob.ContentType, blob.Data)
	if err != nil {
		return nil, domain.NewTerminalError(op, err)
	}
	return doc, nil
}

func (f *Fetcher) fetchURL(ctx context.Context, ref string) (*generation.Document, error) {
	const op = "fetch url"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, domain.NewTerminalError(op, fmt.Errorf("%w: %v", domain.ErrInvalidReference, err))
	}
	req.Header.Set("Accept", acceptHeader)
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, transportError(op, err)
	}
	defer func() { _ = resp.Body.Close() }()

	f.logger.DebugContext(ctx, "fetched reference",
		slog.String("reference", ref),
		slog.Int("status", resp.StatusCode),
		slog.Duration("duration", time.Since(start)))

	if err := classifyStatus(resp.StatusCode); err != nil {
		return nil, err
	}

	data, err := f.readBody(resp.Body)
	if err != nil {
		if errors.Is(err, ErrTooLarge) {
			return nil, domain.NewTerminalError(op, err)
		}
		return nil, domain.NewRetryableError(op, err)
	}

	doc, err := Extract(resp.Header.Get("Content-Type"), data)
	if err != nil {
		return nil, domain.NewTerminalError(op, err)
	}
	return doc, nil
}

// transportError classifies a failed request. A host that does not resolve
// will not start resolving on retry; other network faults might clear.
func transportError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
		return domain.NewTerminalError(op, fmt.Errorf("%w: %v", ErrUnreachable, err))
	}
	return domain.NewRetryableError(op, err)
}

func (f *Fetcher) readBody(body io.Reader) ([]byte, error) {
	if f.maxBytes <= 0 {
		return io.ReadAll(body)
	}
	data, err := io.ReadAll(io.LimitReader(body, f.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxBytes)
	}
	return data, nil
}

// classifyStatus maps an HTTP status to nil, a terminal error, or a
// retryable error.
func classifyStatus(code int) error {
	const op = "fetch url"
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusTooManyRequests, code == http.StatusRequestTimeout, code >= 500:
		return domain.NewRetryableError(op, fmt.Errorf("%w: HTTP %d", ErrUpstream, code))
	default:
		return domain.NewTerminalError(op, fmt.Errorf("%w: HTTP %d", ErrUnreachable, code))
	}
}

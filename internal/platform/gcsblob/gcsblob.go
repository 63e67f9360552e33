// Package gcsblob implements store.BlobStore on a Google Cloud Storage bucket.
package gcsblob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"cloud.google.com/go/storage"
	"github.com/phrazzld/scry-hook/internal/store"
	"google.golang.org/api/option"
)

// Store implements store.BlobStore. Keys are object names and the pointer
// returned by PutBlob is the object name.
type Store struct {
	client *storage.Client
	bucket *storage.BucketHandle
	logger *slog.Logger
}

var _ store.BlobStore = (*Store)(nil)

// New creates a Store for bucket. A non-empty endpoint points the client at
// an emulator without authentication.
func New(ctx context.Context, bucket, endpoint string, logger *slog.Logger) (*Store, error) {
	if bucket == "" {
		return nil, errors.New("bucket name cannot be empty")
	}

	var opts []option.ClientOption
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint), option.WithoutAuthentication())
	} else {
		opts = append(opts, option.WithScopes(storage.ScopeReadWrite))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		client: client,
		bucket: client.Bucket(bucket),
		logger: logger.With(slog.String("component", "gcs_blob_store"), slog.String("bucket", bucket)),
	}, nil
}

// PutBlob implements store.BlobStore.
func (s *Store) PutBlob(ctx context.Context, key string, blob store.Blob) (string, error) {
	w := s.bucket.Object(key).NewWriter(ctx)
	w.ContentType = blob.ContentType
	if _, err := w.Write(blob.Data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write object %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize object %s: %w", key, err)
	}
	s.logger.DebugContext(ctx, "stored blob", slog.String("key", key), slog.Int("bytes", len(blob.Data)))
	return key, nil
}

// GetBlob implements store.BlobStore.
func (s *Store) GetBlob(ctx context.Context, pointer string) (*store.Blob, error) {
	r, err := s.bucket.Object(pointer).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, store.ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open object %s: %w", pointer, err)
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", pointer, err)
	}
	return &store.Blob{Data: data, ContentType: r.Attrs.ContentType}, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Package redisblob implements store.BlobStore on Redis hashes.
package redisblob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/phrazzld/scry-hook/internal/store"
	"github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces blob keys in a shared Redis.
const KeyPrefix = "scry:blob:"

const (
	fieldData        = "data"
	fieldContentType = "content_type"
)

// Store implements store.BlobStore. The pointer returned by PutBlob is the
// unprefixed key.
type Store struct {
	client *redis.Client
	logger *slog.Logger
}

var _ store.BlobStore = (*Store)(nil)

// New connects to the Redis at url and verifies the connection.
func New(ctx context.Context, url string, logger *slog.Logger) (*Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewWithClient(client, logger), nil
}

// NewWithClient wraps an existing client.
func NewWithClient(client *redis.Client, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{client: client, logger: logger.With(slog.String("component", "redis_blob_store"))}
}

// PutBlob implements store.BlobStore.
func (s *Store) PutBlob(ctx context.Context, key string, blob store.Blob) (string, error) {
	if err := s.client.HSet(ctx, KeyPrefix+key,
		fieldContentType, blob.ContentType,
		fieldData, blob.Data,
	).Err(); err != nil {
		return "", fmt.Errorf("failed to store blob %s: %w", key, err)
	}
	s.logger.DebugContext(ctx, "stored blob", slog.String("key", key), slog.Int("bytes", len(blob.Data)))
	return key, nil
}

// GetBlob implements store.BlobStore.
func (s *Store) GetBlob(ctx context.Context, pointer string) (*store.Blob, error) {
	values, err := s.client.HMGet(ctx, KeyPrefix+pointer, fieldData, fieldContentType).Result()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrBlobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %s: %w", pointer, err)
	}

	data, ok := values[0].(string)
	if !ok {
		return nil, store.ErrBlobNotFound
	}
	contentType, _ := values[1].(string)
	return &store.Blob{Data: []byte(data), ContentType: contentType}, nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

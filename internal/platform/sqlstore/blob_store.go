package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"

	"github.com/phrazzld/scry-hook/internal/store"
)

// BlobStore implements store.BlobStore in the content_blobs table. The
// pointer is the key itself.
type BlobStore struct {
	conn
}

// NewBlobStore creates a BlobStore over db.
func NewBlobStore(db store.DBTX, dialect Dialect, logger *slog.Logger) *BlobStore {
	return &BlobStore{conn: newConn(db, dialect, logger, "blob_store")}
}

var _ store.BlobStore = (*BlobStore)(nil)

// PutBlob implements store.BlobStore.
func (s *BlobStore) PutBlob(ctx context.Context, key string, blob store.Blob) (string, error) {
	if _, err := s.exec(ctx, `
		INSERT INTO content_blobs (pointer, content_type, data, created_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (pointer) DO UPDATE
		SET content_type = excluded.content_type, data = excluded.data`,
		key, blob.ContentType, blob.Data, now()); err != nil {
		return "", err
	}
	return key, nil
}

// GetBlob implements store.BlobStore.
func (s *BlobStore) GetBlob(ctx context.Context, pointer string) (*store.Blob, error) {
	var blob store.Blob
	err := s.queryRow(ctx, `SELECT data, content_type FROM content_blobs WHERE pointer = $1`, pointer).
		Scan(&blob.Data, &blob.ContentType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrBlobNotFound
	}
	if err != nil {
		return nil, s.dialect.MapError(err)
	}
	return &blob, nil
}

//go:build integration

package gcsblob_test

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-hook/internal/platform/gcsblob"
	"github.com/phrazzld/scry-hook/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run against fake-gcs-server or a real bucket:
//
//	SCRY_TEST_GCS_BUCKET=test SCRY_TEST_GCS_ENDPOINT=http://localhost:4443/storage/v1/ go test -tags integration ./...
func TestStoreRoundTrip(t *testing.T) {
	bucket := os.Getenv("SCRY_TEST_GCS_BUCKET")
	if bucket == "" {
		t.Skip("SCRY_TEST_GCS_BUCKET not set")
	}

	ctx := context.Background()
	s, err := gcsblob.New(ctx, bucket, os.Getenv("SCRY_TEST_GCS_ENDPOINT"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	key := store.UploadBlobKey(uuid.NewString())
	pointer, err := s.PutBlob(ctx, key, store.Blob{Data: []byte("%PDF-1.4"), ContentType: "application/pdf"})
	require.NoError(t, err)

	blob, err := s.GetBlob(ctx, pointer)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4", string(blob.Data))
	assert.Equal(t, "application/pdf", blob.ContentType)

	_, err = s.GetBlob(ctx, store.UploadBlobKey(uuid.NewString()))
	assert.ErrorIs(t, err, store.ErrBlobNotFound)
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := gcsblob.New(context.Background(), "", "", nil)
	assert.Error(t, err)
}

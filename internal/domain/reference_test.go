package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeReference(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"lowercases scheme and host", "HTTPS://Example.COM/Path", "https://example.com/Path"},
		{"drops fragment", "https://example.com/a#section", "https://example.com/a"},
		{"drops default https port", "https://example.com:443/a", "https://example.com/a"},
		{"drops default http port", "http://example.com:80/a", "http://example.com/a"},
		{"keeps custom port", "http://example.com:8080/a", "http://example.com:8080/a"},
		{"strips tracking params", "https://example.com/a?utm_source=x&id=7&fbclid=abc", "https://example.com/a?id=7"},
		{"sorts query params", "https://example.com/a?b=2&a=1", "https://example.com/a?a=1&b=2"},
		{"trims trailing slash", "https://example.com/a/b/", "https://example.com/a/b"},
		{"root path kept", "https://example.com", "https://example.com/"},
		{"surrounding whitespace", "  https://example.com/a  ", "https://example.com/a"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NormalizeReference(tc.in)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNormalizeReference_EquivalentFormsCollapse(t *testing.T) {
	t.Parallel()

	a, err := NormalizeReference("https://Example.com/article/?utm_campaign=x#top")
	require.NoError(t, err)
	b, err := NormalizeReference("https://example.com:443/article")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestNormalizeReference_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		in      string
		wantErr error
	}{
		{"empty", "", ErrInvalidReference},
		{"missing scheme", "example.com/a", ErrInvalidReference},
		{"ftp", "ftp://example.com/file", ErrUnsupportedScheme},
		{"missing host", "https:///path", ErrInvalidReference},
		{"too long", "https://example.com/" + strings.Repeat("a", MaxReferenceLength), ErrInvalidReference},
		{"bad upload digest", "upload://blake2b-256/zz", ErrInvalidReference},
		{"unknown upload hash", "upload://md5/" + strings.Repeat("a", 64), ErrInvalidReference},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NormalizeReference(tc.in)
			assert.ErrorIs(t, err, tc.wantErr)
		})
	}
}

func TestUploadReference(t *testing.T) {
	t.Parallel()

	data := []byte("lecture notes")
	ref := UploadReference(data)

	assert.True(t, IsUploadReference(ref))
	assert.Equal(t, ref, UploadReference([]byte("lecture notes")), "same bytes give same reference")
	assert.NotEqual(t, ref, UploadReference([]byte("other notes")))

	normalized, err := NormalizeReference(strings.ToUpper(ref[:9]) + ref[9:])
	require.NoError(t, err)
	assert.Equal(t, ref, normalized)

	digest, ok := UploadDigest(normalized)
	require.True(t, ok)
	assert.Equal(t, ContentDigest(data), digest)

	_, ok = UploadDigest("https://example.com/")
	assert.False(t, ok)
}

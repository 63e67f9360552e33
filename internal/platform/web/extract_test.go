package web

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractHTML(t *testing.T) {
	t.Parallel()

	page := `<!doctype html><html><head>
<title> Photosynthesis
 basics </title>
<meta property="og:site_name" content="Bio Notes">
<style>body { color: red }</style>
<script>var x = "ignored";</script>
</head><body>
<nav>Home | About</nav>
<h1>Light reactions</h1>
<p>Chlorophyll   absorbs light.</p>
<p>Water is split.</p>
<footer>copyright</footer>
</body></html>`

	doc, err := Extract("text/html; charset=utf-8", []byte(page))
	require.NoError(t, err)

	assert.Equal(t, "Photosynthesis basics", doc.Metadata.Title)
	assert.Equal(t, "Bio Notes", doc.Metadata.SiteName)
	assert.Equal(t, "text/html", doc.Metadata.ContentType)
	assert.Equal(t, "Light reactions\nChlorophyll absorbs light.\nWater is split.", doc.Text)
	assert.Equal(t, 8, doc.Metadata.WordCount)
	assert.NotContains(t, doc.Text, "ignored")
	assert.NotContains(t, doc.Text, "copyright")
}

func TestExtract(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		contentType string
		data        []byte
		wantText    string
		wantType    string
		wantErr     error
	}{
		{
			name:        "plain text",
			contentType: "text/plain",
			data:        []byte("  one\ttwo \r\n\r\nthree  "),
			wantText:    "one two\nthree",
			wantType:    "text/plain",
		},
		{
			name:        "sniffed html",
			contentType: "application/octet-stream",
			data:        []byte("<html><body><p>hello</p></body></html>"),
			wantText:    "hello",
			wantType:    "text/html",
		},
		{
			name:        "markdown",
			contentType: "text/markdown",
			data:        []byte("# Title\n\nBody"),
			wantText:    "# Title\nBody",
			wantType:    "text/markdown",
		},
		{
			name:    "empty",
			data:    nil,
			wantErr: ErrNoText,
		},
		{
			name:        "whitespace only",
			contentType: "text/plain",
			data:        []byte(" \n\t "),
			wantErr:     ErrNoText,
		},
		{
			name:        "image",
			contentType: "image/png",
			data:        []byte("\x89PNG\r\n\x1a\n"),
			wantErr:     ErrUnsupportedContentType,
		},
		{
			name:        "broken pdf",
			contentType: "application/pdf",
			data:        []byte("%PDF-1.4 not really a pdf"),
			wantErr:     ErrUnsupportedContentType,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			doc, err := Extract(tt.contentType, tt.data)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantText, doc.Text)
			assert.Equal(t, tt.wantType, doc.Metadata.ContentType)
			assert.Equal(t, int64(len(tt.data)), doc.Metadata.ByteSize)
		})
	}
}

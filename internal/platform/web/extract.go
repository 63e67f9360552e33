package web

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/phrazzld/scry-hook/internal/domain"
	"github.com/phrazzld/scry-hook/internal/generation"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	contentTypeHTML  = "text/html"
	contentTypePDF   = "application/pdf"
	contentTypePlain = "text/plain"
)

// Extract reduces raw document bytes to a generation.Document. The declared
// content type is trusted only when sniffing the bytes is inconclusive.
func Extract(contentType string, data []byte) (*generation.Document, error) {
	if len(data) == 0 {
		return nil, ErrNoText
	}

	mediaType := detectMediaType(contentType, data)

	var (
		text string
		meta domain.ContentMetadata
		err  error
	)
	switch {
	case mediaType == contentTypePDF:
		text, err = extractPDF(data)
	case mediaType == contentTypeHTML || mediaType == "application/xhtml+xml":
		text, meta, err = extractHTML(data)
	case strings.HasPrefix(mediaType, "text/"):
		if !utf8.Valid(data) {
			return nil, fmt.Errorf("%w: %s is not valid UTF-8", ErrUnsupportedContentType, mediaType)
		}
		text = collapseWhitespace(string(data))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedContentType, mediaType)
	}
	if err != nil {
		return nil, err
	}
	if text == "" {
		return nil, ErrNoText
	}

	meta.ContentType = mediaType
	meta.ByteSize = int64(len(data))
	meta.WordCount = len(strings.Fields(text))
	return &generation.Document{Text: text, Metadata: meta}, nil
}

func detectMediaType(declared string, data []byte) string {
	if bytes.HasPrefix(data, []byte("%PDF-")) {
		return contentTypePDF
	}
	if declared != "" {
		if mt, _, err := mime.ParseMediaType(declared); err == nil && mt != "application/octet-stream" {
			return strings.ToLower(mt)
		}
	}
	mt, _, _ := mime.ParseMediaType(http.DetectContentType(data))
	return mt
}

func extractPDF(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: pdf reader: %v", ErrUnsupportedContentType, err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("%w: pdf plaintext: %v", ErrUnsupportedContentType, err)
	}
	b, err := io.ReadAll(plain)
	if err != nil {
		return "", fmt.Errorf("%w: pdf read: %v", ErrUnsupportedContentType, err)
	}
	return collapseWhitespace(string(b)), nil
}

// skipped elements never contribute text.
var skipped = map[atom.Atom]bool{
	atom.Script:   true,
	atom.Style:    true,
	atom.Noscript: true,
	atom.Template: true,
	atom.Svg:      true,
	atom.Nav:      true,
	atom.Footer:   true,
	atom.Iframe:   true,
}

// blocks end a run of text.
var blocks = map[atom.Atom]bool{
	atom.P: true, atom.Div: true, atom.Br: true, atom.Li: true,
	atom.H1: true, atom.H2: true, atom.H3: true, atom.H4: true, atom.H5: true, atom.H6: true,
	atom.Tr: true, atom.Section: true, atom.Article: true, atom.Blockquote: true, atom.Pre: true,
}

func extractHTML(data []byte) (string, domain.ContentMetadata, error) {
	var meta domain.ContentMetadata

	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return "", meta, fmt.Errorf("%w: html: %v", ErrUnsupportedContentType, err)
	}

	var b strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Title:
				if meta.Title == "" && n.FirstChild != nil {
					meta.Title = strings.Join(strings.Fields(n.FirstChild.Data), " ")
				}
				return
			case atom.Meta:
				readMeta(n, &meta)
				return
			}
			if skipped[n.DataAtom] {
				return
			}
		}
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
			b.WriteByte(' ')
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blocks[n.DataAtom] {
			b.WriteByte('\n')
		}
	}
	walk(doc)

	return collapseWhitespace(b.String()), meta, nil
}

func readMeta(n *html.Node, meta *domain.ContentMetadata) {
	var key, content string
	for _, a := range n.Attr {
		switch strings.ToLower(a.Key) {
		case "property", "name":
			key = strings.ToLower(a.Val)
		case "content":
			content = strings.TrimSpace(a.Val)
		}
	}
	switch key {
	case "og:site_name":
		meta.SiteName = content
	case "og:title":
		if content != "" {
			meta.Title = content
		}
	}
}

// collapseWhitespace keeps paragraph breaks but folds every other run of
// whitespace into a single space.
func collapseWhitespace(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if fields := strings.Fields(line); len(fields) > 0 {
			out = append(out, strings.Join(fields, " "))
		}
	}
	return strings.Join(out, "\n")
}

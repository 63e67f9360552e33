package domain

import (
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// UploadScheme is the scheme of synthetic references minted for uploads.
const UploadScheme = "upload"

// uploadHashPath prefixes the digest in an upload reference.
const uploadHashPath = "blake2b-256"

// MaxReferenceLength bounds accepted reference strings.
const MaxReferenceLength = 2048

// trackingParams are query parameters dropped during normalization.
var trackingParams = map[string]bool{
	"fbclid":  true,
	"gclid":   true,
	"mc_cid":  true,
	"mc_eid":  true,
	"ref_src": true,
	"igshid":  true,
}

// NormalizeReference returns the canonical dedup key for a reference.
// http and https URLs get a lower-case scheme and host, lose default ports,
// fragments and tracking parameters, and have their query sorted. Upload
// references are validated and returned in canonical form.
func NormalizeReference(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidReference)
	}
	if len(raw) > MaxReferenceLength {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidReference, MaxReferenceLength)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidReference, err)
	}

	scheme := strings.ToLower(u.Scheme)
	switch scheme {
	case UploadScheme:
		return normalizeUploadReference(u)
	case "http", "https":
	case "":
		return "", fmt.Errorf("%w: missing scheme", ErrInvalidReference)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedScheme, scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("%w: missing host", ErrInvalidReference)
	}
	host = strings.TrimSuffix(host, ".")

	port := u.Port()
	if (scheme == "http" && port == "80") || (scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host = net.JoinHostPort(host, port)
	} else if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}

	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
	}

	normalized := scheme + "://" + host + path
	if q := normalizeQuery(u.Query()); q != "" {
		normalized += "?" + q
	}
	return normalized, nil
}

func normalizeQuery(values url.Values) string {
	keys := make([]string, 0, len(values))
	for k := range values {
		lk := strings.ToLower(k)
		if trackingParams[lk] || strings.HasPrefix(lk, "utm_") {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		vs := append([]string(nil), values[k]...)
		sort.Strings(vs)
		for _, v := range vs {
			if b.Len() > 0 {
				b.WriteByte('&')
			}
			b.WriteString(url.QueryEscape(k))
			b.WriteByte('=')
			b.WriteString(url.QueryEscape(v))
		}
	}
	return b.String()
}

func normalizeUploadReference(u *url.URL) (string, error) {
	if !strings.EqualFold(u.Host, uploadHashPath) {
		return "", fmt.Errorf("%w: unknown upload digest %q", ErrInvalidReference, u.Host)
	}
	digest := strings.ToLower(strings.TrimPrefix(u.Path, "/"))
	if len(digest) != blake2b.Size256*2 {
		return "", fmt.Errorf("%w: malformed upload digest", ErrInvalidReference)
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return "", fmt.Errorf("%w: malformed upload digest", ErrInvalidReference)
	}
	return UploadScheme + "://" + uploadHashPath + "/" + digest, nil
}

// UploadReference mints the content-addressed reference for uploaded bytes.
func UploadReference(data []byte) string {
	return UploadScheme + "://" + uploadHashPath + "/" + ContentDigest(data)
}

// UploadDigest extracts the digest from a normalized upload reference.
func UploadDigest(normalizedRef string) (string, bool) {
	prefix := UploadScheme + "://" + uploadHashPath + "/"
	if !strings.HasPrefix(normalizedRef, prefix) {
		return "", false
	}
	return strings.TrimPrefix(normalizedRef, prefix), true
}

// IsUploadReference reports whether ref uses the upload scheme.
func IsUploadReference(ref string) bool {
	return strings.HasPrefix(ref, UploadScheme+"://")
}

// ContentDigest returns the hex BLAKE2b-256 digest of data.
func ContentDigest(data []byte) string {
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

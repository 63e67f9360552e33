// Package redact strips credentials, paths, queries and other internal detail
// from error text before it is logged at the edge or stored on a resource for
// callers to read.
package redact

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Placeholders substituted for redacted fragments.
const (
	RedactionPlaceholder          = "[REDACTED]"
	RedactedPathPlaceholder       = "[REDACTED_PATH]"
	RedactedCredentialPlaceholder = "[REDACTED_CREDENTIAL]"
	RedactedKeyPlaceholder        = "[REDACTED_KEY]"
)

// DefaultSummaryLength bounds error summaries shown to callers.
const DefaultSummaryLength = 500

const ellipsis = "..."

type rule struct {
	pattern     *regexp.Regexp
	placeholder string
}

// rules run in order; earlier rules see the unredacted text.
var rules = []rule{
	{regexp.MustCompile(`(?:goroutine \d+|panic:)[\s\S]*?(\n\t.*)+`), "[STACK_TRACE_REDACTED]"},
	{regexp.MustCompile(`(?i)(postgres|postgresql|redis|rediss|amqp|amqps|mysql|mongodb)://[^@\s]+@`), RedactedCredentialPlaceholder},
	{regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+\.[a-zA-Z0-9_-]+`), "[REDACTED_JWT]"},
	{regexp.MustCompile(`(?i)(password|passwd|pwd)([=:\s]?['"]?)[^'"&\s]{3,}`), RedactedCredentialPlaceholder},
	{regexp.MustCompile(`(?i)(api[_-]?key|token|secret|auth)(['"\s:=]+)[A-Za-z0-9_\-.~+/]{8,}`), RedactedKeyPlaceholder},
	{regexp.MustCompile(`\b(AKIA|AIza)[A-Za-z0-9_\-]{12,}`), RedactedKeyPlaceholder},
	{regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`), "[REDACTED_EMAIL]"},
	{regexp.MustCompile(`\b(SELECT|INSERT INTO|UPDATE|DELETE FROM)\s[\s\S]*`), "[REDACTED_SQL]"},
	{regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}(?::\d{1,5})?\b`), "[REDACTED_HOST]"},
	{regexp.MustCompile(`[A-Za-z]:\\[^\\\s]+(\\[^\\\s]+)+`), RedactedPathPlaceholder},
	{regexp.MustCompile(`(?:^|[\s"'(=])(/[\w.-]+){2,}`), " " + RedactedPathPlaceholder},
}

// String redacts sensitive information from s.
func String(s string) string {
	if s == "" {
		return s
	}
	for _, r := range rules {
		s = r.pattern.ReplaceAllString(s, r.placeholder)
	}
	return strings.TrimSpace(s)
}

// Error redacts sensitive information from an error's Error() output.
func Error(err error) string {
	if err == nil {
		return ""
	}
	return String(err.Error())
}

// Summary returns the redacted error text cut to at most limit bytes on a
// rune boundary. A limit of zero or less uses DefaultSummaryLength.
func Summary(err error, limit int) string {
	if limit <= 0 {
		limit = DefaultSummaryLength
	}
	return Truncate(Error(err), limit)
}

// Truncate cuts s to at most limit bytes on a rune boundary, marking the cut
// with an ellipsis.
func Truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	if limit <= len(ellipsis) {
		return s[:runeBoundary(s, limit)]
	}
	return s[:runeBoundary(s, limit-len(ellipsis))] + ellipsis
}

func runeBoundary(s string, n int) int {
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return n
}

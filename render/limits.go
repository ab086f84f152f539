package render

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/sonnes/drishti/core"
)

// TextLimits bounds plain-text rendering. A zero value for either field
// disables that cap.
type TextLimits struct {
	MaxChars int
	MaxLines int
}

// JSONLimits bounds the JSON tree walk. Five independent budgets; the first
// one to fire anywhere in the walk is recorded as the truncation reason.
type JSONLimits struct {
	MaxDepth       int
	MaxNodes       int
	MaxStringChars int
	MaxListItems   int
	MaxDictItems   int
}

// DefaultTextLimits keeps large text payloads responsive in the browser.
var DefaultTextLimits = TextLimits{MaxChars: 50_000}

// DefaultJSONLimits bounds arbitrary published structures.
var DefaultJSONLimits = JSONLimits{
	MaxDepth:       10,
	MaxNodes:       5_000,
	MaxStringChars: 1_000,
	MaxListItems:   200,
	MaxDictItems:   200,
}

// TruncateText applies the line cap, then the character cap. When either
// fires, a visible ellipsis marker is appended and the returned Truncation
// describes the original size and which cap fired first.
func TruncateText(s string, limits TextLimits) (string, *core.Truncation) {
	originalChars := len(s)
	originalLines := strings.Count(s, "\n") + 1

	hit := ""
	out := s

	if limits.MaxLines > 0 && originalLines > limits.MaxLines {
		lines := strings.SplitN(out, "\n", limits.MaxLines+1)
		out = strings.Join(lines[:limits.MaxLines], "\n")
		hit = "max_lines"
	}

	if limits.MaxChars > 0 && len(out) > limits.MaxChars {
		out = cutAtRuneBoundary(out, limits.MaxChars)
		if hit == "" {
			hit = "max_chars"
		}
	}

	if hit == "" {
		return s, &core.Truncation{Truncated: false}
	}

	return out + "\n…", &core.Truncation{
		Truncated: true,
		Reason:    "text truncated by limits",
		Details: map[string]any{
			"original_chars": originalChars,
			"original_lines": originalLines,
			"max_chars":      limits.MaxChars,
			"max_lines":      limits.MaxLines,
			"hit":            hit,
		},
	}
}

// safeScalarText formats a scalar for display, capped at maxChars. The
// second return reports whether the cap fired.
func safeScalarText(v any, maxChars int) (string, bool) {
	var s string
	switch x := v.(type) {
	case nil:
		s = "null"
	case string:
		s = x
	default:
		s = fmt.Sprintf("%v", x)
	}
	if maxChars > 0 && len(s) > maxChars {
		return cutAtRuneBoundary(s, maxChars) + "…", true
	}
	return s, false
}

// cutAtRuneBoundary truncates s to at most max bytes, backing up so a
// multibyte rune is never severed.
func cutAtRuneBoundary(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

package render

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncateTextNoLimitsHit(t *testing.T) {
	out, tr := TruncateText("hello", TextLimits{MaxChars: 100, MaxLines: 10})
	assert.Equal(t, "hello", out)
	require.NotNil(t, tr)
	assert.False(t, tr.Truncated)
}

func TestTruncateTextCharCap(t *testing.T) {
	out, tr := TruncateText(strings.Repeat("a", 100), TextLimits{MaxChars: 10})
	assert.True(t, strings.HasSuffix(out, "…"))
	assert.Len(t, out, 10+len("\n…"))
	require.True(t, tr.Truncated)
	assert.Equal(t, "max_chars", tr.Details["hit"])
	assert.Equal(t, 100, tr.Details["original_chars"])
}

func TestTruncateTextLineCapFiresFirst(t *testing.T) {
	text := strings.Repeat("line\n", 20)
	out, tr := TruncateText(text, TextLimits{MaxChars: 10, MaxLines: 3})
	require.True(t, tr.Truncated)
	// The line cap applies before the char cap and is recorded as the hit.
	assert.Equal(t, "max_lines", tr.Details["hit"])
	assert.Equal(t, 21, tr.Details["original_lines"])
	assert.True(t, strings.HasSuffix(out, "…"))
}

func TestTruncateTextCharCapKeepsRunesWhole(t *testing.T) {
	// Two-byte runes with an odd byte cap: a naive byte slice would sever
	// the rune at the cut point.
	out, tr := TruncateText(strings.Repeat("é", 10), TextLimits{MaxChars: 5})
	require.True(t, tr.Truncated)
	assert.True(t, utf8.ValidString(out))
	assert.Equal(t, "éé\n…", out)
}

func TestTruncateTextZeroLimitsDisabled(t *testing.T) {
	text := strings.Repeat("a\n", 1000)
	out, tr := TruncateText(text, TextLimits{})
	assert.Equal(t, text, out)
	assert.False(t, tr.Truncated)
}

func TestSafeScalarText(t *testing.T) {
	tests := []struct {
		name   string
		in     any
		max    int
		want   string
		capped bool
	}{
		{name: "nil", in: nil, max: 10, want: "null"},
		{name: "short string", in: "hi", max: 10, want: "hi"},
		{name: "long string capped", in: "abcdefghijk", max: 5, want: "abcde…", capped: true},
		{name: "multibyte capped at rune boundary", in: "ééé", max: 3, want: "é…", capped: true},
		{name: "number", in: 42, max: 10, want: "42"},
		{name: "bool", in: true, max: 10, want: "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, capped := safeScalarText(tt.in, tt.max)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.capped, capped)
		})
	}
}

package render

import (
	"html/template"
	"unicode/utf8"

	"github.com/sonnes/drishti/core"
)

// TextRenderer shows strings and byte payloads as escaped preformatted text.
type TextRenderer struct {
	limits TextLimits
}

// NewTextRenderer creates a TextRenderer with the given limits.
func NewTextRenderer(limits TextLimits) *TextRenderer {
	return &TextRenderer{limits: limits}
}

func (r *TextRenderer) Kind() core.ArtifactKind { return core.KindText }

func (r *TextRenderer) CanRender(obj any) bool {
	switch obj.(type) {
	case string, []byte:
		return true
	}
	return false
}

func (r *TextRenderer) Render(obj any, viewID string) core.RenderResult {
	text := toText(obj)
	out, truncation := TruncateText(text, r.limits)

	return core.RenderResult{
		Kind:       core.KindText,
		HTML:       wrapPre(out),
		MIME:       "text/html",
		Truncation: truncation,
		Meta:       map[string]any{"view_id": viewID, "length": len(text)},
	}
}

func toText(obj any) string {
	switch x := obj.(type) {
	case string:
		return x
	case []byte:
		if utf8.Valid(x) {
			return string(x)
		}
		// Lossy decode; invalid sequences become replacement runes.
		return string([]rune(string(x)))
	}
	return ""
}

func wrapPre(s string) template.HTML {
	return template.HTML(`<pre class="drishti-pre">` + escapeHTML(s) + `</pre>`)
}

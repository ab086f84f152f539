package render

import (
	"html/template"
	"strings"

	"github.com/sonnes/drishti/core"
)

// defaultSandbox deliberately omits allow-scripts and allow-same-origin.
const defaultSandbox = "allow-forms allow-modals allow-popups allow-downloads"

// HTMLRenderer renders HTML fragments safe-by-default: sanitized against an
// allow-list when a sanitizer is available, escaped preformatted text when
// not. A caller may explicitly request unsafe rendering, which isolates the
// raw fragment in a sandboxed inline frame instead of trusting it.
type HTMLRenderer struct {
	sanitizer *Sanitizer
	limits    TextLimits
}

// NewHTMLRenderer creates an HTMLRenderer. A nil sanitizer forces the
// fail-closed escaped mode for safe rendering.
func NewHTMLRenderer(s *Sanitizer) *HTMLRenderer {
	return &HTMLRenderer{sanitizer: s, limits: DefaultTextLimits}
}

func (r *HTMLRenderer) Kind() core.ArtifactKind { return core.KindHTML }

func (r *HTMLRenderer) CanRender(obj any) bool {
	switch x := obj.(type) {
	case string:
		return true
	case map[string]any:
		_, ok := x["html"]
		return ok
	}
	return false
}

func (r *HTMLRenderer) Render(obj any, viewID string) core.RenderResult {
	raw := ""
	unsafe := false
	sandbox := defaultSandbox

	switch x := obj.(type) {
	case string:
		raw = x
	case map[string]any:
		raw, _ = x["html"].(string)
		unsafe, _ = x["unsafe"].(bool)
		if sb, ok := x["sandbox"].(string); ok && sb != "" {
			sandbox = sb
		}
	}

	raw, truncation := TruncateText(raw, r.limits)

	if unsafe {
		return core.RenderResult{
			Kind:       core.KindHTML,
			HTML:       iframeHTML(raw, sandbox),
			MIME:       "text/html",
			Truncation: truncation,
			Meta: map[string]any{
				"view_id": viewID,
				"mode":    "unsafe_iframe",
				"sandbox": sandbox,
			},
		}
	}

	if r.sanitizer == nil {
		// Fail closed: no sanitizer means no live markup, only an escaped
		// preview of the source.
		html := `<div class="drishti-html drishti-html--escaped">` +
			`<div class="note">No HTML sanitizer available. Showing escaped preview.</div>` +
			`<pre class="drishti-pre drishti-pre--wrap">` + escapeHTML(raw) + `</pre>` +
			`</div>`
		return core.RenderResult{
			Kind:       core.KindHTML,
			HTML:       template.HTML(html),
			MIME:       "text/html",
			Truncation: truncation,
			Meta: map[string]any{
				"view_id": viewID,
				"mode":    "escaped_preview",
				"note":    "no sanitizer available; rendered escaped preview",
			},
		}
	}

	cleaned := r.sanitizer.Sanitize(raw)
	return core.RenderResult{
		Kind:       core.KindHTML,
		HTML:       template.HTML(`<div class="drishti-html drishti-html--sanitized">` + cleaned + `</div>`),
		MIME:       "text/html",
		Truncation: truncation,
		Meta: map[string]any{
			"view_id": viewID,
			"mode":    "sanitized",
		},
	}
}

// iframeHTML embeds raw HTML in a sandboxed iframe via srcdoc so the
// fragment never touches the live page DOM.
func iframeHTML(raw, sandbox string) template.HTML {
	srcdoc := strings.ReplaceAll(raw, "&", "&amp;")
	srcdoc = strings.ReplaceAll(srcdoc, `"`, "&quot;")
	return template.HTML(`<div class="drishti-html-iframe-wrap">` +
		`<iframe class="drishti-html-iframe" sandbox="` + escapeHTML(sandbox) + `" srcdoc="` + srcdoc + `"></iframe>` +
		`</div>`)
}

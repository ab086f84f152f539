package render

import (
	"bytes"
	"html/template"

	"github.com/sonnes/drishti/core"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
)

// MarkdownRenderer converts markdown to HTML with goldmark (GFM + syntax
// highlighting) and sanitizes the result. Without a sanitizer it fails
// closed and shows the escaped source instead.
type MarkdownRenderer struct {
	md        goldmark.Markdown
	sanitizer *Sanitizer
	limits    TextLimits
}

// NewMarkdownRenderer creates a MarkdownRenderer. Highlighting uses CSS
// classes rather than inline styles so the sanitizer's attribute allow-list
// stays narrow.
func NewMarkdownRenderer(s *Sanitizer) *MarkdownRenderer {
	md := goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle("dracula"),
				highlighting.WithFormatOptions(
					chromahtml.WithClasses(true),
				),
			),
		),
	)
	return &MarkdownRenderer{md: md, sanitizer: s, limits: DefaultTextLimits}
}

func (r *MarkdownRenderer) Kind() core.ArtifactKind { return core.KindMarkdown }

func (r *MarkdownRenderer) CanRender(obj any) bool {
	_, ok := obj.(string)
	return ok
}

func (r *MarkdownRenderer) Render(obj any, viewID string) core.RenderResult {
	text, _ := obj.(string)
	text, truncation := TruncateText(text, r.limits)

	if r.sanitizer == nil {
		html := `<div class="drishti-markdown drishti-markdown--escaped">` +
			`<div class="note">No HTML sanitizer available. Showing escaped markdown source.</div>` +
			`<pre class="drishti-pre drishti-pre--wrap">` + escapeHTML(text) + `</pre>` +
			`</div>`
		return core.RenderResult{
			Kind:       core.KindMarkdown,
			HTML:       template.HTML(html),
			MIME:       "text/html",
			Truncation: truncation,
			Meta: map[string]any{
				"view_id":  viewID,
				"rendered": false,
				"mode":     "escaped_preview",
				"note":     "no sanitizer available; rendered escaped preview",
			},
		}
	}

	var buf bytes.Buffer
	if err := r.md.Convert([]byte(text), &buf); err != nil {
		return core.RenderResult{
			Kind:       core.KindMarkdown,
			HTML:       wrapPre(text),
			MIME:       "text/html",
			Truncation: truncation,
			Meta: map[string]any{
				"view_id":  viewID,
				"rendered": false,
				"error":    err.Error(),
			},
		}
	}

	cleaned := r.sanitizer.Sanitize(buf.String())
	return core.RenderResult{
		Kind:       core.KindMarkdown,
		HTML:       template.HTML(`<div class="drishti-markdown">` + cleaned + `</div>`),
		MIME:       "text/html",
		Truncation: truncation,
		Meta: map[string]any{
			"view_id":  viewID,
			"rendered": true,
		},
	}
}

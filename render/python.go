package render

import (
	"bytes"
	"html/template"

	"github.com/sonnes/drishti/core"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
)

// PythonRenderer shows a string as syntax-highlighted Python source. Chroma
// emits fully escaped markup with inline styles; when highlighting fails the
// renderer degrades to an escaped code block.
type PythonRenderer struct{}

func (r *PythonRenderer) Kind() core.ArtifactKind { return core.KindPython }

func (r *PythonRenderer) CanRender(obj any) bool {
	_, ok := obj.(string)
	return ok
}

func (r *PythonRenderer) Render(obj any, viewID string) core.RenderResult {
	code, _ := obj.(string)
	code, truncation := TruncateText(code, DefaultTextLimits)

	html, highlighted := highlightPython(code)

	return core.RenderResult{
		Kind:       core.KindPython,
		HTML:       html,
		MIME:       "text/html",
		Truncation: truncation,
		Meta:       map[string]any{"view_id": viewID, "highlighted": highlighted},
	}
}

func highlightPython(code string) (template.HTML, bool) {
	lexer := lexers.Get("python")
	if lexer == nil {
		lexer = lexers.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return fallbackCode(code), false
	}

	style := styles.Get("dracula")
	if style == nil {
		style = styles.Fallback
	}

	var buf bytes.Buffer
	formatter := chromahtml.New(chromahtml.WithClasses(false))
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return fallbackCode(code), false
	}

	return template.HTML(`<div class="drishti-code">` + buf.String() + `</div>`), true
}

func fallbackCode(code string) template.HTML {
	return template.HTML(`<pre class="drishti-code"><code class="language-python">` +
		escapeHTML(code) + `</code></pre>`)
}

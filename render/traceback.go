package render

import (
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"github.com/sonnes/drishti/core"
)

// TracebackRenderer renders a structured exception traceback: a header with
// the exception type and message, then one collapsible frame per stack
// entry with the failing line highlighted between its context lines.
type TracebackRenderer struct{}

func (r *TracebackRenderer) Kind() core.ArtifactKind { return core.KindTraceback }

func (r *TracebackRenderer) CanRender(obj any) bool {
	switch x := obj.(type) {
	case core.TracebackPayload, *core.TracebackPayload:
		return true
	case map[string]any:
		// Payloads arriving over HTTP decode as generic maps.
		if x["type"] != "traceback" {
			return false
		}
		_, ok := x["frames"].([]any)
		return ok
	}
	return false
}

func (r *TracebackRenderer) Render(obj any, viewID string) core.RenderResult {
	payload, ok := coerceTraceback(obj)
	if !ok {
		return fallbackResult(obj, map[string]any{"fallback": true, "view_id": viewID})
	}

	excType := payload.ExcType
	if excType == "" {
		excType = "Exception"
	}

	var b strings.Builder
	b.WriteString(`<div class="drishti-traceback">`)
	b.WriteString(`<div class="drishti-traceback__header"><strong>`)
	b.WriteString(escapeHTML(excType))
	b.WriteString(`</strong>`)
	if payload.ExcMsg != "" {
		b.WriteString(": " + escapeHTML(payload.ExcMsg))
	}
	b.WriteString(`</div><div class="drishti-traceback__frames">`)

	for i, fr := range payload.Frames {
		where := fr.Filename
		if where == "" {
			where = "<?>"
		}
		if fr.Lineno > 0 {
			where = fmt.Sprintf("%s:%d", where, fr.Lineno)
		}
		function := fr.Function
		if function == "" {
			function = "<module>"
		}

		var ctx []string
		for _, s := range fr.ContextBefore {
			ctx = append(ctx, escapeHTML(s))
		}
		if fr.Line != "" {
			ctx = append(ctx, "<mark>"+escapeHTML(fr.Line)+"</mark>")
		}
		for _, s := range fr.ContextAfter {
			ctx = append(ctx, escapeHTML(s))
		}

		open := ""
		if i == 0 {
			open = " open"
		}
		b.WriteString(`<details class="drishti-traceback__frame"` + open + `>`)
		b.WriteString(`<summary><span class="drishti-traceback__func">` + escapeHTML(function) + `</span> `)
		b.WriteString(`<span class="drishti-traceback__where">` + escapeHTML(where) + `</span></summary>`)
		if len(ctx) > 0 {
			b.WriteString(`<pre class="drishti-traceback__code">` + strings.Join(ctx, "\n") + `</pre>`)
		}
		b.WriteString(`</details>`)
	}
	b.WriteString(`</div></div>`)

	return core.RenderResult{
		Kind: core.KindTraceback,
		HTML: template.HTML(b.String()),
		MIME: "text/html",
		Meta: map[string]any{"view_id": viewID, "frames": len(payload.Frames)},
	}
}

// coerceTraceback accepts the typed payload or its decoded-JSON map form.
func coerceTraceback(obj any) (core.TracebackPayload, bool) {
	switch x := obj.(type) {
	case core.TracebackPayload:
		return x, true
	case *core.TracebackPayload:
		if x == nil {
			return core.TracebackPayload{}, false
		}
		return *x, true
	case map[string]any:
		data, err := json.Marshal(x)
		if err != nil {
			return core.TracebackPayload{}, false
		}
		var payload core.TracebackPayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return core.TracebackPayload{}, false
		}
		return payload, true
	}
	return core.TracebackPayload{}, false
}

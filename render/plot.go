package render

import (
	"html/template"
	"net/url"

	"github.com/sonnes/drishti/core"
)

// PlotRenderer references the plot route instead of inlining PNG bytes, so
// the browser can cache and download the image.
type PlotRenderer struct{}

func (r *PlotRenderer) Kind() core.ArtifactKind { return core.KindPlot }

func (r *PlotRenderer) CanRender(obj any) bool {
	_, ok := obj.([]byte)
	return ok
}

func (r *PlotRenderer) Render(obj any, viewID string) core.RenderResult {
	src := "/plot?view=" + url.QueryEscape(viewID)
	html := `<div class="drishti-plot"><img src="` + escapeHTML(src) + `" alt="Plot" /></div>`

	return core.RenderResult{
		Kind:       core.KindPlot,
		HTML:       template.HTML(html),
		MIME:       "text/html",
		Truncation: &core.Truncation{Truncated: false},
		Meta:       map[string]any{"view_id": viewID, "src": src},
	}
}

package render

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonnes/drishti/core"
)

func TestTextRendererEscapes(t *testing.T) {
	r := NewTextRenderer(DefaultTextLimits)

	out := r.Render("<script>alert(1)</script>", "v1")

	assert.Equal(t, core.KindText, out.Kind)
	assert.NotContains(t, string(out.HTML), "<script>")
	assert.Contains(t, string(out.HTML), "&lt;script&gt;")
}

func TestTextRendererBytes(t *testing.T) {
	r := NewTextRenderer(DefaultTextLimits)

	out := r.Render([]byte("hello"), "v1")
	assert.Contains(t, string(out.HTML), "hello")

	// Invalid UTF-8 is decoded lossily instead of failing.
	out = r.Render([]byte{0xff, 0xfe, 'h', 'i'}, "v1")
	assert.Contains(t, string(out.HTML), "hi")
	assert.Contains(t, string(out.HTML), "�")
}

func TestTextRendererTruncates(t *testing.T) {
	r := NewTextRenderer(TextLimits{MaxChars: 10})

	out := r.Render(strings.Repeat("a", 100), "v1")

	require.NotNil(t, out.Truncation)
	assert.True(t, out.Truncation.Truncated)
	assert.Equal(t, 100, out.Meta["length"])
}

func TestPythonRendererHighlights(t *testing.T) {
	r := &PythonRenderer{}

	out := r.Render("def f():\n    return 1\n", "v1")

	assert.Equal(t, core.KindPython, out.Kind)
	assert.Equal(t, true, out.Meta["highlighted"])
	html := string(out.HTML)
	assert.Contains(t, html, "drishti-code")
	// Chroma escapes the source; the keyword survives as visible text.
	assert.Contains(t, html, "def")
	assert.NotContains(t, html, "<def")
}

func TestPythonRendererEscapesMarkupInCode(t *testing.T) {
	r := &PythonRenderer{}

	out := r.Render(`s = "<script>alert(1)</script>"`, "v1")

	assert.NotContains(t, string(out.HTML), "<script>")
}

func TestTracebackRenderer(t *testing.T) {
	r := &TracebackRenderer{}

	payload := core.TracebackPayload{
		ExcType: "ValueError",
		ExcMsg:  "bad input",
		Frames: []core.TracebackFrame{
			{
				Filename:      "train.py",
				Lineno:        42,
				Function:      "step",
				Line:          "loss = compute(x)",
				ContextBefore: []string{"x = batch[0]"},
				ContextAfter:  []string{"return loss"},
			},
			{Filename: "main.py", Lineno: 7, Function: "main", Line: "step()"},
		},
	}

	out := r.Render(payload, "v1")

	html := string(out.HTML)
	assert.Equal(t, core.KindTraceback, out.Kind)
	assert.Equal(t, 2, out.Meta["frames"])
	assert.Contains(t, html, "ValueError")
	assert.Contains(t, html, "bad input")
	assert.Contains(t, html, "train.py:42")
	assert.Contains(t, html, "<mark>loss = compute(x)</mark>")
	// Only the first frame starts expanded.
	assert.Equal(t, 1, strings.Count(html, "<details class=\"drishti-traceback__frame\" open>"))
}

func TestTracebackRendererFromDecodedMap(t *testing.T) {
	r := &TracebackRenderer{}

	obj := map[string]any{
		"type":     "traceback",
		"exc_type": "KeyError",
		"frames": []any{
			map[string]any{"filename": "a.py", "lineno": float64(3), "function": "f", "line": "d[k]"},
		},
	}
	require.True(t, r.CanRender(obj))

	out := r.Render(obj, "v1")
	assert.Contains(t, string(out.HTML), "KeyError")
	assert.Contains(t, string(out.HTML), "a.py:3")
}

func TestTracebackCanRenderRejectsPlainMaps(t *testing.T) {
	r := &TracebackRenderer{}

	assert.False(t, r.CanRender(map[string]any{"type": "other"}))
	assert.False(t, r.CanRender(map[string]any{"type": "traceback"}))
	assert.False(t, r.CanRender("Traceback (most recent call last):"))
}

func TestImageRenderer(t *testing.T) {
	r := &ImageRenderer{}

	out := r.Render(core.ImagePayload{
		MIME:     "image/png",
		DataB64:  "iVBOR",
		Filename: "chart.png",
	}, "v1")

	html := string(out.HTML)
	assert.Equal(t, core.KindImage, out.Kind)
	assert.Contains(t, html, `src="data:image/png;base64,iVBOR"`)
	assert.Contains(t, html, "chart.png")
}

func TestImageRendererFromDecodedMap(t *testing.T) {
	r := &ImageRenderer{}

	obj := map[string]any{"mime": "image/png", "data_b64": "abcd"}
	require.True(t, r.CanRender(obj))

	out := r.Render(obj, "v1")
	assert.Contains(t, string(out.HTML), "data:image/png;base64,abcd")
}

func TestPlotRendererReferencesPlotRoute(t *testing.T) {
	r := &PlotRenderer{}

	require.True(t, r.CanRender([]byte("png")))
	assert.False(t, r.CanRender("not bytes"))

	out := r.Render([]byte("png"), "train:loss")
	assert.Contains(t, string(out.HTML), "/plot?view=train%3Aloss")
}

func TestTableRendererRendersSample(t *testing.T) {
	r := &TableRenderer{}

	out := r.Render(core.TableSample{
		Columns:      []string{"step", "loss"},
		Rows:         [][]any{{1, 0.9}, {2, "<b>x</b>"}},
		TotalRows:    2,
		ReturnedRows: 2,
	}, "v1")

	html := string(out.HTML)
	assert.Equal(t, core.KindTable, out.Kind)
	assert.Contains(t, html, "<th>step</th>")
	assert.Contains(t, html, "<td>1</td>")
	assert.NotContains(t, html, "<b>x</b>")
	assert.False(t, out.Truncation.Truncated)
}

func TestTableRendererNotesCappedSample(t *testing.T) {
	r := &TableRenderer{}

	out := r.Render(core.TableSample{
		Columns:      []string{"x"},
		Rows:         [][]any{{1}},
		TotalRows:    500,
		ReturnedRows: 1,
	}, "v1")

	assert.Contains(t, string(out.HTML), "+499 more rows")
	require.True(t, out.Truncation.Truncated)
	assert.Equal(t, "max_rows", out.Truncation.Details["hit"])
}

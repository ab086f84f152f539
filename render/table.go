package render

import (
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"github.com/sonnes/drishti/core"
)

// TableRenderer renders a bounded table sample as a real HTML table with a
// "+N more rows" note when the sample was cut from a larger table.
type TableRenderer struct{}

func (r *TableRenderer) Kind() core.ArtifactKind { return core.KindTable }

func (r *TableRenderer) CanRender(obj any) bool {
	switch x := obj.(type) {
	case core.TableSample, *core.TableSample:
		return true
	case map[string]any:
		_, hasCols := x["columns"]
		_, hasRows := x["rows"]
		return hasCols && hasRows
	}
	return false
}

func (r *TableRenderer) Render(obj any, viewID string) core.RenderResult {
	sample, ok := coerceTable(obj)
	if !ok {
		return fallbackResult(obj, map[string]any{"fallback": true, "view_id": viewID})
	}

	var b strings.Builder
	b.WriteString(`<div class="drishti-table"><table><thead><tr>`)
	for _, col := range sample.Columns {
		b.WriteString("<th>" + escapeHTML(col) + "</th>")
	}
	b.WriteString("</tr></thead><tbody>")

	for _, row := range sample.Rows {
		b.WriteString("<tr>")
		for _, cell := range row {
			s, _ := safeScalarText(cell, DefaultJSONLimits.MaxStringChars)
			b.WriteString("<td>" + escapeHTML(s) + "</td>")
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</tbody></table>")

	truncation := &core.Truncation{Truncated: false}
	if sample.TotalRows > sample.ReturnedRows {
		more := sample.TotalRows - sample.ReturnedRows
		b.WriteString(`<div class="drishti-table__more">` +
			escapeHTML(fmt.Sprintf("+%d more rows", more)) + `</div>`)
		truncation = &core.Truncation{
			Truncated: true,
			Reason:    "table sample capped",
			Details: map[string]any{
				"total_rows":    sample.TotalRows,
				"returned_rows": sample.ReturnedRows,
				"hit":           "max_rows",
			},
		}
	}
	b.WriteString("</div>")

	return core.RenderResult{
		Kind:       core.KindTable,
		HTML:       template.HTML(b.String()),
		MIME:       "text/html",
		Truncation: truncation,
		Meta: map[string]any{
			"view_id":  viewID,
			"data_src": "/table/data?view=" + viewID,
		},
	}
}

func coerceTable(obj any) (core.TableSample, bool) {
	switch x := obj.(type) {
	case core.TableSample:
		return x, true
	case *core.TableSample:
		if x == nil {
			return core.TableSample{}, false
		}
		return *x, true
	case map[string]any:
		data, err := json.Marshal(x)
		if err != nil {
			return core.TableSample{}, false
		}
		var sample core.TableSample
		if err := json.Unmarshal(data, &sample); err != nil {
			return core.TableSample{}, false
		}
		return sample, true
	}
	return core.TableSample{}, false
}

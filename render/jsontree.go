package render

import (
	"fmt"
	"html/template"
	"reflect"
	"sort"
	"strings"

	"github.com/sonnes/drishti/core"
)

// JSONTreeRenderer renders maps and slices as a collapsible tree, enforcing
// five independent budgets: depth, total visited nodes, items per map, items
// per list, and characters per scalar.
type JSONTreeRenderer struct {
	limits JSONLimits
}

// NewJSONTreeRenderer creates a JSONTreeRenderer with the given limits.
func NewJSONTreeRenderer(limits JSONLimits) *JSONTreeRenderer {
	return &JSONTreeRenderer{limits: limits}
}

func (r *JSONTreeRenderer) Kind() core.ArtifactKind { return core.KindJSON }

func (r *JSONTreeRenderer) CanRender(obj any) bool {
	if _, ok := obj.([]byte); ok {
		return false
	}
	switch reflect.ValueOf(obj).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		return true
	}
	return false
}

// jsonWalk carries the shared budgets through the recursive walk. The first
// limit to fire anywhere is recorded as the single hit for the whole
// truncation record.
type jsonWalk struct {
	limits    JSONLimits
	nodes     int
	truncated bool
	hit       string
}

func (w *jsonWalk) mark(hit string) {
	w.truncated = true
	if w.hit == "" {
		w.hit = hit
	}
}

func (r *JSONTreeRenderer) Render(obj any, viewID string) core.RenderResult {
	w := &jsonWalk{limits: r.limits}
	body := renderNode(obj, w, 0, "root")

	truncation := &core.Truncation{Truncated: false}
	if w.truncated {
		truncation = &core.Truncation{
			Truncated: true,
			Reason:    "json tree truncated by limits",
			Details: map[string]any{
				"max_depth":        w.limits.MaxDepth,
				"max_nodes":        w.limits.MaxNodes,
				"max_string_chars": w.limits.MaxStringChars,
				"max_list_items":   w.limits.MaxListItems,
				"max_dict_items":   w.limits.MaxDictItems,
				"visited_nodes":    w.nodes,
				"hit":              w.hit,
			},
		}
	}

	return core.RenderResult{
		Kind:       core.KindJSON,
		HTML:       template.HTML(`<div class="drishti-json">` + body + `</div>`),
		MIME:       "text/html",
		Truncation: truncation,
		Meta:       map[string]any{"view_id": viewID, "visited_nodes": w.nodes},
	}
}

// renderNode counts every node (container or scalar) against the node budget
// before descending. Depth or node overflow renders an ellipsis badge and
// stops the walk below this node.
func renderNode(obj any, w *jsonWalk, depth int, label string) string {
	w.nodes++
	if w.nodes > w.limits.MaxNodes {
		w.mark("max_nodes")
		return badge(label+": …", "node limit")
	}
	if depth > w.limits.MaxDepth {
		w.mark("max_depth")
		return badge(label+": …", "depth limit")
	}

	switch m := obj.(type) {
	case map[string]any:
		return renderMap(m, w, depth, label)
	case []any:
		return renderList(m, w, depth, label)
	}

	v := reflect.ValueOf(obj)
	switch v.Kind() {
	case reflect.Map:
		coerced := make(map[string]any, v.Len())
		iter := v.MapRange()
		for iter.Next() {
			coerced[fmt.Sprintf("%v", iter.Key().Interface())] = iter.Value().Interface()
		}
		return renderMap(coerced, w, depth, label)
	case reflect.Slice, reflect.Array:
		coerced := make([]any, v.Len())
		for i := 0; i < v.Len(); i++ {
			coerced[i] = v.Index(i).Interface()
		}
		return renderList(coerced, w, depth, label)
	}

	return renderScalar(obj, w, label)
}

func renderMap(m map[string]any, w *jsonWalk, depth int, label string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	total := len(keys)

	shown := keys
	if total > w.limits.MaxDictItems {
		w.mark("max_dict_items")
		shown = keys[:w.limits.MaxDictItems]
	}

	var items []string
	for _, k := range shown {
		items = append(items, renderNode(m[k], w, depth+1, k))
		if w.truncated && (w.hit == "max_nodes" || w.hit == "max_depth") {
			// Global budgets stop the whole container, not just this child.
			break
		}
	}

	if total > len(shown) {
		items = append(items, badge(fmt.Sprintf("… %d more keys", total-len(shown)), "map item limit"))
	}

	return container(fmt.Sprintf("%s {...} (%d keys)", escapeHTML(label), total), items)
}

func renderList(xs []any, w *jsonWalk, depth int, label string) string {
	total := len(xs)

	shown := xs
	if total > w.limits.MaxListItems {
		w.mark("max_list_items")
		shown = xs[:w.limits.MaxListItems]
	}

	var items []string
	for i, v := range shown {
		items = append(items, renderNode(v, w, depth+1, fmt.Sprintf("[%d]", i)))
		if w.truncated && (w.hit == "max_nodes" || w.hit == "max_depth") {
			break
		}
	}

	if total > len(shown) {
		items = append(items, badge(fmt.Sprintf("… %d more items", total-len(shown)), "list item limit"))
	}

	return container(fmt.Sprintf("%s [...] (%d items)", escapeHTML(label), total), items)
}

func renderScalar(v any, w *jsonWalk, label string) string {
	s, capped := safeScalarText(v, w.limits.MaxStringChars)
	if capped {
		w.mark("max_string_chars")
	}
	return "<span><strong>" + escapeHTML(label) + "</strong>: " + escapeHTML(s) + "</span>"
}

func container(summary string, items []string) string {
	var b strings.Builder
	b.WriteString("<details open><summary>")
	b.WriteString(summary)
	b.WriteString("</summary><ul>")
	for _, item := range items {
		b.WriteString("<li>")
		b.WriteString(item)
		b.WriteString("</li>")
	}
	b.WriteString("</ul></details>")
	return b.String()
}

func badge(text, reason string) string {
	return `<span class="drishti-badge" title="` + escapeHTML(reason) + `">` + escapeHTML(text) + `</span>`
}

// Package render turns arbitrary, untyped view payloads into bounded, safe
// HTML fragments. A Registry holds an ordered list of renderers; selection
// prefers code/text interpretations for ambiguous strings so arbitrary text
// is never treated as live markup.
package render

import (
	"fmt"
	"html"
	"strings"
	"unicode"

	"github.com/sonnes/drishti/core"
)

// Renderer converts one payload shape into a RenderResult. Render must be
// total: it degrades to escaped output rather than failing.
type Renderer interface {
	// Kind is the fixed artifact kind this renderer produces.
	Kind() core.ArtifactKind

	// CanRender reports whether this renderer accepts the object.
	CanRender(obj any) bool

	// Render produces a sanitized HTML fragment for the object.
	Render(obj any, viewID string) core.RenderResult
}

// Registry is an ordered collection of renderers. Order matters: more
// specific renderers come first for the first-match fallback.
type Registry struct {
	renderers []Renderer
}

// NewRegistry creates a registry with the given renderers, in order.
func NewRegistry(renderers ...Renderer) *Registry {
	return &Registry{renderers: renderers}
}

// Default builds the standard registry. A nil sanitizer puts the markdown
// and HTML renderers into fail-closed escaped mode.
func Default(s *Sanitizer) *Registry {
	// Order matters twice: more specific renderers come first for the
	// first-match fallback, and text must come before html.
	return NewRegistry(
		&PlotRenderer{},
		&TableRenderer{},
		&ImageRenderer{},
		NewMarkdownRenderer(s),
		NewJSONTreeRenderer(DefaultJSONLimits),
		&PythonRenderer{},
		&TracebackRenderer{},
		NewTextRenderer(DefaultTextLimits),
		NewHTMLRenderer(s),
	)
}

// Register appends a renderer to the selection order.
func (reg *Registry) Register(r Renderer) {
	reg.renderers = append(reg.renderers, r)
}

// stringPriority is the fixed order tried for hint-less strings before the
// HTML renderer is ever considered.
var stringPriority = []core.ArtifactKind{
	core.KindPython,
	core.KindTraceback,
	core.KindText,
	core.KindJSON,
}

// ChooseRenderer selects a renderer for obj. An explicit kind hint wins.
// Hint-less strings go through the code/text priority list first; the HTML
// renderer is only eligible when the string conservatively looks like
// markup. Returns nil when nothing accepts the object.
func (reg *Registry) ChooseRenderer(obj any, kindHint core.ArtifactKind) Renderer {
	if kindHint != "" {
		for _, r := range reg.renderers {
			if r.Kind() == kindHint && r.CanRender(obj) {
				return r
			}
		}
	}

	if s, ok := obj.(string); ok {
		for _, kind := range stringPriority {
			for _, r := range reg.renderers {
				if r.Kind() == kind && r.CanRender(obj) {
					return r
				}
			}
		}

		if looksLikeHTML(s) {
			for _, r := range reg.renderers {
				if r.Kind() == core.KindHTML && r.CanRender(obj) {
					return r
				}
			}
		}

		for _, r := range reg.renderers {
			if r.Kind() == core.KindHTML {
				continue
			}
			if r.CanRender(obj) {
				return r
			}
		}
		for _, r := range reg.renderers {
			if r.CanRender(obj) {
				return r
			}
		}
		return nil
	}

	for _, r := range reg.renderers {
		if r.CanRender(obj) {
			return r
		}
	}
	return nil
}

// RenderAny renders obj with the selected renderer, falling back to an
// escaped text representation when nothing accepts it. It never panics and
// never returns unescaped input.
func (reg *Registry) RenderAny(obj any, viewID string, kindHint core.ArtifactKind) (res core.RenderResult) {
	defer func() {
		if r := recover(); r != nil {
			res = fallbackResult(obj, map[string]any{"fallback": true, "panic": fmt.Sprint(r)})
		}
	}()

	r := reg.ChooseRenderer(obj, kindHint)
	if r == nil {
		return fallbackResult(obj, map[string]any{"fallback": true})
	}
	return r.Render(obj, viewID)
}

func fallbackResult(obj any, meta map[string]any) core.RenderResult {
	repr := fmt.Sprintf("%#v", obj)
	repr, truncation := TruncateText(repr, DefaultTextLimits)
	return core.RenderResult{
		Kind:       core.KindText,
		HTML:       wrapPre(repr),
		MIME:       "text/html",
		Truncation: truncation,
		Meta:       meta,
	}
}

// htmlStarters are tag prefixes that mark a string as markup even when the
// first tag token is not a plain alphabetic name.
var htmlStarters = []string{
	"<!doctype",
	"<html",
	"<div",
	"<span",
	"<p",
	"<pre",
	"<code",
	"<table",
	"<details",
	"<summary",
}

// looksLikeHTML is a conservative heuristic: the trimmed text must start
// with "<", contain a ">" within a bounded lookahead, and open with a
// tag-ish token.
func looksLikeHTML(s string) bool {
	t := strings.TrimLeft(s, " \t\r\n")
	if !strings.HasPrefix(t, "<") {
		return false
	}
	head := t
	if len(head) > 2000 {
		head = head[:2000]
	}
	if !strings.Contains(head, ">") {
		return false
	}
	lower := strings.ToLower(head)
	for _, starter := range htmlStarters {
		if strings.HasPrefix(lower, starter) {
			return true
		}
	}
	r := []rune(head)
	return len(r) > 1 && unicode.IsLetter(r[1])
}

func escapeHTML(s string) string {
	return html.EscapeString(s)
}

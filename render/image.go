package render

import (
	"encoding/json"
	"html/template"

	"github.com/sonnes/drishti/core"
)

// ImageRenderer embeds a published image as a data URI.
type ImageRenderer struct{}

func (r *ImageRenderer) Kind() core.ArtifactKind { return core.KindImage }

func (r *ImageRenderer) CanRender(obj any) bool {
	switch x := obj.(type) {
	case core.ImagePayload, *core.ImagePayload:
		return true
	case map[string]any:
		_, hasData := x["data_b64"]
		_, hasMIME := x["mime"]
		return hasData && hasMIME
	}
	return false
}

func (r *ImageRenderer) Render(obj any, viewID string) core.RenderResult {
	payload, ok := coerceImage(obj)
	if !ok {
		return fallbackResult(obj, map[string]any{"fallback": true, "view_id": viewID})
	}

	mime := payload.MIME
	if mime == "" {
		mime = "application/octet-stream"
	}

	html := `<div class="drishti-image">`
	if payload.Filename != "" {
		html += `<div class="drishti-image__name">` + escapeHTML(payload.Filename) + `</div>`
	}
	html += `<img src="data:` + escapeHTML(mime) + `;base64,` + escapeHTML(payload.DataB64) + `" alt="" />` +
		`</div>`

	return core.RenderResult{
		Kind: core.KindImage,
		HTML: template.HTML(html),
		MIME: "text/html",
		Meta: map[string]any{"view_id": viewID, "mime": mime},
	}
}

func coerceImage(obj any) (core.ImagePayload, bool) {
	switch x := obj.(type) {
	case core.ImagePayload:
		return x, true
	case *core.ImagePayload:
		if x == nil {
			return core.ImagePayload{}, false
		}
		return *x, true
	case map[string]any:
		data, err := json.Marshal(x)
		if err != nil {
			return core.ImagePayload{}, false
		}
		var payload core.ImagePayload
		if err := json.Unmarshal(data, &payload); err != nil {
			return core.ImagePayload{}, false
		}
		return payload, true
	}
	return core.ImagePayload{}, false
}

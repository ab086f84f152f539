package server

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/sonnes/drishti/core"
	"github.com/sonnes/drishti/store"
)

// PublishRequest is the payload accepted by POST /publish. Watcher loops
// build the same request locally, so both populations go through one
// accept/throttle/write path.
type PublishRequest struct {
	Kind    string `json:"kind"` // "plot" | "table" | "artifact"
	ViewID  string `json:"view_id,omitempty"`
	Section string `json:"section,omitempty"`
	Label   string `json:"label,omitempty"`

	PlotPNGB64 string            `json:"plot_png_b64,omitempty"`
	Table      *core.TableSample `json:"table,omitempty"`

	Artifact     any    `json:"artifact,omitempty"`
	ArtifactKind string `json:"artifact_kind,omitempty"`

	UpdateLimitS *float64 `json:"update_limit_s,omitempty"`
	Force        bool     `json:"force,omitempty"`
}

// PublishResponse reports the outcome of a publish. Ignored with reason
// "throttled" means the view's throttle window had not elapsed.
type PublishResponse struct {
	OK      bool   `json:"ok"`
	Ignored bool   `json:"ignored"`
	Reason  string `json:"reason,omitempty"`
	ViewID  string `json:"view_id"`
}

// RequestError marks a publish failure as the caller's fault (bad shape,
// bad encoding). The store is never mutated before validation passes.
type RequestError struct {
	msg string
}

func (e *RequestError) Error() string { return e.msg }

func requestErrorf(format string, args ...any) error {
	return &RequestError{msg: fmt.Sprintf(format, args...)}
}

// Publisher funnels publishes into the store: validate, throttle-gate,
// register, write, note. It is the single write path shared by the HTTP
// handler and the file watchers.
type Publisher struct {
	store *store.Store
}

// NewPublisher creates a Publisher writing into st.
func NewPublisher(st *store.Store) *Publisher {
	return &Publisher{store: st}
}

var artifactKinds = map[string]core.ArtifactKind{
	"text":      core.KindText,
	"json":      core.KindJSON,
	"markdown":  core.KindMarkdown,
	"image":     core.KindImage,
	"html":      core.KindHTML,
	"python":    core.KindPython,
	"traceback": core.KindTraceback,
}

// Publish validates and applies one publish request. A returned
// *RequestError means the payload was malformed and nothing was written.
func (p *Publisher) Publish(req PublishRequest) (PublishResponse, error) {
	var (
		png      []byte
		artKind  core.ArtifactKind
		viewKind store.ViewKind
	)

	// Validate shape fully before any store mutation.
	switch req.Kind {
	case "plot":
		if req.PlotPNGB64 == "" {
			return PublishResponse{}, requestErrorf("plot publish requires plot_png_b64")
		}
		decoded, err := base64.StdEncoding.DecodeString(req.PlotPNGB64)
		if err != nil {
			return PublishResponse{}, requestErrorf("invalid plot_png_b64: %v", err)
		}
		png = decoded
		viewKind = store.KindPlot

	case "table":
		if req.Table == nil {
			return PublishResponse{}, requestErrorf("table publish requires table")
		}
		viewKind = store.KindTable

	case "artifact":
		if req.Artifact == nil {
			return PublishResponse{}, requestErrorf("artifact publish requires artifact")
		}
		artKind = inferArtifactKind(req.Artifact)
		if req.ArtifactKind != "" {
			k, ok := artifactKinds[req.ArtifactKind]
			if !ok {
				return PublishResponse{}, requestErrorf("unknown artifact_kind %q", req.ArtifactKind)
			}
			artKind = k
		}
		viewKind = store.KindArtifact

	case "":
		return PublishResponse{}, requestErrorf("kind is required")
	default:
		return PublishResponse{}, requestErrorf("unknown kind %q", req.Kind)
	}

	id := store.NormalizeViewID(req.ViewID, req.Section, req.Label)
	now := p.store.Now()

	if !req.Force {
		var limit *time.Duration
		if req.UpdateLimitS != nil {
			d := time.Duration(*req.UpdateLimitS * float64(time.Second))
			limit = &d
		}
		if !p.store.ShouldAcceptPublish(id, limit, now) {
			return PublishResponse{OK: true, Ignored: true, Reason: "throttled", ViewID: id}, nil
		}
	}

	p.store.RegisterView(id, req.Section, req.Label, viewKind, true)

	switch req.Kind {
	case "plot":
		p.store.SetPlot(id, png)
	case "table":
		p.store.SetTable(id, *req.Table)
	case "artifact":
		p.store.SetArtifact(id, core.Artifact{
			Kind:      artKind,
			Obj:       req.Artifact,
			CreatedAt: now,
			Label:     req.Label,
			Section:   req.Section,
		})
	}

	p.store.NotePublish(id, now)
	return PublishResponse{OK: true, ViewID: id}, nil
}

// inferArtifactKind picks an artifact kind for an untyped payload when the
// caller gave no hint. Structures become JSON trees, everything else text.
func inferArtifactKind(obj any) core.ArtifactKind {
	switch obj.(type) {
	case map[string]any, []any:
		return core.KindJSON
	case string:
		return core.KindText
	}
	return core.KindText
}

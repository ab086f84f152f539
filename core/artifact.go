// Package core defines the artifact model — the tagged payloads that views
// hold and that all renderers consume.
package core

import (
	"html/template"
	"time"
)

// ArtifactKind enumerates the payload types a view can hold.
type ArtifactKind string

const (
	KindPlot      ArtifactKind = "plot"
	KindTable     ArtifactKind = "table"
	KindText      ArtifactKind = "text"
	KindJSON      ArtifactKind = "json"
	KindMarkdown  ArtifactKind = "markdown"
	KindImage     ArtifactKind = "image"
	KindHTML      ArtifactKind = "html"
	KindPython    ArtifactKind = "python"
	KindTraceback ArtifactKind = "traceback"
)

// Truncation records that a render operation was cut short by a size, depth,
// or count bound, and why.
type Truncation struct {
	Truncated bool           `json:"truncated"`
	Reason    string         `json:"reason,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// Artifact is a tagged payload published to a view. Obj is opaque to the
// store; renderers inspect it at display time.
type Artifact struct {
	Kind ArtifactKind `json:"kind"`
	Obj  any          `json:"obj"`

	CreatedAt time.Time `json:"created_at"`
	Label     string    `json:"label,omitempty"`
	Section   string    `json:"section,omitempty"`
	ViewID    string    `json:"view_id,omitempty"`

	Truncation *Truncation `json:"truncation,omitempty"`
}

// RenderResult is the output of a renderer: a sanitized HTML fragment plus
// diagnostic metadata. HTML is marked safe for template interpolation, so
// renderers must escape or sanitize everything they emit.
type RenderResult struct {
	Kind       ArtifactKind   `json:"kind"`
	HTML       template.HTML  `json:"html"`
	MIME       string         `json:"mime"`
	Truncation *Truncation    `json:"truncation,omitempty"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// TableSample is the bounded JSON sample of a published table, as carried in
// publish payloads and served by the table data route.
type TableSample struct {
	Columns      []string `json:"columns"`
	Rows         [][]any  `json:"rows"`
	TotalRows    int      `json:"total_rows"`
	ReturnedRows int      `json:"returned_rows"`
}

// ImagePayload is the artifact object for published images.
type ImagePayload struct {
	MIME     string `json:"mime"`
	DataB64  string `json:"data_b64"`
	Filename string `json:"filename,omitempty"`
}

// TracebackFrame is one stack frame of a published traceback.
type TracebackFrame struct {
	Filename      string   `json:"filename"`
	Lineno        int      `json:"lineno,omitempty"`
	Function      string   `json:"function"`
	Line          string   `json:"line,omitempty"`
	ContextBefore []string `json:"context_before,omitempty"`
	ContextAfter  []string `json:"context_after,omitempty"`
}

// TracebackPayload is the structured artifact object for published exceptions.
type TracebackPayload struct {
	ExcType string           `json:"exc_type"`
	ExcMsg  string           `json:"exc_msg,omitempty"`
	Frames  []TracebackFrame `json:"frames"`
}

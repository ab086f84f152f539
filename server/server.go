// Package server exposes the view store over HTTP: a publish endpoint for
// remote processes, render queries for the browser, raw plot and table data
// routes, and an embedded viewer page.
package server

import (
	"embed"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/sonnes/drishti/core"
	"github.com/sonnes/drishti/render"
	"github.com/sonnes/drishti/store"
)

//go:embed templates/*.html
var content embed.FS

// Server wires the store and renderer registry onto an http.ServeMux.
type Server struct {
	store     *store.Store
	registry  *render.Registry
	publisher *Publisher
	tmpl      *template.Template
	mux       *http.ServeMux

	mu       sync.Mutex
	stopHook func()
}

// New creates a Server over the given store and registry.
func New(st *store.Store, reg *render.Registry) *Server {
	s := &Server{
		store:     st,
		registry:  reg,
		publisher: NewPublisher(st),
		tmpl:      template.Must(template.ParseFS(content, "templates/*.html")),
		mux:       http.NewServeMux(),
	}
	s.routes()
	return s
}

// Publisher returns the publish path, for watcher loops that publish
// locally without an HTTP round trip.
func (s *Server) Publisher() *Publisher {
	return s.publisher
}

// SetStopHook registers a callback invoked once by POST /shutdown, e.g. to
// terminate a child process in periodic-run mode.
func (s *Server) SetStopHook(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopHook = fn
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /publish", s.handlePublish)
	s.mux.HandleFunc("GET /views", s.handleViews)
	s.mux.HandleFunc("GET /view/{id}/render", s.handleRenderView)
	s.mux.HandleFunc("GET /plot", s.handlePlot)
	s.mux.HandleFunc("GET /table/data", s.handleTableData)
	s.mux.HandleFunc("GET /table/export", s.handleTableExport)
	s.mux.HandleFunc("GET /status", s.handleStatus)
	s.mux.HandleFunc("POST /shutdown", s.handleShutdown)
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req PublishRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON body: %v", err))
		return
	}

	resp, err := s.publisher.Publish(req)
	if err != nil {
		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			httpError(w, http.StatusBadRequest, reqErr.Error())
			return
		}
		slog.Error("publish", "error", err)
		httpError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, resp)
}

func (s *Server) handleViews(w http.ResponseWriter, r *http.Request) {
	type viewInfo struct {
		store.View
		Status store.Status `json:"status"`
	}
	views := s.store.Views()
	out := make([]viewInfo, 0, len(views))
	for _, v := range views {
		status, _ := s.store.Status(v.ID)
		out = append(out, viewInfo{View: v, Status: status})
	}
	writeJSON(w, map[string]any{"views": out, "active": s.store.ActiveView()})
}

// renderQueryResult is the JSON shape of a render query.
type renderQueryResult struct {
	ViewID     string            `json:"view_id"`
	Kind       core.ArtifactKind `json:"kind"`
	HTML       string            `json:"html"`
	MIME       string            `json:"mime"`
	Truncation *core.Truncation  `json:"truncation"`
	Meta       map[string]any    `json:"meta,omitempty"`
}

func (s *Server) handleRenderView(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	obj, kind, err := s.store.Latest(id)
	if err != nil {
		httpError(w, http.StatusNotFound, fmt.Sprintf("view %q has no content", id))
		return
	}

	var hint core.ArtifactKind
	switch kind {
	case store.KindPlot:
		hint = core.KindPlot
	case store.KindTable:
		hint = core.KindTable
	case store.KindArtifact:
		a := obj.(core.Artifact)
		hint = a.Kind
		obj = a.Obj
	}

	res := s.registry.RenderAny(obj, id, hint)
	writeJSON(w, renderQueryResult{
		ViewID:     id,
		Kind:       res.Kind,
		HTML:       string(res.HTML),
		MIME:       res.MIME,
		Truncation: res.Truncation,
		Meta:       res.Meta,
	})
}

func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	id := s.viewParam(r)
	png, err := s.store.Plot(id)
	if err != nil {
		httpError(w, http.StatusNotFound, "no plot has been published yet")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	if r.URL.Query().Get("download") != "" {
		w.Header().Set("Content-Disposition", `attachment; filename="drishti_plot.png"`)
	}
	w.Write(png)
}

func (s *Server) handleTableData(w http.ResponseWriter, r *http.Request) {
	id := s.viewParam(r)
	sample, err := s.store.Table(id)
	if err != nil {
		httpError(w, http.StatusNotFound, "no table has been published yet")
		return
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit < 1 {
			httpError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if limit < len(sample.Rows) {
			sample.Rows = sample.Rows[:limit]
			sample.ReturnedRows = limit
		}
	}

	writeJSON(w, sample)
}

// handleTableExport downloads the view's current table as a CSV attachment.
func (s *Server) handleTableExport(w http.ResponseWriter, r *http.Request) {
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = "csv"
	}
	if format != "csv" {
		httpError(w, http.StatusBadRequest, "only format=csv is supported")
		return
	}

	id := s.viewParam(r)
	sample, err := s.store.Table(id)
	if err != nil {
		httpError(w, http.StatusNotFound, "no table has been published yet")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="drishti_table.csv"`)

	cw := csv.NewWriter(w)
	cw.Write(sample.Columns)
	record := make([]string, len(sample.Columns))
	for _, row := range sample.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) && row[i] != nil {
				record[i] = fmt.Sprintf("%v", row[i])
			}
		}
		cw.Write(record)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		slog.Error("export table", "view_id", id, "error", err)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	views := s.store.Views()
	statuses := make(map[string]store.Status, len(views))
	for _, v := range views {
		status, _ := s.store.Status(v.ID)
		statuses[v.ID] = status
	}
	writeJSON(w, map[string]any{
		"views":    len(views),
		"active":   s.store.ActiveView(),
		"statuses": statuses,
	})
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	hook := s.stopHook
	s.stopHook = nil
	s.mu.Unlock()

	if hook != nil {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					slog.Error("stop hook panicked", "panic", rec)
				}
			}()
			hook()
		}()
	}
	writeJSON(w, map[string]any{"stopped": hook != nil})
}

// indexData is the template data for the viewer page.
type indexData struct {
	Views  []indexView
	Active string
}

type indexView struct {
	View   store.View
	Status store.Status
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	views := s.store.Views()
	data := indexData{Active: s.store.ActiveView()}
	for _, v := range views {
		status, _ := s.store.Status(v.ID)
		data.Views = append(data.Views, indexView{View: v, Status: status})
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tmpl.ExecuteTemplate(w, "index.html", data); err != nil {
		slog.Error("render index", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// viewParam resolves the target view for raw data routes: explicit ?view=
// first, then the active view, then the canonical default id.
func (s *Server) viewParam(r *http.Request) string {
	if id := r.URL.Query().Get("view"); id != "" {
		return id
	}
	if id := s.store.ActiveView(); id != "" {
		return id
	}
	return store.NormalizeViewID("", "", "")
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func httpError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{"ok": false, "error": msg})
}

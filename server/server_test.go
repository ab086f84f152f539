package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonnes/drishti/core"
	"github.com/sonnes/drishti/render"
	"github.com/sonnes/drishti/store"
)

func newTestServer() (*Server, *store.Store) {
	st := store.New()
	return New(st, render.Default(render.NewSanitizer())), st
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func TestPublishPlotAndFetch(t *testing.T) {
	s, st := newTestServer()
	png := []byte("\x89PNG fake bytes")

	w := doJSON(t, s, http.MethodPost, "/publish", map[string]any{
		"kind":         "plot",
		"section":      "train",
		"label":        "loss",
		"plot_png_b64": base64.StdEncoding.EncodeToString(png),
	})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decodeBody[PublishResponse](t, w)
	assert.True(t, resp.OK)
	assert.False(t, resp.Ignored)
	assert.Equal(t, "train:loss", resp.ViewID)
	assert.Equal(t, "train:loss", st.ActiveView())

	w = doJSON(t, s, http.MethodGet, "/plot?view=train:loss", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, png, w.Body.Bytes())

	w = doJSON(t, s, http.MethodGet, "/plot?view=train:loss&download=1", nil)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
}

func TestPublishPlotDefaultsToActiveView(t *testing.T) {
	s, _ := newTestServer()

	w := doJSON(t, s, http.MethodPost, "/publish", map[string]any{
		"kind":         "plot",
		"plot_png_b64": base64.StdEncoding.EncodeToString([]byte("png")),
	})
	require.Equal(t, http.StatusOK, w.Code)

	// No ?view= falls back to the active view.
	w = doJSON(t, s, http.MethodGet, "/plot", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPublishValidationRejectsBeforeMutation(t *testing.T) {
	s, st := newTestServer()

	tests := []struct {
		name string
		body map[string]any
	}{
		{name: "missing kind", body: map[string]any{"label": "x"}},
		{name: "unknown kind", body: map[string]any{"kind": "sculpture"}},
		{name: "plot without payload", body: map[string]any{"kind": "plot"}},
		{name: "plot bad base64", body: map[string]any{"kind": "plot", "plot_png_b64": "not-base64!!!"}},
		{name: "table without payload", body: map[string]any{"kind": "table"}},
		{name: "artifact without payload", body: map[string]any{"kind": "artifact"}},
		{name: "artifact unknown subtype", body: map[string]any{"kind": "artifact", "artifact": "x", "artifact_kind": "hologram"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, s, http.MethodPost, "/publish", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}

	// Nothing was registered by any rejected request.
	assert.Empty(t, st.Views())
	assert.Empty(t, st.ActiveView())
}

func TestPublishMalformedJSONBody(t *testing.T) {
	s, _ := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/publish", strings.NewReader("{broken"))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPublishThrottleAndForce(t *testing.T) {
	s, _ := newTestServer()
	limit := 3600.0

	body := map[string]any{
		"kind":           "artifact",
		"label":          "notes",
		"artifact":       "v1",
		"update_limit_s": limit,
	}

	w := doJSON(t, s, http.MethodPost, "/publish", body)
	resp := decodeBody[PublishResponse](t, w)
	require.True(t, resp.OK)
	assert.False(t, resp.Ignored)

	// Second publish inside the window is acknowledged but ignored.
	w = doJSON(t, s, http.MethodPost, "/publish", body)
	require.Equal(t, http.StatusOK, w.Code)
	resp = decodeBody[PublishResponse](t, w)
	assert.True(t, resp.OK)
	assert.True(t, resp.Ignored)
	assert.Equal(t, "throttled", resp.Reason)

	// Force bypasses the window.
	body["force"] = true
	w = doJSON(t, s, http.MethodPost, "/publish", body)
	resp = decodeBody[PublishResponse](t, w)
	assert.True(t, resp.OK)
	assert.False(t, resp.Ignored)
}

func TestRenderViewQuery(t *testing.T) {
	s, _ := newTestServer()

	w := doJSON(t, s, http.MethodPost, "/publish", map[string]any{
		"kind":          "artifact",
		"view_id":       "v1",
		"artifact":      "# Heading\n\ntext body\n",
		"artifact_kind": "markdown",
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodGet, "/view/v1/render", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		ViewID     string           `json:"view_id"`
		Kind       string           `json:"kind"`
		HTML       string           `json:"html"`
		MIME       string           `json:"mime"`
		Truncation *core.Truncation `json:"truncation"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "v1", out.ViewID)
	assert.Equal(t, "markdown", out.Kind)
	assert.Equal(t, "text/html", out.MIME)
	assert.Contains(t, out.HTML, "<h1")
	require.NotNil(t, out.Truncation)
	assert.False(t, out.Truncation.Truncated)
}

func TestRenderViewNotFound(t *testing.T) {
	s, st := newTestServer()

	w := doJSON(t, s, http.MethodGet, "/view/missing/render", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// A registered but empty view is also a 404.
	st.RegisterView("empty", "a", "b", store.KindNone, false)
	w = doJSON(t, s, http.MethodGet, "/view/empty/render", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTableDataWithLimit(t *testing.T) {
	s, _ := newTestServer()

	rows := make([][]any, 5)
	for i := range rows {
		rows[i] = []any{float64(i)}
	}
	w := doJSON(t, s, http.MethodPost, "/publish", map[string]any{
		"kind":    "table",
		"view_id": "t1",
		"table": core.TableSample{
			Columns:      []string{"x"},
			Rows:         rows,
			TotalRows:    5,
			ReturnedRows: 5,
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodGet, "/table/data?view=t1&limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	sample := decodeBody[core.TableSample](t, w)
	assert.Len(t, sample.Rows, 2)
	assert.Equal(t, 2, sample.ReturnedRows)
	assert.Equal(t, 5, sample.TotalRows)

	w = doJSON(t, s, http.MethodGet, "/table/data?view=t1&limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, s, http.MethodGet, "/table/data?view=nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTableExport(t *testing.T) {
	s, _ := newTestServer()

	w := doJSON(t, s, http.MethodPost, "/publish", map[string]any{
		"kind":    "table",
		"view_id": "t1",
		"table": core.TableSample{
			Columns:      []string{"step", "loss"},
			Rows:         [][]any{{float64(1), 0.9}, {float64(2), nil}},
			TotalRows:    2,
			ReturnedRows: 2,
		},
	})
	require.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, s, http.MethodGet, "/table/export?view=t1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Equal(t, "step,loss\n1,0.9\n2,\n", w.Body.String())

	// An explicit format=csv is the same as the default.
	w = doJSON(t, s, http.MethodGet, "/table/export?view=t1&format=csv", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestTableExportRejectsOtherFormats(t *testing.T) {
	s, _ := newTestServer()

	doJSON(t, s, http.MethodPost, "/publish", map[string]any{
		"kind":    "table",
		"view_id": "t1",
		"table":   core.TableSample{Columns: []string{"x"}, Rows: [][]any{{float64(1)}}},
	})

	w := doJSON(t, s, http.MethodGet, "/table/export?view=t1&format=parquet", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, s, http.MethodGet, "/table/export?view=nope", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestViewsEndpoint(t *testing.T) {
	s, _ := newTestServer()

	doJSON(t, s, http.MethodPost, "/publish", map[string]any{
		"kind": "artifact", "section": "a", "label": "one", "artifact": "x",
	})
	doJSON(t, s, http.MethodPost, "/publish", map[string]any{
		"kind": "artifact", "section": "a", "label": "two", "artifact": "y",
	})

	w := doJSON(t, s, http.MethodGet, "/views", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		Views []struct {
			ID     string `json:"view_id"`
			Status struct {
				LastError string `json:"last_error"`
			} `json:"status"`
		} `json:"views"`
		Active string `json:"active"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.Len(t, out.Views, 2)
	assert.Equal(t, "a:one", out.Views[0].ID)
	assert.Equal(t, "a:two", out.Views[1].ID)
	assert.Equal(t, "a:one", out.Active)
}

func TestStatusEndpoint(t *testing.T) {
	s, st := newTestServer()

	doJSON(t, s, http.MethodPost, "/publish", map[string]any{
		"kind": "artifact", "view_id": "v1", "artifact": "x",
	})
	st.MarkError("v1", "refresh failed")

	w := doJSON(t, s, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var out struct {
		Views    int                     `json:"views"`
		Active   string                  `json:"active"`
		Statuses map[string]store.Status `json:"statuses"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, 1, out.Views)
	assert.Equal(t, "v1", out.Active)
	assert.Equal(t, "refresh failed", out.Statuses["v1"].LastError)
}

func TestShutdownInvokesHookOnce(t *testing.T) {
	s, _ := newTestServer()

	calls := 0
	s.SetStopHook(func() { calls++ })

	w := doJSON(t, s, http.MethodPost, "/shutdown", nil)
	require.Equal(t, http.StatusOK, w.Code)
	out := decodeBody[map[string]bool](t, w)
	assert.True(t, out["stopped"])
	assert.Equal(t, 1, calls)

	// The hook is consumed; a second shutdown is a no-op.
	w = doJSON(t, s, http.MethodPost, "/shutdown", nil)
	out = decodeBody[map[string]bool](t, w)
	assert.False(t, out["stopped"])
	assert.Equal(t, 1, calls)
}

func TestShutdownSurvivesPanickingHook(t *testing.T) {
	s, _ := newTestServer()
	s.SetStopHook(func() { panic("boom") })

	w := doJSON(t, s, http.MethodPost, "/shutdown", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestIndexPage(t *testing.T) {
	s, _ := newTestServer()

	doJSON(t, s, http.MethodPost, "/publish", map[string]any{
		"kind": "artifact", "section": "train", "label": "loss", "artifact": "x",
	})

	w := doJSON(t, s, http.MethodGet, "/", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "train")
}

func TestInferArtifactKind(t *testing.T) {
	assert.Equal(t, core.KindJSON, inferArtifactKind(map[string]any{"a": 1}))
	assert.Equal(t, core.KindJSON, inferArtifactKind([]any{1, 2}))
	assert.Equal(t, core.KindText, inferArtifactKind("plain"))
	assert.Equal(t, core.KindText, inferArtifactKind(42))
}

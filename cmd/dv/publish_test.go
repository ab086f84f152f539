package main

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sonnes/drishti/render"
	"github.com/sonnes/drishti/server"
	"github.com/sonnes/drishti/store"
)

func newPublishTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := server.New(store.New(), render.Default(render.NewSanitizer()))
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts
}

func TestPostPublishRoundTrip(t *testing.T) {
	ts := newPublishTestServer(t)

	resp, err := postPublish(ts.URL, server.PublishRequest{
		Kind:     "artifact",
		Section:  "file",
		Label:    "notes.md",
		Artifact: "# hi",
	})
	require.NoError(t, err)
	assert.True(t, resp.OK)
	assert.Equal(t, "file:notes.md", resp.ViewID)
}

func TestPostPublishSurfacesServerError(t *testing.T) {
	ts := newPublishTestServer(t)

	// A shape rejection: the server's error detail must reach the caller,
	// not just the status code.
	_, err := postPublish(ts.URL, server.PublishRequest{Kind: "plot"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "plot publish requires plot_png_b64")
	assert.Contains(t, err.Error(), "status 400")
}

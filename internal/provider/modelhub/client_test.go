package modelhub_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/gpuprep/internal/provider/modelhub"
)

const filesJSON = `{
  "Code": 200,
  "Data": {
    "Files": [
      {"Name": "config.json", "Path": "config.json", "Type": "blob", "Sha256": "ABCDEF", "Size": 12},
      {"Name": "assets", "Path": "assets", "Type": "tree", "Sha256": "", "Size": 0},
      {"Name": "model-00001-of-00002.safetensors", "Path": "model-00001-of-00002.safetensors", "Type": "blob", "Sha256": "0123", "Size": 4}
    ]
  },
  "Message": "success"
}`

func TestClient_Files(t *testing.T) {
	t.Parallel()

	var gotPath, gotRevision string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotRevision = r.URL.Query().Get("Revision")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(filesJSON))
	}))
	t.Cleanup(srv.Close)

	files, err := modelhub.NewClient(srv.URL+"/").Files(context.Background(), "Qwen/Qwen3-8B", "")

	require.NoError(t, err)
	assert.Equal(t, "/api/v1/models/Qwen/Qwen3-8B/repo/files", gotPath)
	assert.Equal(t, "master", gotRevision)
	assert.Equal(t, []modelhub.FileMeta{
		{Name: "config.json", SHA256: "abcdef", Size: 12},
		{Name: "model-00001-of-00002.safetensors", SHA256: "0123", Size: 4},
	}, files)
}

func TestClient_Files_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "http error", status: http.StatusNotFound, body: "not found"},
		{name: "api error code", status: http.StatusOK, body: `{"Code": 10010205001, "Message": "model not found"}`},
		{name: "not json", status: http.StatusOK, body: "<html>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			t.Cleanup(srv.Close)

			_, err := modelhub.NewClient(srv.URL, modelhub.WithHTTPClient(srv.Client())).
				Files(context.Background(), "Qwen/Qwen3-8B", "master")

			assert.ErrorIs(t, err, modelhub.ErrUnexpectedResponse)
		})
	}
}

func TestClient_Files_ContextCanceled(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(filesJSON))
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := modelhub.NewClient(srv.URL).Files(ctx, "Qwen/Qwen3-8B", "master")

	assert.ErrorIs(t, err, context.Canceled)
}

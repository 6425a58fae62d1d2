package cli

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Ask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/ask", r.URL.Path)
		var req models.AskRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "what color is the sky?", req.Query)
		_ = json.NewEncoder(w).Encode(sampleAnswer())
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL+"/", time.Second).Ask(context.Background(), "what color is the sky?")
	require.NoError(t, err)
	assert.Equal(t, "The sky is blue [1].", resp.Response)
	require.Len(t, resp.Citations, 1)
}

func TestClient_ErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"embedding service unavailable"}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, time.Second).Ask(context.Background(), "q")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
	assert.Equal(t, "embedding service unavailable", se.Message)
}

func TestClient_Status(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/status", r.URL.Path)
		_, _ = w.Write([]byte(`{"index":{"location":"mem","entries":2,"documents":1,"dimensions":8},"catalog":{"ingested":1},"queue_pending":0}`))
	}))
	defer srv.Close()

	report, err := NewClient(srv.URL, time.Second).Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Index.Entries)
	assert.Equal(t, int64(1), report.Catalog["ingested"])
	assert.Nil(t, report.DiskUsageBytes)
}

func TestClient_Upload(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.pdf")
	b := filepath.Join(dir, "b.pdf")
	require.NoError(t, os.WriteFile(a, []byte("AAA"), 0o600))
	require.NoError(t, os.WriteFile(b, []byte("BB"), 0o600))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		files := r.MultipartForm.File["files"]
		require.Len(t, files, 2)
		assert.Equal(t, "a.pdf", files[0].Filename)
		f, err := files[1].Open()
		require.NoError(t, err)
		content, _ := io.ReadAll(f)
		_ = f.Close()
		assert.Equal(t, "BB", string(content))
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"message":"ok","task_id":"t1","documents":["a.pdf","b.pdf"]}`))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL, time.Second).Upload(context.Background(), []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, "t1", res.TaskID)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, res.Documents)
}

func TestClient_UploadMissingFile(t *testing.T) {
	_, err := NewClient("http://127.0.0.1:1", time.Second).Upload(context.Background(), []string{filepath.Join(t.TempDir(), "nope.pdf")})
	assert.Error(t, err)
}

func TestClient_WaitTask(t *testing.T) {
	var polls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/tasks/t1", r.URL.Path)
		state := indexer.TaskRunning
		if polls.Add(1) >= 3 {
			state = indexer.TaskSucceeded
		}
		_ = json.NewEncoder(w).Encode(indexer.TaskStatus{ID: "t1", State: state, Result: &models.IngestResult{Pages: 1}})
	}))
	defer srv.Close()

	st, err := NewClient(srv.URL, time.Second).WaitTask(context.Background(), "t1", 5*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, indexer.TaskSucceeded, st.State)
	assert.GreaterOrEqual(t, polls.Load(), int32(3))
}

func TestClient_WaitTaskCancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(indexer.TaskStatus{ID: "t1", State: indexer.TaskPending})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := NewClient(srv.URL, time.Second).WaitTask(ctx, "t1", 5*time.Millisecond)
	assert.Error(t, err)
}

func TestClient_Watch(t *testing.T) {
	var gotMethod, gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Query().Get("path")
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"directories":["/docs"]}`))
		case http.MethodPost:
			var body struct {
				Path string `json:"path"`
				Sync bool   `json:"sync"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "/inbox", body.Path)
			assert.True(t, body.Sync)
			w.WriteHeader(http.StatusCreated)
		case http.MethodDelete:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()
	c := NewClient(srv.URL, time.Second)
	ctx := context.Background()

	dirs, err := c.WatchList(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"/docs"}, dirs)

	require.NoError(t, c.WatchAdd(ctx, "/inbox"))
	assert.Equal(t, http.MethodPost, gotMethod)

	require.NoError(t, c.WatchRemove(ctx, "/my docs"))
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/my docs", gotPath)
}

func TestClient_Reset(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = r.Method == http.MethodPost && r.URL.Path == "/api/v1/admin/reset"
		_, _ = w.Write([]byte(`{"status":"reset"}`))
	}))
	defer srv.Close()
	require.NoError(t, NewClient(srv.URL, time.Second).Reset(context.Background()))
	assert.True(t, called)
}

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/models"
)

// DefaultServerURL is where commands look for a running server.
const DefaultServerURL = "http://localhost:8000"

// StatusError is a non-2xx reply from the server.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// Client calls the kotae HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient returns a client for the server at baseURL. A zero timeout means no client-side limit.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// UploadResult is the reply to an upload.
type UploadResult struct {
	Message   string   `json:"message"`
	TaskID    string   `json:"task_id"`
	Documents []string `json:"documents"`
}

// Ask submits a question.
func (c *Client) Ask(ctx context.Context, q string) (*models.AskResponse, error) {
	var out models.AskResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/ask", models.AskRequest{Query: q}, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status fetches the server status report.
func (c *Client) Status(ctx context.Context) (*models.StatusReport, error) {
	var out models.StatusReport
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/status", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Documents lists catalog entries.
func (c *Client) Documents(ctx context.Context, offset, limit int) ([]*models.DocumentRecord, error) {
	var out struct {
		Documents []*models.DocumentRecord `json:"documents"`
	}
	path := fmt.Sprintf("/api/v1/documents?offset=%d&limit=%d", offset, limit)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Documents, nil
}

// Task fetches the state of an ingestion task.
func (c *Client) Task(ctx context.Context, id string) (*indexer.TaskStatus, error) {
	var out indexer.TaskStatus
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/tasks/"+url.PathEscape(id), nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WaitTask polls a task until it finishes or ctx is done.
func (c *Client) WaitTask(ctx context.Context, id string, interval time.Duration) (*indexer.TaskStatus, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		st, err := c.Task(ctx, id)
		if err != nil {
			return nil, err
		}
		if st.State == indexer.TaskSucceeded || st.State == indexer.TaskFailed {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Upload sends files as one multipart upload. The server ingests them as a single batch.
func (c *Client) Upload(ctx context.Context, paths []string) (*UploadResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, p := range paths {
		if err := addFile(mw, p); err != nil {
			return nil, err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/upload", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	var out UploadResult
	if err := c.do(req, http.StatusAccepted, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Reset clears the index, the catalog and the uploaded files.
func (c *Client) Reset(ctx context.Context) error {
	return c.doJSON(ctx, http.MethodPost, "/api/v1/admin/reset", nil, http.StatusOK, nil)
}

// WatchList returns the watched directories.
func (c *Client) WatchList(ctx context.Context) ([]string, error) {
	var out struct {
		Directories []string `json:"directories"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/v1/watch/directories", nil, http.StatusOK, &out); err != nil {
		return nil, err
	}
	return out.Directories, nil
}

// WatchAdd starts watching dir, importing the files already in it.
func (c *Client) WatchAdd(ctx context.Context, dir string) error {
	body := map[string]interface{}{"path": dir, "sync": true}
	return c.doJSON(ctx, http.MethodPost, "/api/v1/watch/directories", body, http.StatusCreated, nil)
}

// WatchRemove stops watching dir.
func (c *Client) WatchRemove(ctx context.Context, dir string) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/v1/watch/directories?path="+url.QueryEscape(dir), nil, http.StatusOK, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in interface{}, want int, out interface{}) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return c.do(req, want, out)
}

func (c *Client) do(req *http.Request, want int, out interface{}) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(b))
		if json.Unmarshal(b, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &StatusError{Code: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func addFile(mw *multipart.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	part, err := mw.CreateFormFile("files", filepath.Base(path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}

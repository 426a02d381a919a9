package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"lrcforge/internal/config"
	"lrcforge/internal/library"
)

// ErrAPIUnavailable reports that no daemon is reachable at the configured address.
var ErrAPIUnavailable = errors.New("lrcforge API unavailable")

// StatusError carries a non-2xx response.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api returned status %d", e.Code)
	}
	return fmt.Sprintf("api returned status %d: %s", e.Code, e.Message)
}

// IsConflict reports whether err is a 409 response.
func IsConflict(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.Code == http.StatusConflict
}

// Client talks to a running daemon.
type Client struct {
	base   *url.URL
	http   *http.Client
	stream *http.Client
	token  string
}

// NewClient builds a client for bind, which may be a host:port or a URL.
func NewClient(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, ErrAPIUnavailable
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base: base,
		http: &http.Client{Timeout: 15 * time.Second},
		// No timeout - streams block waiting for events until the caller cancels.
		stream: &http.Client{},
		token:  strings.TrimSpace(token),
	}, nil
}

// BaseURL returns the daemon address the client targets.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Config fetches the editable settings.
func (c *Client) Config(ctx context.Context) (config.Settings, error) {
	var out config.Settings
	err := c.do(ctx, http.MethodGet, "/api/config", nil, nil, &out)
	return out, err
}

// UpdateConfig replaces the editable settings.
func (c *Client) UpdateConfig(ctx context.Context, settings config.Settings) (config.Settings, error) {
	var out config.Settings
	err := c.do(ctx, http.MethodPost, "/api/config", nil, settings, &out)
	return out, err
}

// Models lists supported whisper model names.
func (c *Client) Models(ctx context.Context) ([]string, error) {
	var out []string
	err := c.do(ctx, http.MethodGet, "/api/models", nil, nil, &out)
	return out, err
}

// SearchPaths autocompletes a filesystem prefix.
func (c *Client) SearchPaths(ctx context.Context, prefix string, kind library.PathKind) ([]string, error) {
	values := url.Values{}
	values.Set("prefix", prefix)
	values.Set("type", string(kind))
	var out []string
	err := c.do(ctx, http.MethodGet, "/api/paths/search", values, nil, &out)
	return out, err
}

// Files lists the source directory.
func (c *Client) Files(ctx context.Context) ([]library.File, error) {
	var out []library.File
	err := c.do(ctx, http.MethodGet, "/api/files", nil, nil, &out)
	return out, err
}

// StartTask submits a batch by file name.
func (c *Client) StartTask(ctx context.Context, files []string) (TaskStartResponse, error) {
	var out TaskStartResponse
	err := c.do(ctx, http.MethodPost, "/api/task/start", nil, TaskStartRequest{Files: files}, &out)
	return out, err
}

// TaskStatus fetches the current batch status.
func (c *Client) TaskStatus(ctx context.Context) (TaskStatus, error) {
	var out TaskStatus
	err := c.do(ctx, http.MethodGet, "/api/task/status", nil, nil, &out)
	return out, err
}

// CancelTask requests cancellation of the current batch.
func (c *Client) CancelTask(ctx context.Context) (bool, error) {
	var out SuccessResponse
	err := c.do(ctx, http.MethodPost, "/api/task/cancel", nil, nil, &out)
	return out.Success, err
}

// History lists finished batches.
func (c *Client) History(ctx context.Context, limit int) (HistoryResponse, error) {
	values := url.Values{}
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	var out HistoryResponse
	err := c.do(ctx, http.MethodGet, "/api/history", values, nil, &out)
	return out, err
}

// MergeFiles lists the merge source directory.
func (c *Client) MergeFiles(ctx context.Context) ([]library.File, error) {
	var out []library.File
	err := c.do(ctx, http.MethodGet, "/api/merge/files", nil, nil, &out)
	return out, err
}

// StartMerge begins a merge job.
func (c *Client) StartMerge(ctx context.Context, req MergeStartRequest) (MergeStatus, error) {
	var out MergeStatus
	err := c.do(ctx, http.MethodPost, "/api/merge/start", nil, req, &out)
	return out, err
}

// MergeStatus fetches the current merge job.
func (c *Client) MergeStatus(ctx context.Context) (MergeStatus, error) {
	var out MergeStatus
	err := c.do(ctx, http.MethodGet, "/api/merge/status", nil, nil, &out)
	return out, err
}

// CancelMerge terminates the running merge job.
func (c *Client) CancelMerge(ctx context.Context) (bool, error) {
	var out SuccessResponse
	err := c.do(ctx, http.MethodPost, "/api/merge/cancel", nil, nil, &out)
	return out.Success, err
}

// Health fetches daemon readiness.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	var out HealthResponse
	err := c.do(ctx, http.MethodGet, "/api/health", nil, nil, &out)
	return out, err
}

func (c *Client) newRequest(ctx context.Context, method, path string, query url.Values, body any) (*http.Request, error) {
	endpoint := c.base.ResolveReference(&url.URL{Path: path})
	if len(query) > 0 {
		endpoint.RawQuery = query.Encode()
	}
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if c == nil {
		return ErrAPIUnavailable
	}
	req, err := c.newRequest(ctx, method, path, query, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode < 400 {
		return nil
	}
	statusErr := &StatusError{Code: resp.StatusCode}
	var payload ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload); err == nil {
		statusErr.Message = payload.Error
	}
	return statusErr
}

// IsAPIUnavailable reports whether err means the daemon could not be reached.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}

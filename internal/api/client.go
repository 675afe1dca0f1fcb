package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"

	"scribe/internal/jobs"
	"scribe/internal/output"
)

// Client talks to a running scribe daemon.
type Client struct {
	base   *url.URL
	token  string
	http   *http.Client
	dialer *websocket.Dialer
}

// NewClient builds a client for the daemon listening on bind. A bind of
// "0.0.0.0:port" or ":port" is dialed on loopback.
func NewClient(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, ErrUnavailable
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, fmt.Errorf("parse api address: %w", err)
	}
	if host, port, splitErr := net.SplitHostPort(base.Host); splitErr == nil {
		if host == "" || host == "0.0.0.0" || host == "::" {
			base.Host = net.JoinHostPort("127.0.0.1", port)
		}
	}
	base.Path, base.RawQuery, base.Fragment = "", "", ""

	return &Client{
		base:  base,
		token: strings.TrimSpace(token),
		// No timeout: uploads and log follow block until the caller cancels.
		http:   &http.Client{},
		dialer: &websocket.Dialer{HandshakeTimeout: websocket.DefaultDialer.HandshakeTimeout},
	}, nil
}

// SubmitRequest describes a local file to upload.
type SubmitRequest struct {
	Path        string
	Model       string
	Language    string
	Diarization *bool
}

// Submit streams the file at req.Path to the daemon and returns the queued job.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (jobs.Job, error) {
	file, err := os.Open(req.Path)
	if err != nil {
		return jobs.Job{}, err
	}
	defer file.Close()

	pr, pw := io.Pipe()
	form := multipart.NewWriter(pw)
	go func() {
		err := writeSubmitForm(form, file, req)
		if err == nil {
			err = form.Close()
		}
		_ = pw.CloseWithError(err)
	}()

	var job jobs.Job
	err = c.do(ctx, http.MethodPost, "/api/jobs", nil, pr, form.FormDataContentType(), http.StatusCreated, &job)
	_ = pr.Close()
	return job, err
}

func writeSubmitForm(form *multipart.Writer, file io.Reader, req SubmitRequest) error {
	fields := map[string]string{"model": req.Model, "language": req.Language}
	if req.Diarization != nil {
		fields["diarization"] = strconv.FormatBool(*req.Diarization)
	}
	for _, key := range []string{"model", "language", "diarization"} {
		if v := strings.TrimSpace(fields[key]); v != "" {
			if err := form.WriteField(key, v); err != nil {
				return err
			}
		}
	}
	part, err := form.CreateFormFile("file", filepath.Base(req.Path))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, file)
	return err
}

// ListOptions filters List.
type ListOptions struct {
	Statuses []jobs.Status
	Limit    int
	Offset   int
}

// List returns a page of jobs, newest first.
func (c *Client) List(ctx context.Context, opts ListOptions) (JobListResponse, error) {
	values := url.Values{}
	for _, st := range opts.Statuses {
		values.Add("status", string(st))
	}
	if opts.Limit > 0 {
		values.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		values.Set("offset", strconv.Itoa(opts.Offset))
	}
	var resp JobListResponse
	err := c.do(ctx, http.MethodGet, "/api/jobs", values, nil, "", http.StatusOK, &resp)
	return resp, err
}

// Get returns one job including its result.
func (c *Client) Get(ctx context.Context, id string) (jobs.Job, error) {
	var job jobs.Job
	err := c.do(ctx, http.MethodGet, "/api/jobs/"+url.PathEscape(id), nil, nil, "", http.StatusOK, &job)
	return job, err
}

// Cancel requests cancellation of a queued or processing job.
func (c *Client) Cancel(ctx context.Context, id string) (jobs.Job, error) {
	var job jobs.Job
	err := c.do(ctx, http.MethodPost, "/api/jobs/"+url.PathEscape(id)+"/cancel", nil, nil, "", http.StatusOK, &job)
	return job, err
}

// Delete removes a job and its files.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/jobs/"+url.PathEscape(id), nil, nil, "", http.StatusNoContent, nil)
}

// Download copies one rendered transcript into w and returns the filename
// the server suggested.
func (c *Client) Download(ctx context.Context, id string, format output.Format, w io.Writer) (string, error) {
	path := "/api/jobs/" + url.PathEscape(id) + "/download/" + url.PathEscape(string(format))
	resp, err := c.send(ctx, http.MethodGet, path, nil, nil, "")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", decodeError(resp)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	name := ""
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil {
		name = params["filename"]
	}
	if name == "" {
		name = id + "." + string(format)
	}
	return name, nil
}

// Watch follows a job's events until it reaches a terminal state, the stream
// closes or ctx ends. fn is called for every event; a non-nil return stops
// the watch. The last event received is returned.
func (c *Client) Watch(ctx context.Context, id string, fn func(jobs.Event) error) (jobs.Event, error) {
	wsURL := *c.base
	if wsURL.Scheme == "https" {
		wsURL.Scheme = "wss"
	} else {
		wsURL.Scheme = "ws"
	}
	wsURL.Path = "/api/jobs/" + url.PathEscape(id) + "/events"

	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}
	conn, resp, err := c.dialer.DialContext(ctx, wsURL.String(), header)
	if err != nil {
		if resp != nil {
			defer resp.Body.Close()
			if resp.StatusCode >= http.StatusBadRequest {
				return jobs.Event{}, decodeError(resp)
			}
		}
		if ctx.Err() == nil {
			return jobs.Event{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return jobs.Event{}, ctx.Err()
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	var last jobs.Event
	for {
		var evt jobs.Event
		if err := conn.ReadJSON(&evt); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) || last.Status.Terminal() {
				return last, nil
			}
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			return last, fmt.Errorf("read job events: %w", err)
		}
		last = evt
		if fn != nil {
			if err := fn(evt); err != nil {
				return last, err
			}
		}
	}
}

// HistoryOptions filters History. Since is an RFC 3339 timestamp or a
// duration such as "24h".
type HistoryOptions struct {
	Statuses []jobs.Status
	Since    string
	Limit    int
	Offset   int
}

// History returns archived job records and aggregate stats.
func (c *Client) History(ctx context.Context, opts HistoryOptions) (HistoryResponse, error) {
	values := url.Values{}
	for _, st := range opts.Statuses {
		values.Add("status", string(st))
	}
	if s := strings.TrimSpace(opts.Since); s != "" {
		values.Set("since", s)
	}
	if opts.Limit > 0 {
		values.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Offset > 0 {
		values.Set("offset", strconv.Itoa(opts.Offset))
	}
	var resp HistoryResponse
	err := c.do(ctx, http.MethodGet, "/api/history", values, nil, "", http.StatusOK, &resp)
	return resp, err
}

// Status returns the daemon status report.
func (c *Client) Status(ctx context.Context) (StatusResponse, error) {
	var resp StatusResponse
	err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, "", http.StatusOK, &resp)
	return resp, err
}

// LogQuery selects buffered log events.
type LogQuery struct {
	Since     uint64
	Limit     int
	Follow    bool
	Tail      bool
	JobID     string
	Component string
}

// Logs fetches one page of daemon log events.
func (c *Client) Logs(ctx context.Context, q LogQuery) (LogStreamResponse, error) {
	values := url.Values{}
	if q.Since > 0 {
		values.Set("since", strconv.FormatUint(q.Since, 10))
	}
	if q.Limit > 0 {
		values.Set("limit", strconv.Itoa(q.Limit))
	}
	if q.Follow {
		values.Set("follow", "1")
	}
	if q.Tail {
		values.Set("tail", "1")
	}
	if v := strings.TrimSpace(q.JobID); v != "" {
		values.Set("job", v)
	}
	if v := strings.TrimSpace(q.Component); v != "" {
		values.Set("component", v)
	}
	var resp LogStreamResponse
	err := c.do(ctx, http.MethodGet, "/api/logs", values, nil, "", http.StatusOK, &resp)
	return resp, err
}

// Health pings the unauthenticated liveness endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/health", nil, nil, "", http.StatusOK, nil)
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string, want int, out any) error {
	resp, err := c.send(ctx, method, path, query, body, contentType)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		return decodeError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType string) (*http.Response, error) {
	if c == nil {
		return nil, ErrUnavailable
	}
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
		}
		return nil, err
	}
	return resp, nil
}

func decodeError(resp *http.Response) error {
	apiErr := &Error{StatusCode: resp.StatusCode}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var payload ErrorResponse
	if err := json.Unmarshal(data, &payload); err == nil && payload.Error != "" {
		apiErr.Kind = payload.Error
		apiErr.Message = payload.Message
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}
	return apiErr
}

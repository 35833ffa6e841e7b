// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package client talks to a recap-engine server: it posts analysis and
// correction requests and dispatches the streamed stage events to
// callbacks until the run ends.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/pdiddy/recap-engine/internal/httputil"
	"github.com/pdiddy/recap-engine/internal/stream"
	"github.com/pdiddy/recap-engine/pkg/types"
)

// ErrStreamEnded is returned when the event stream closes before a
// complete or error event arrives.
var ErrStreamEnded = errors.New("event stream ended before the run finished")

// StatusError is a non-2xx answer to a request.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Code, e.Message)
}

// RunError is the error event that ended a run.
type RunError struct {
	Message string
}

func (e *RunError) Error() string { return e.Message }

// Callbacks receive the events of one run. Nil callbacks are skipped.
type Callbacks struct {
	OnStage    func(types.StageEvent)
	OnComplete func(Result)
	OnError    func(message string)
}

// Result is a finished run.
type Result struct {
	RunID  string
	Report types.AggregatedReport
}

// Client is a recap-engine API client.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *log.Logger
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. Its timeout must cover a
// whole run; the default has none.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithLogger sets the logger for stream diagnostics.
func WithLogger(l *log.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// New returns a Client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{},
		logger:  log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Analyze starts a run for req and follows it to the end.
func (c *Client) Analyze(ctx context.Context, req types.AnalysisRequest, cb Callbacks) (Result, error) {
	return c.follow(ctx, "/api/analyze", req, cb)
}

// Resume re-runs the narrative stages of run id with corrected extraction
// data. The server answers with a new run whose parent is id.
func (c *Client) Resume(ctx context.Context, id string, corrected []types.AppData, cb Callbacks) (Result, error) {
	body := struct {
		ExtractedData []types.AppData `json:"extractedData"`
	}{corrected}
	return c.follow(ctx, "/api/runs/"+url.PathEscape(id)+"/resume", body, cb)
}

// Run fetches an archived run.
func (c *Client) Run(ctx context.Context, id string) (types.Run, error) {
	var run types.Run
	err := c.getJSON(ctx, "/api/runs/"+url.PathEscape(id), &run)
	return run, err
}

// Runs lists archived runs, newest first. limit <= 0 uses the server
// default.
func (c *Client) Runs(ctx context.Context, limit int) ([]types.Run, error) {
	path := "/api/runs"
	if limit > 0 {
		path += fmt.Sprintf("?limit=%d", limit)
	}
	var body struct {
		Runs []types.Run `json:"runs"`
	}
	err := c.getJSON(ctx, path, &body)
	return body.Runs, err
}

func (c *Client) follow(ctx context.Context, path string, payload any, cb Callbacks) (Result, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Result{}, fmt.Errorf("encoding request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("posting %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return Result{}, statusError(resp)
	}

	return c.consume(resp.Body, cb)
}

// consume reads events until the terminal one.
func (c *Client) consume(body io.Reader, cb Callbacks) (Result, error) {
	r := stream.NewReader(body)
	for {
		msg, err := r.Next()
		if errors.Is(err, io.EOF) {
			return Result{}, ErrStreamEnded
		}
		if err != nil {
			return Result{}, fmt.Errorf("reading event stream: %w", err)
		}

		switch msg.Event {
		case stream.EventStage:
			var ev types.StageEvent
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				return Result{}, fmt.Errorf("decoding stage event: %w", err)
			}
			if cb.OnStage != nil {
				cb.OnStage(ev)
			}

		case stream.EventComplete:
			var done stream.CompletePayload
			if err := json.Unmarshal(msg.Data, &done); err != nil {
				return Result{}, fmt.Errorf("decoding complete event: %w", err)
			}
			res := Result{RunID: done.RunID}
			if err := json.Unmarshal(done.Report, &res.Report); err != nil {
				return Result{}, fmt.Errorf("decoding report: %w", err)
			}
			if cb.OnComplete != nil {
				cb.OnComplete(res)
			}
			return res, nil

		case stream.EventError:
			var p stream.ErrorPayload
			if err := json.Unmarshal(msg.Data, &p); err != nil {
				return Result{}, fmt.Errorf("decoding error event: %w", err)
			}
			if cb.OnError != nil {
				cb.OnError(p.Error)
			}
			return Result{}, &RunError{Message: p.Error}

		default:
			c.logger.Debug("ignoring event", "event", msg.Event)
		}
	}
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return statusError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}

// statusError reads the {"error": ...} body of a failed request, falling
// back to the raw text.
func statusError(resp *http.Response) error {
	raw := httputil.ReadErrorBody(resp)
	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(raw)
	if json.Unmarshal([]byte(raw), &body) == nil && body.Error != "" {
		msg = body.Error
	}
	return &StatusError{Code: resp.StatusCode, Message: msg}
}

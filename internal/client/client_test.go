// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/recap-engine/internal/stream"
	"github.com/pdiddy/recap-engine/pkg/types"
)

func msg(t *testing.T, event string, payload any) stream.Message {
	t.Helper()
	m, err := stream.NewMessage(event, payload)
	require.NoError(t, err)
	return m
}

func stage(t *testing.T, n int, status types.StageStatus) stream.Message {
	return msg(t, stream.EventStage, types.StageEvent{Stage: n, Name: "s", Status: status})
}

// sseServer answers every request with msgs and records the last request.
func sseServer(t *testing.T, msgs ...stream.Message) (*httptest.Server, *http.Request, *[]byte) {
	t.Helper()
	var (
		gotReq  http.Request
		gotBody []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = *r
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "text/event-stream")
		sw := stream.NewWriter(w)
		for _, m := range msgs {
			require.NoError(t, sw.Write(m))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &gotReq, &gotBody
}

func newClient(url string) *Client {
	return New(url, WithLogger(log.New(io.Discard)))
}

func TestAnalyze_Complete(t *testing.T) {
	report, _ := json.Marshal(types.AggregatedReport{TotalApps: 2, Summary: "a year"})
	srv, req, body := sseServer(t,
		stage(t, 1, types.StatusProcessing),
		stage(t, 1, types.StatusCompleted),
		stage(t, 2, types.StatusProcessing),
		msg(t, stream.EventComplete, stream.CompletePayload{Success: true, RunID: "run-1", Report: report}),
	)

	var stages []int
	var completed *Result
	res, err := newClient(srv.URL+"/").Analyze(context.Background(),
		types.AnalysisRequest{Images: []string{"data:image/png;base64,AA"}, Style: types.StyleTech},
		Callbacks{
			OnStage:    func(ev types.StageEvent) { stages = append(stages, ev.Stage) },
			OnComplete: func(r Result) { completed = &r },
			OnError:    func(string) { t.Fatal("unexpected error callback") },
		})
	require.NoError(t, err)

	assert.Equal(t, "/api/analyze", req.URL.Path)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "application/json", req.Header.Get("Content-Type"))
	assert.JSONEq(t, `{"images":["data:image/png;base64,AA"],"style":"tech"}`, string(*body))

	assert.Equal(t, []int{1, 1, 2}, stages)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, 2, res.Report.TotalApps)
	require.NotNil(t, completed)
	assert.Equal(t, res, *completed)
}

func TestAnalyze_ErrorEvent(t *testing.T) {
	srv, _, _ := sseServer(t,
		stage(t, 1, types.StatusProcessing),
		msg(t, stream.EventError, stream.ErrorPayload{Error: "Identify sources failed: quota"}),
	)

	var got string
	_, err := newClient(srv.URL).Analyze(context.Background(), types.AnalysisRequest{}, Callbacks{
		OnError: func(m string) { got = m },
	})

	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, "Identify sources failed: quota", runErr.Message)
	assert.Equal(t, runErr.Message, got)
}

func TestAnalyze_StreamEndsEarly(t *testing.T) {
	srv, _, _ := sseServer(t, stage(t, 1, types.StatusProcessing))

	_, err := newClient(srv.URL).Analyze(context.Background(), types.AnalysisRequest{}, Callbacks{})
	assert.ErrorIs(t, err, ErrStreamEnded)
}

func TestAnalyze_StatusError(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"json body", `{"error":"at least one screenshot is required"}`, "at least one screenshot is required"},
		{"plain body", "bad gateway\n", "bad gateway"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadRequest)
				io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			_, err := newClient(srv.URL).Analyze(context.Background(), types.AnalysisRequest{}, Callbacks{})
			var se *StatusError
			require.ErrorAs(t, err, &se)
			assert.Equal(t, http.StatusBadRequest, se.Code)
			assert.Equal(t, tt.want, se.Message)
		})
	}
}

func TestResume_PostsCorrection(t *testing.T) {
	report, _ := json.Marshal(types.AggregatedReport{TotalApps: 1})
	srv, req, body := sseServer(t,
		stage(t, 3, types.StatusProcessing),
		msg(t, stream.EventComplete, stream.CompletePayload{Success: true, RunID: "run-2", Report: report}),
	)

	corrected := []types.AppData{{App: "Bilibili", Metrics: []types.Metric{{Label: "Hours", Value: "12", Kind: types.KindDuration}}}}
	res, err := newClient(srv.URL).Resume(context.Background(), "run-1", corrected, Callbacks{})
	require.NoError(t, err)

	assert.Equal(t, "/api/runs/run-1/resume", req.URL.Path)
	assert.JSONEq(t, `{"extractedData":[{"app":"Bilibili","metrics":[{"label":"Hours","value":"12","type":"duration"}]}]}`, string(*body))
	assert.Equal(t, "run-2", res.RunID)
}

func TestRunsAndRun(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/api/runs":
			assert.Equal(t, "5", r.URL.Query().Get("limit"))
			io.WriteString(w, `{"runs":[{"id":"b","status":"completed"},{"id":"a","status":"failed"}]}`)
		case "/api/runs/a":
			io.WriteString(w, `{"id":"a","status":"failed","error":"boom"}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			io.WriteString(w, `{"error":"run not found"}`)
		}
	}))
	defer srv.Close()
	c := newClient(srv.URL)
	ctx := context.Background()

	runs, err := c.Runs(ctx, 5)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "b", runs[0].ID)

	run, err := c.Run(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, types.RunFailed, run.Status)
	assert.Equal(t, "boom", run.Error)

	_, err = c.Run(ctx, "zzz")
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusNotFound, se.Code)
	assert.Equal(t, "run not found", se.Message)
}

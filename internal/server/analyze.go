// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/pdiddy/recap-engine/internal/gateway"
	"github.com/pdiddy/recap-engine/internal/ingest"
	"github.com/pdiddy/recap-engine/internal/pipeline"
	"github.com/pdiddy/recap-engine/internal/store"
	"github.com/pdiddy/recap-engine/internal/stream"
	"github.com/pdiddy/recap-engine/pkg/types"
)

// ResumeRequest is the body of POST /api/runs/{id}/resume.
type ResumeRequest struct {
	ExtractedData []types.AppData `json:"extractedData"`
}

// archiveTimeout bounds archive writes that happen after the client's
// request context may already be gone.
const archiveTimeout = 5 * time.Second

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req types.AnalysisRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	for i, img := range req.Images {
		req.Images[i] = ingest.Normalize(img)
	}

	req, err := pipeline.Validate(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	orch, ok := s.orchestrator(w)
	if !ok {
		return
	}
	rc, err := orch.NewRun(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.logger.Info("analysis requested", "run", rc.ID(), "images", len(req.Images), "style", req.Style, "mode", req.Mode)
	s.stream(w, r, rc, func(ctx context.Context, emit pipeline.EmitFunc) (pipeline.RunContext, error) {
		return orch.ResumeFrom(ctx, 1, rc, emit)
	})
}

// handleResume re-runs stages 3-5 of an archived run with user-corrected
// extraction data. Stage 1 is kept; the images are not needed.
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, http.StatusNotFound, "run archive is disabled")
		return
	}

	var req ResumeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := validateCorrection(req.ExtractedData); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id := r.PathValue("id")
	run, err := s.store.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		s.logger.Error("loading run", "id", id, "err", err)
		writeError(w, http.StatusInternalServerError, "could not load run")
		return
	}
	if run.Outputs.Sources == nil {
		writeError(w, http.StatusConflict, "run has no identified sources to resume from")
		return
	}

	orch, ok := s.orchestrator(w)
	if !ok {
		return
	}
	base := pipeline.FromRun(run, orch.Year()).WithCorrection(req.ExtractedData)

	s.logger.Info("resume requested", "run", base.ID(), "parent", id, "apps", len(req.ExtractedData))
	s.stream(w, r, base, func(ctx context.Context, emit pipeline.EmitFunc) (pipeline.RunContext, error) {
		return orch.ResumeFrom(ctx, 3, base, emit)
	})
}

func validateCorrection(data []types.AppData) error {
	if data == nil {
		return errors.New("extractedData is required")
	}
	for i, app := range data {
		for j, m := range app.Metrics {
			if !m.Kind.Valid() {
				return fmt.Errorf("extractedData[%d].metrics[%d]: unknown type %q", i, j, m.Kind)
			}
		}
	}
	return nil
}

// decodeBody reads a size-capped JSON body into v, answering 400 or 413
// itself on failure.
func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("request body exceeds %d bytes", tooBig.Limit))
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	// The server only notices a client disconnect once the body hits EOF.
	io.Copy(io.Discard, r.Body)
	return true
}

// orchestrator builds the pipeline for one run. A missing credential is
// answered with 500 before any stream opens.
func (s *Server) orchestrator(w http.ResponseWriter) (*pipeline.Orchestrator, bool) {
	inv, err := s.invoker()
	if err != nil {
		if errors.Is(err, gateway.ErrMissingCredential) {
			s.logger.Error("inference gateway key is not configured")
			writeError(w, http.StatusInternalServerError, "inference service is not configured")
			return nil, false
		}
		s.logger.Error("building gateway client", "err", err)
		writeError(w, http.StatusInternalServerError, "inference service is unavailable")
		return nil, false
	}
	return pipeline.New(inv, s.cfg.Pipeline, pipeline.WithLogger(s.logger.WithPrefix("pipeline"))), true
}

// runFunc executes a run against emit.
type runFunc func(ctx context.Context, emit pipeline.EmitFunc) (pipeline.RunContext, error)

// stream opens the event-stream response and pumps the run's events into
// it. The run executes on its own goroutine and hands each event over a
// stream.Channel, so it waits for every write to reach the connection. A
// failed write cancels the run.
func (s *Server) stream(w http.ResponseWriter, r *http.Request, rc pipeline.RunContext, run runFunc) {
	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// Runs take minutes; lift any server write deadline.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	s.archive(rc.Run(types.RunRunning, ""))

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ch := stream.NewChannel()
	type outcome struct {
		rc  pipeline.RunContext
		err error
	}
	done := make(chan outcome, 1)

	go func() {
		defer ch.Close()
		emit := func(ctx context.Context, msg stream.Message) error {
			if err := ch.Send(ctx, msg); err != nil {
				return err
			}
			s.recordEvent(rc.ID(), msg)
			return nil
		}
		final, err := run(ctx, emit)
		done <- outcome{final, err}
	}()

	sw := stream.NewWriter(w)
	for msg := range ch.Messages() {
		if err := sw.Write(msg); err != nil {
			s.logger.Warn("client stream closed", "run", rc.ID(), "err", err)
			ch.Abandon()
			cancel()
			break
		}
	}

	res := <-done
	switch {
	case res.err == nil:
		s.archive(res.rc.Run(types.RunCompleted, ""))
	case errors.Is(res.err, pipeline.ErrEmit) || errors.Is(res.err, context.Canceled):
		s.logger.Info("run abandoned by client", "run", rc.ID())
		s.archive(res.rc.Run(types.RunFailed, "client disconnected"))
	default:
		s.archive(res.rc.Run(types.RunFailed, res.err.Error()))
	}
}

// archive saves run, logging failures. The stream never sees them.
func (s *Server) archive(run types.Run) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := s.store.SaveRun(ctx, run); err != nil {
		s.logger.Warn("archiving run", "run", run.ID, "err", err)
	}
}

func (s *Server) recordEvent(runID string, msg stream.Message) {
	if s.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()
	if err := s.store.AppendEvent(ctx, runID, msg); err != nil {
		s.logger.Warn("archiving event", "run", runID, "event", msg.Event, "err", err)
	}
}

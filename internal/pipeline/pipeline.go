// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs the five analysis stages over one set of
// screenshots. Stages execute strictly in order; each one is a single
// schema-forced gateway call whose typed result feeds the next stage's
// instruction. Progress is reported through an emit function after every
// status change, and a run ends with exactly one complete or error event.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/pdiddy/recap-engine/internal/gateway"
	"github.com/pdiddy/recap-engine/internal/report"
	"github.com/pdiddy/recap-engine/internal/stream"
	"github.com/pdiddy/recap-engine/pkg/types"
)

var (
	// ErrNoImages is returned before any inference call when a request has
	// no images.
	ErrNoImages = errors.New("at least one screenshot is required")

	// ErrInvalidRequest is returned for an unknown style or extraction mode.
	ErrInvalidRequest = errors.New("invalid analysis request")

	// ErrMissingPrior is returned by ResumeFrom when the base context lacks
	// the outputs of stages before the resume point.
	ErrMissingPrior = errors.New("prior stage outputs missing")

	// ErrEmit wraps a failed emit. The run stops without an error event
	// because nobody is listening.
	ErrEmit = errors.New("event delivery failed")
)

// EmitFunc delivers one event to the consumer. It may block; a returned
// error means the consumer is gone. stream.Channel.Send satisfies it.
type EmitFunc func(ctx context.Context, msg stream.Message) error

// StageError reports the stage at which a run failed.
type StageError struct {
	Stage int
	Name  string
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %d (%s): %v", e.Stage, e.Name, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Orchestrator sequences the stages against an Invoker. It holds no
// per-run state, so one Orchestrator can serve concurrent runs.
type Orchestrator struct {
	inv    gateway.Invoker
	cfg    types.PipelineConfig
	logger *log.Logger
	stages []Stage
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger for stage progress.
func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New returns an Orchestrator calling inv. A zero ReportYear means the
// current calendar year.
func New(inv gateway.Invoker, cfg types.PipelineConfig, opts ...Option) *Orchestrator {
	if cfg.ReportYear <= 0 {
		cfg.ReportYear = time.Now().Year()
	}
	o := &Orchestrator{
		inv:    inv,
		cfg:    cfg,
		logger: log.Default(),
		stages: Stages,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Year returns the report year narratives are bound to.
func (o *Orchestrator) Year() int {
	return o.cfg.ReportYear
}

// Validate normalizes req: an empty style becomes playful and an empty
// mode becomes normal. It rejects requests without images and unknown
// style or mode values.
func Validate(req types.AnalysisRequest) (types.AnalysisRequest, error) {
	if len(req.Images) == 0 {
		return req, ErrNoImages
	}
	if req.Style == "" {
		req.Style = types.StylePlayful
	}
	if !req.Style.Valid() {
		return req, fmt.Errorf("%w: unknown style %q", ErrInvalidRequest, req.Style)
	}
	if req.Mode == "" {
		req.Mode = types.ModeNormal
	}
	if !req.Mode.Valid() {
		return req, fmt.Errorf("%w: unknown extraction mode %q", ErrInvalidRequest, req.Mode)
	}
	return req, nil
}

// NewRun validates req and returns the context for a fresh run.
func (o *Orchestrator) NewRun(req types.AnalysisRequest) (RunContext, error) {
	req, err := Validate(req)
	if err != nil {
		return RunContext{}, err
	}
	return NewRunContext(req, o.cfg.ReportYear), nil
}

// Run executes all five stages for req. See ResumeFrom for the returned
// values.
func (o *Orchestrator) Run(ctx context.Context, req types.AnalysisRequest, emit EmitFunc) (RunContext, error) {
	rc, err := o.NewRun(req)
	if err != nil {
		return rc, err
	}
	return o.ResumeFrom(ctx, 1, rc, emit)
}

// ResumeFrom executes stages from..5 using the outputs of earlier stages
// held in base. The returned context carries every stage result that
// completed, plus the report on success.
//
// Precondition failures (bad stage number, missing prior outputs, no
// images for stages 1-2) return an error before anything is emitted. A
// stage failure emits one error event and returns a *StageError. A failed
// emit returns an error wrapping ErrEmit and emits nothing further.
func (o *Orchestrator) ResumeFrom(ctx context.Context, from int, base RunContext, emit EmitFunc) (RunContext, error) {
	if from < 1 || from > len(o.stages) {
		return base, fmt.Errorf("%w: no stage %d", ErrInvalidRequest, from)
	}
	for _, n := range report.Missing(base.Outputs()) {
		if n < from {
			return base, fmt.Errorf("%w: stage %d has no result", ErrMissingPrior, n)
		}
	}
	if from <= 2 && len(base.Request().Images) == 0 {
		return base, ErrNoImages
	}

	logger := o.logger.With("run", base.ID())
	logger.Info("run started", "from", from, "images", len(base.Request().Images),
		"style", base.Request().Style, "mode", base.Request().Mode)

	rc := base
	for _, st := range o.stages[from-1:] {
		next, err := o.runStage(ctx, st, rc, emit, logger)
		if err != nil {
			return next, err
		}
		rc = next
	}

	rep, err := report.Aggregate(rc.Outputs())
	if err != nil {
		return rc, o.fail(ctx, emit, logger, err.Error(), err)
	}
	rc = rc.WithReport(rep)

	repJSON, err := json.Marshal(rep)
	if err != nil {
		return rc, o.fail(ctx, emit, logger, "could not encode the report", err)
	}
	msg, err := stream.NewMessage(stream.EventComplete, stream.CompletePayload{Success: true, RunID: rc.ID(), Report: repJSON})
	if err != nil {
		return rc, o.fail(ctx, emit, logger, "could not encode the report", err)
	}
	if err := emit(ctx, msg); err != nil {
		return rc, fmt.Errorf("%w: %w", ErrEmit, err)
	}

	logger.Info("run completed", "apps", rep.TotalApps, "highlights", len(rep.Highlights))
	return rc, nil
}

// runStage executes one stage: processing event, gateway call, completed
// event.
func (o *Orchestrator) runStage(ctx context.Context, st Stage, rc RunContext, emit EmitFunc, logger *log.Logger) (RunContext, error) {
	if err := o.emitStage(ctx, emit, types.StageEvent{Stage: st.Number, Name: st.Name, Status: types.StatusProcessing}); err != nil {
		return rc, err
	}
	logger.Debug("stage started", "stage", st.Number, "name", st.Name)
	start := time.Now()

	system, user, err := st.Build(rc)
	if err != nil {
		serr := &StageError{Stage: st.Number, Name: st.Name, Err: err}
		return rc, o.fail(ctx, emit, logger, serr.Error(), serr)
	}

	call := gateway.Call{System: system, User: user, Tool: st.Tool}
	if st.NeedsImages {
		call.Images = rc.Request().Images
	}

	callCtx := ctx
	if o.cfg.StageTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, o.cfg.StageTimeout)
		defer cancel()
	}

	next, payload, err := st.exec(callCtx, o.inv, call, rc)
	if err != nil {
		if ctx.Err() != nil {
			// The consumer cancelled the run; there is nobody to tell.
			logger.Info("run cancelled", "stage", st.Number)
			return rc, ctx.Err()
		}
		serr := &StageError{Stage: st.Number, Name: st.Name, Err: err}
		logger.Error("stage failed", "stage", st.Number, "name", st.Name, "err", err)
		return rc, o.fail(ctx, emit, logger, failureMessage(st, err), serr)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		serr := &StageError{Stage: st.Number, Name: st.Name, Err: err}
		return rc, o.fail(ctx, emit, logger, serr.Error(), serr)
	}
	if err := o.emitStage(ctx, emit, types.StageEvent{Stage: st.Number, Name: st.Name, Status: types.StatusCompleted, Data: data}); err != nil {
		return next, err
	}

	logger.Info("stage completed", "stage", st.Number, "name", st.Name, "elapsed", time.Since(start).Round(time.Millisecond))
	return next, nil
}

func (o *Orchestrator) emitStage(ctx context.Context, emit EmitFunc, ev types.StageEvent) error {
	msg, err := stream.NewMessage(stream.EventStage, ev)
	if err != nil {
		return err
	}
	if err := emit(ctx, msg); err != nil {
		return fmt.Errorf("%w: %w", ErrEmit, err)
	}
	return nil
}

// fail emits the terminal error event and returns cause. If the error
// event itself cannot be delivered, the emit failure is joined in.
func (o *Orchestrator) fail(ctx context.Context, emit EmitFunc, logger *log.Logger, message string, cause error) error {
	msg, err := stream.NewMessage(stream.EventError, stream.ErrorPayload{Error: message})
	if err != nil {
		return errors.Join(cause, err)
	}
	if err := emit(ctx, msg); err != nil {
		logger.Warn("could not deliver error event", "err", err)
		return errors.Join(cause, fmt.Errorf("%w: %w", ErrEmit, err))
	}
	return cause
}

// failureMessage turns a gateway failure into the text shown to the user.
func failureMessage(st Stage, err error) string {
	var reason string
	switch {
	case errors.Is(err, gateway.ErrRateLimited):
		reason = "the inference service is rate limiting requests, please try again later"
	case errors.Is(err, gateway.ErrQuotaExhausted):
		reason = "the inference service quota is exhausted"
	case errors.Is(err, gateway.ErrTimeout):
		reason = "the inference service timed out"
	case errors.Is(err, gateway.ErrSchemaViolation):
		reason = "the model returned an unusable result"
	case errors.Is(err, gateway.ErrUpstreamUnavailable):
		reason = "the inference service is unavailable"
	default:
		reason = err.Error()
	}
	return fmt.Sprintf("%s failed: %s", st.Name, reason)
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/pdiddy/recap-engine/internal/report"
	"github.com/pdiddy/recap-engine/pkg/types"
)

// RunContext is the state of one run as it moves through the stages. It is
// a value: every With method returns a modified copy and leaves the
// receiver untouched, so a stage can only see the outputs it was handed.
type RunContext struct {
	id        string
	parentID  string
	createdAt time.Time
	year      int
	request   types.AnalysisRequest
	outputs   types.StageOutputs
	report    *types.AggregatedReport
}

// NewRunContext starts a run for req with a fresh ID.
func NewRunContext(req types.AnalysisRequest, year int) RunContext {
	return RunContext{
		id:        uuid.NewString(),
		createdAt: time.Now().UTC(),
		year:      year,
		request:   req,
	}
}

// FromRun rebuilds the context of an archived run. The archive holds no
// images, so the result can only be resumed from stage 3 onward.
func FromRun(run types.Run, year int) RunContext {
	return RunContext{
		id:        run.ID,
		parentID:  run.ParentID,
		createdAt: run.CreatedAt,
		year:      year,
		request:   types.AnalysisRequest{Style: run.Style, Mode: run.Mode},
		outputs:   run.Outputs,
		report:    run.Report,
	}
}

func (rc RunContext) ID() string { return rc.id }
func (rc RunContext) ParentID() string { return rc.parentID }
func (rc RunContext) CreatedAt() time.Time { return rc.createdAt }
func (rc RunContext) Year() int { return rc.year }
func (rc RunContext) Request() types.AnalysisRequest { return rc.request }
func (rc RunContext) Outputs() types.StageOutputs { return rc.outputs }
func (rc RunContext) Report() *types.AggregatedReport { return rc.report }

// WithSources records the stage 1 result.
func (rc RunContext) WithSources(s types.Sources) RunContext {
	rc.outputs.Sources = &s
	return rc
}

// WithExtraction records the stage 2 result.
func (rc RunContext) WithExtraction(e types.Extraction) RunContext {
	rc.outputs.Extraction = &e
	return rc
}

// WithInsights records the stage 3 result.
func (rc RunContext) WithInsights(i types.Insights) RunContext {
	rc.outputs.Insights = &i
	return rc
}

// WithPersonality records the stage 4 result.
func (rc RunContext) WithPersonality(p types.Personality) RunContext {
	rc.outputs.Personality = &p
	return rc
}

// WithNarrative records the stage 5 result.
func (rc RunContext) WithNarrative(n types.Narrative) RunContext {
	rc.outputs.Narrative = &n
	return rc
}

// WithReport records the aggregated report.
func (rc RunContext) WithReport(r types.AggregatedReport) RunContext {
	rc.report = &r
	return rc
}

// WithCorrection derives a new run from rc whose extraction is replaced by
// corrected. Stage 1 is kept, stages 3-5 and the report are dropped, and
// the new run points back at rc.
func (rc RunContext) WithCorrection(corrected []types.AppData) RunContext {
	return RunContext{
		id:        uuid.NewString(),
		parentID:  rc.id,
		createdAt: time.Now().UTC(),
		year:      rc.year,
		request:   types.AnalysisRequest{Style: rc.request.Style, Mode: rc.request.Mode},
		outputs:   report.ApplyCorrection(rc.outputs, corrected),
	}
}

// Run renders rc as an archive record with the given terminal state.
func (rc RunContext) Run(status types.RunStatus, errMsg string) types.Run {
	return types.Run{
		ID:         rc.id,
		ParentID:   rc.parentID,
		CreatedAt:  rc.createdAt,
		Style:      rc.request.Style,
		Mode:       rc.request.Mode,
		ImageCount: len(rc.request.Images),
		Status:     status,
		Outputs:    rc.outputs,
		Report:     rc.report,
		Error:      errMsg,
	}
}

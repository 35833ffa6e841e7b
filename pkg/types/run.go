// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// RunStatus is the terminal state of an archived run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// StageOutputs holds the typed result of each stage that completed in a run.
// A nil field means the stage did not complete.
type StageOutputs struct {
	Sources     *Sources     `json:"sources,omitempty" yaml:"sources,omitempty"`
	Extraction  *Extraction  `json:"extraction,omitempty" yaml:"extraction,omitempty"`
	Insights    *Insights    `json:"insights,omitempty" yaml:"insights,omitempty"`
	Personality *Personality `json:"personality,omitempty" yaml:"personality,omitempty"`
	Narrative   *Narrative   `json:"narrative,omitempty" yaml:"narrative,omitempty"`
}

// Run is one archived attempt at the pipeline.
type Run struct {
	// ID is a random UUID assigned when the run starts.
	ID string `json:"id" yaml:"id"`

	// ParentID links a resumed run to the run whose data it corrected.
	ParentID string `json:"parent_id,omitempty" yaml:"parent_id,omitempty"`

	CreatedAt  time.Time      `json:"created_at" yaml:"created_at"`
	Style      Style          `json:"style" yaml:"style"`
	Mode       ExtractionMode `json:"mode" yaml:"mode"`
	ImageCount int            `json:"image_count" yaml:"image_count"`
	Status     RunStatus      `json:"status" yaml:"status"`

	// Outputs holds every stage result that completed.
	Outputs StageOutputs `json:"outputs" yaml:"outputs"`

	// Report is set when Status is completed.
	Report *AggregatedReport `json:"report,omitempty" yaml:"report,omitempty"`

	// Error records the terminal error message when Status is failed.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

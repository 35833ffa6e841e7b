// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdiddy/recap-engine/internal/gateway"
	"github.com/pdiddy/recap-engine/pkg/types"
)

// Stage is one row of the pipeline table.
type Stage struct {
	Number int
	Name   string
	Tool   gateway.Tool

	// NeedsImages attaches the request images to the call. Later stages
	// reason over extracted text only.
	NeedsImages bool

	// Build renders the system and user instructions from the run so far.
	Build func(rc RunContext) (system, user string, err error)

	// exec calls the gateway, records the typed result in rc, and returns
	// the payload for the completed event.
	exec func(ctx context.Context, inv gateway.Invoker, call gateway.Call, rc RunContext) (RunContext, any, error)
}

// decodeInto builds a Stage.exec that decodes the tool arguments into T.
// payload may be nil, in which case the decoded value itself is emitted.
func decodeInto[T any](apply func(RunContext, T) RunContext, payload func(RunContext, T) any) func(context.Context, gateway.Invoker, gateway.Call, RunContext) (RunContext, any, error) {
	return func(ctx context.Context, inv gateway.Invoker, call gateway.Call, rc RunContext) (RunContext, any, error) {
		v, err := gateway.Decode[T](ctx, inv, call)
		if err != nil {
			return rc, nil, err
		}
		next := apply(rc, v)
		if payload != nil {
			return next, payload(next, v), nil
		}
		return next, v, nil
	}
}

func builder(prefix string) func(RunContext) (string, string, error) {
	return func(rc RunContext) (string, string, error) { return render(prefix, rc) }
}

// sourcesPayload is the completed event body for stage 1.
type sourcesPayload struct {
	Count   int            `json:"count"`
	Sources []types.Source `json:"sources"`
	Summary string         `json:"summary"`
}

// Stages lists the pipeline in execution order. Stage N reads the outputs
// of stages before it from the RunContext.
var Stages = []Stage{
	{
		Number:      1,
		Name:        "Identify sources",
		Tool:        gateway.Tool{Name: "identify_sources", Description: "Identify the app and year of each screenshot", Parameters: sourcesSchema},
		NeedsImages: true,
		Build:       builder("sources"),
		exec: decodeInto(
			func(rc RunContext, v types.Sources) RunContext { return rc.WithSources(v) },
			func(rc RunContext, v types.Sources) any {
				return sourcesPayload{
					Count:   len(rc.Request().Images),
					Sources: v.Sources,
					Summary: fmt.Sprintf("Found annual reports from %d apps", len(v.Sources)),
				}
			},
		),
	},
	{
		Number:      2,
		Name:        "Extract data",
		Tool:        gateway.Tool{Name: "extract_data", Description: "Extract the key metrics of each app", Parameters: extractionSchema},
		NeedsImages: true,
		Build:       builder("extract"),
		exec: decodeInto(
			func(rc RunContext, v types.Extraction) RunContext { return rc.WithExtraction(v) },
			nil,
		),
	},
	{
		Number: 3,
		Name:   "Highlight insights",
		Tool:   gateway.Tool{Name: "generate_insights", Description: "Pick the most interesting highlights", Parameters: insightsSchema},
		Build:  builder("insights"),
		exec: decodeInto(
			func(rc RunContext, v types.Insights) RunContext { return rc.WithInsights(v) },
			nil,
		),
	},
	{
		Number: 4,
		Name:   "Personality inference",
		Tool:   gateway.Tool{Name: "infer_personality", Description: "Infer the four-letter personality type", Parameters: personalitySchema},
		Build:  builder("personality"),
		exec: decodeInto(
			func(rc RunContext, v types.Personality) RunContext {
				v.Type = strings.ToUpper(v.Type)
				for dim, c := range v.Confidence {
					c.Letter = strings.ToUpper(c.Letter)
					v.Confidence[dim] = c
				}
				return rc.WithPersonality(v)
			},
			func(rc RunContext, _ types.Personality) any { return *rc.Outputs().Personality },
		),
	},
	{
		Number: 5,
		Name:   "Write report",
		Tool:   gateway.Tool{Name: "write_summary", Description: "Write the year-in-review note", Parameters: narrativeSchema},
		Build:  builder("narrative"),
		exec: decodeInto(
			func(rc RunContext, v types.Narrative) RunContext { return rc.WithNarrative(v) },
			nil,
		),
	},
}

// StageName returns the display name of stage n, or "" if n is out of range.
func StageName(n int) string {
	if n < 1 || n > len(Stages) {
		return ""
	}
	return Stages[n-1].Name
}

func str(desc string) *gateway.Schema {
	return &gateway.Schema{Type: "string", Description: desc}
}

func enum(values []string) *gateway.Schema {
	return &gateway.Schema{Type: "string", Enum: values}
}

var sourcesSchema = &gateway.Schema{
	Type: "object",
	Properties: map[string]*gateway.Schema{
		"sources": {
			Type: "array",
			Items: &gateway.Schema{
				Type: "object",
				Properties: map[string]*gateway.Schema{
					"app":  str("App name"),
					"year": str("Report year"),
				},
				Required: []string{"app", "year"},
			},
		},
	},
	Required: []string{"sources"},
}

func metricKinds() []string {
	out := make([]string, len(types.MetricKinds))
	for i, k := range types.MetricKinds {
		out[i] = string(k)
	}
	return out
}

// extractionSchema is the same for every extraction mode; only the
// instruction changes.
var extractionSchema = &gateway.Schema{
	Type: "object",
	Properties: map[string]*gateway.Schema{
		"extractedData": {
			Type: "array",
			Items: &gateway.Schema{
				Type: "object",
				Properties: map[string]*gateway.Schema{
					"app": str("App name"),
					"metrics": {
						Type: "array",
						Items: &gateway.Schema{
							Type: "object",
							Properties: map[string]*gateway.Schema{
								"label": str("What the figure measures"),
								"value": str("The figure as shown"),
								"type":  enum(metricKinds()),
							},
							Required: []string{"label", "value", "type"},
						},
					},
				},
				Required: []string{"app", "metrics"},
			},
		},
	},
	Required: []string{"extractedData"},
}

var insightsSchema = &gateway.Schema{
	Type: "object",
	Properties: map[string]*gateway.Schema{
		"highlights": {
			Type:     "array",
			MaxItems: gateway.Int(types.MaxHighlights),
			Items: &gateway.Schema{
				Type: "object",
				Properties: map[string]*gateway.Schema{
					"icon":    enum(types.HighlightIcons),
					"label":   str("Short title"),
					"value":   str("The headline figure"),
					"subtext": str("Optional one-line comment"),
				},
				Required: []string{"icon", "label", "value"},
			},
		},
	},
	Required: []string{"highlights"},
}

func dimensionSchema() *gateway.Schema {
	return &gateway.Schema{
		Type: "object",
		Properties: map[string]*gateway.Schema{
			"letter":     str("The chosen letter"),
			"confidence": {Type: "number", Minimum: gateway.Float(0), Maximum: gateway.Float(1)},
			"reason":     str("Evidence for the letter"),
		},
		Required: []string{"letter", "confidence", "reason"},
	}
}

func dimensionProperties() map[string]*gateway.Schema {
	props := make(map[string]*gateway.Schema, len(types.Dimensions))
	for _, d := range types.Dimensions {
		props[string(d)] = dimensionSchema()
	}
	return props
}

func dimensionNames() []string {
	out := make([]string, len(types.Dimensions))
	for i, d := range types.Dimensions {
		out[i] = string(d)
	}
	return out
}

var personalitySchema = &gateway.Schema{
	Type: "object",
	Properties: map[string]*gateway.Schema{
		"type": {
			Type:        "string",
			Description: "Four-letter personality type",
			Pattern:     "^[EIei][NSns][TFtf][JPjp]$",
		},
		"title": str("A fun title for the personality"),
		"traits": {
			Type:        "array",
			Description: "Four personality traits",
			Items:       &gateway.Schema{Type: "string"},
		},
		"explanation": str("Why this type was chosen"),
		"confidence": {
			Type:       "object",
			Properties: dimensionProperties(),
			Required:   dimensionNames(),
		},
	},
	Required: []string{"type", "title", "traits", "explanation", "confidence"},
}

var narrativeSchema = &gateway.Schema{
	Type: "object",
	Properties: map[string]*gateway.Schema{
		"summary": str("The year-in-review note"),
	},
	Required: []string{"summary"},
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report merges completed stage results into the final
// AggregatedReport. It performs no inference.
package report

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pdiddy/recap-engine/pkg/types"
)

// ErrIncomplete is returned when Aggregate is given outputs from a run that
// has not finished all five stages.
var ErrIncomplete = errors.New("stage outputs incomplete")

// Missing returns the numbers of stages without a result, in ascending order.
func Missing(o types.StageOutputs) []int {
	var missing []int
	if o.Sources == nil {
		missing = append(missing, 1)
	}
	if o.Extraction == nil {
		missing = append(missing, 2)
	}
	if o.Insights == nil {
		missing = append(missing, 3)
	}
	if o.Personality == nil {
		missing = append(missing, 4)
	}
	if o.Narrative == nil {
		missing = append(missing, 5)
	}
	return missing
}

// Aggregate builds the report from the five stage results. It is pure: the
// returned report shares no slices or maps with o, and equal inputs always
// produce equal reports.
func Aggregate(o types.StageOutputs) (types.AggregatedReport, error) {
	if missing := Missing(o); len(missing) > 0 {
		return types.AggregatedReport{}, fmt.Errorf("%w: missing stage(s) %s", ErrIncomplete, joinInts(missing))
	}

	apps := make([]string, len(o.Sources.Sources))
	for i, s := range o.Sources.Sources {
		apps[i] = s.App
	}

	return types.AggregatedReport{
		TotalApps:  len(o.Sources.Sources),
		Apps:       apps,
		Highlights: append([]types.Highlight{}, o.Insights.Highlights...),
		Summary:    o.Narrative.Summary,
		Personality: types.PersonalitySummary{
			Type:        o.Personality.Type,
			Title:       o.Personality.Title,
			Traits:      append([]string{}, o.Personality.Traits...),
			Explanation: o.Personality.Explanation,
		},
		ExtractedData: copyAppData(o.Extraction.ExtractedData),
		Confidence:    copyConfidence(o.Personality.Confidence),
	}, nil
}

// ApplyCorrection returns a copy of o whose extraction is replaced by the
// user-corrected data. Stages that depend on the extraction (3-5) are
// cleared; stage 1 is kept.
func ApplyCorrection(o types.StageOutputs, corrected []types.AppData) types.StageOutputs {
	out := types.StageOutputs{
		Extraction: &types.Extraction{ExtractedData: copyAppData(corrected)},
	}
	if o.Sources != nil {
		s := types.Sources{Sources: append([]types.Source{}, o.Sources.Sources...)}
		out.Sources = &s
	}
	return out
}

func copyAppData(in []types.AppData) []types.AppData {
	out := make([]types.AppData, len(in))
	for i, a := range in {
		out[i] = types.AppData{
			App:     a.App,
			Metrics: append([]types.Metric{}, a.Metrics...),
		}
	}
	return out
}

func copyConfidence(in map[types.Dimension]types.DimensionConfidence) map[types.Dimension]types.DimensionConfidence {
	out := make(map[types.Dimension]types.DimensionConfidence, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func joinInts(ns []int) string {
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprint(n)
	}
	return strings.Join(parts, ", ")
}

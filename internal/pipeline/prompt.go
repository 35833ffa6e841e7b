// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"text/template"

	"github.com/pdiddy/recap-engine/pkg/types"
)

// styleDescriptions tells the model what tone each style calls for.
var styleDescriptions = map[types.Style]string{
	types.StylePlayful:  "playful and lively: upbeat wording, emoji and exclamation marks welcome, warm and enthusiastic",
	types.StyleMinimal:  "clean and minimal: short precise sentences that put the key point first and skip filler",
	types.StyleRetro:    "retro and nostalgic: a warm, reminiscent voice with a sense of looking back",
	types.StyleTech:     "futuristic tech: modern wording with a technical edge, occasional tech jargon is fine",
	types.StyleArtistic: "artistic watercolor: graceful, poetic language with an artistic feel",
}

// strictnessModifiers is inserted into the extraction instruction only.
var strictnessModifiers = map[types.ExtractionMode]string{
	types.ModeStrict: "Extract only what is unambiguously visible in the screenshots. Do not guess or infer any value.",
	types.ModeLoose:  "You may infer plausible supplementary values where the screenshots imply them.",
	types.ModeNormal: "Extract the data shown in the screenshots.",
}

// styleDescription returns the tone description for s, falling back to
// playful for unknown values.
func styleDescription(s types.Style) string {
	if d, ok := styleDescriptions[s]; ok {
		return d
	}
	return styleDescriptions[types.StylePlayful]
}

func strictnessModifier(m types.ExtractionMode) string {
	if d, ok := strictnessModifiers[m]; ok {
		return d
	}
	return strictnessModifiers[types.ModeNormal]
}

var promptTmpl = template.Must(template.New("prompts").Parse(`
{{- define "sources.system" -}}
You are an image recognition specialist. Identify the app and the year each screenshot comes from. Return only the identification, no analysis.
{{- end}}

{{- define "sources.user" -}}
Identify the source app and year of these {{.ImageCount}} screenshots.
{{- end}}

{{- define "extract.system" -}}
You are a data extraction specialist. {{.Strictness}} Extract the key metrics for every app.
{{- end}}

{{- define "extract.user" -}}
Extract all key figures from these {{.ImageCount}} annual report screenshots, such as time spent, counts, amounts and rankings.
{{- if .Sources}}
The screenshots were identified as: {{.Sources}}. Report every metric under one of these app names.
{{- end}}
{{- end}}

{{- define "insights.system" -}}
You are an insight analyst. From the extracted data, pick the 6 to 8 most interesting highlights. Never return more than 8.
Style: {{.Style}}
{{- end}}

{{- define "insights.user" -}}
Generate highlights from this data:
{{.Extracted}}
{{- end}}

{{- define "personality.system" -}}
You are a personality analyst. Infer the user's four-letter personality type for the year from their digital behavior data. For every dimension give the chosen letter, a confidence between 0 and 1, and the reason.

Rules:
- E/I: activity in social apps, sharing behavior, late-night activity
- N/S: breadth of content consumed, exploration of new things
- T/F: preference for knowledge content over entertainment
- J/P: regularity of usage and daily routine
{{- end}}

{{- define "personality.user" -}}
Infer the personality type from this behavior data:
{{.Extracted}}
{{- if .Highlights}}
The year's highlights were: {{.Highlights}}
{{- end}}
{{- end}}

{{- define "narrative.system" -}}
You are a copywriter. Write a heartfelt {{.Year}} year-in-review note based on all the analysis results.
Style: {{.Style}}
It should read like a letter from a friend, quote concrete figures from the highlights, and be 150 to 250 words long.
This is the {{.Year}} annual report: mention the year {{.Year}} explicitly.
{{- end}}

{{- define "narrative.user" -}}
Write the {{.Year}} year-in-review note from these results:
Highlights: {{.Highlights}}
Personality: {{.PersonalityType}} {{.PersonalityTitle}}
{{- end}}
`))

// promptData is everything a stage instruction may refer to.
type promptData struct {
	ImageCount       int
	Style            string
	Strictness       string
	Year             int
	Sources          string
	Extracted        string
	Highlights       string
	PersonalityType  string
	PersonalityTitle string
}

// newPromptData collects the prior results available in rc. Fields for
// stages that have not run yet stay empty.
func newPromptData(rc RunContext) (promptData, error) {
	req := rc.Request()
	d := promptData{
		ImageCount: len(req.Images),
		Style:      styleDescription(req.Style),
		Strictness: strictnessModifier(req.Mode),
		Year:       rc.Year(),
	}

	out := rc.Outputs()
	if out.Sources != nil {
		names := make([]string, 0, len(out.Sources.Sources))
		for _, src := range out.Sources.Sources {
			names = append(names, fmt.Sprintf("%s (%s)", src.App, src.Year))
		}
		d.Sources = strings.Join(names, ", ")
	}
	if out.Extraction != nil {
		data, err := json.MarshalIndent(out.Extraction.ExtractedData, "", "  ")
		if err != nil {
			return d, fmt.Errorf("marshaling extracted data: %w", err)
		}
		d.Extracted = string(data)
	}
	if out.Insights != nil {
		data, err := json.Marshal(out.Insights.Highlights)
		if err != nil {
			return d, fmt.Errorf("marshaling highlights: %w", err)
		}
		d.Highlights = string(data)
	}
	if out.Personality != nil {
		d.PersonalityType = out.Personality.Type
		d.PersonalityTitle = out.Personality.Title
	}
	return d, nil
}

// render executes the named system and user templates for prefix.
func render(prefix string, rc RunContext) (string, string, error) {
	d, err := newPromptData(rc)
	if err != nil {
		return "", "", err
	}
	var sys, user bytes.Buffer
	if err := promptTmpl.ExecuteTemplate(&sys, prefix+".system", d); err != nil {
		return "", "", fmt.Errorf("rendering %s system prompt: %w", prefix, err)
	}
	if err := promptTmpl.ExecuteTemplate(&user, prefix+".user", d); err != nil {
		return "", "", fmt.Errorf("rendering %s user prompt: %w", prefix, err)
	}
	return sys.String(), user.String(), nil
}

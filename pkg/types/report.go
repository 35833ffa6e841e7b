// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "encoding/json"

// Style selects the presentation tone used in insight and narrative prompts.
type Style string

const (
	StylePlayful  Style = "playful"
	StyleMinimal  Style = "minimal"
	StyleRetro    Style = "retro"
	StyleTech     Style = "tech"
	StyleArtistic Style = "artistic"
)

// Styles lists every accepted Style in display order.
var Styles = []Style{StylePlayful, StyleMinimal, StyleRetro, StyleTech, StyleArtistic}

// Valid reports whether s is one of the known styles.
func (s Style) Valid() bool {
	for _, known := range Styles {
		if s == known {
			return true
		}
	}
	return false
}

// ExtractionMode controls how conservatively the extraction stage reads
// values from the screenshots.
type ExtractionMode string

const (
	ModeNormal ExtractionMode = "normal"
	ModeStrict ExtractionMode = "strict"
	ModeLoose  ExtractionMode = "loose"
)

// Valid reports whether m is one of the known extraction modes.
func (m ExtractionMode) Valid() bool {
	return m == ModeNormal || m == ModeStrict || m == ModeLoose
}

// AnalysisRequest is one request to analyze a set of screenshots.
type AnalysisRequest struct {
	// Images holds inline-encoded screenshots in upload order. At least one
	// image is required.
	Images []string `json:"images" yaml:"images"`

	// Style is the presentation style for generated text.
	Style Style `json:"style" yaml:"style"`

	// Mode is the extraction strictness for stage 2 (default normal).
	Mode ExtractionMode `json:"strictMode,omitempty" yaml:"strict_mode,omitempty"`
}

// StageStatus is the lifecycle state of one pipeline stage.
type StageStatus string

const (
	StatusPending    StageStatus = "pending"
	StatusProcessing StageStatus = "processing"
	StatusCompleted  StageStatus = "completed"
)

// StageEvent reports a status transition of one stage. Data is present only
// when Status is completed.
type StageEvent struct {
	Stage  int             `json:"stage"`
	Name   string          `json:"name"`
	Status StageStatus     `json:"status"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// Source is one identified screenshot origin.
type Source struct {
	App  string `json:"app" yaml:"app"`
	Year string `json:"year" yaml:"year"`
}

// Sources is the stage 1 result.
type Sources struct {
	Sources []Source `json:"sources" yaml:"sources"`
}

// MetricKind classifies an extracted metric value.
type MetricKind string

const (
	KindDuration MetricKind = "duration"
	KindCount    MetricKind = "count"
	KindAmount   MetricKind = "amount"
	KindRank     MetricKind = "rank"
	KindPercent  MetricKind = "percent"
	KindOther    MetricKind = "other"
)

// MetricKinds lists every accepted MetricKind.
var MetricKinds = []MetricKind{KindDuration, KindCount, KindAmount, KindRank, KindPercent, KindOther}

// Valid reports whether k is one of MetricKinds.
func (k MetricKind) Valid() bool {
	for _, known := range MetricKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Metric is a single labelled figure read from a screenshot.
type Metric struct {
	Label string     `json:"label" yaml:"label"`
	Value string     `json:"value" yaml:"value"`
	Kind  MetricKind `json:"type" yaml:"type"`
}

// AppData groups the metrics extracted for one app.
type AppData struct {
	App     string   `json:"app" yaml:"app"`
	Metrics []Metric `json:"metrics" yaml:"metrics"`
}

// Extraction is the stage 2 result.
type Extraction struct {
	ExtractedData []AppData `json:"extractedData" yaml:"extracted_data"`
}

// MaxHighlights caps the number of highlights in a report.
const MaxHighlights = 8

// HighlightIcons lists the icon tags a highlight may carry.
var HighlightIcons = []string{
	"music", "book", "film", "coffee", "trending", "calendar", "heart", "star",
	"zap", "award", "clock", "map", "shopping-cart", "headphones", "gamepad", "camera",
}

// Highlight is one displayed data point in the report.
type Highlight struct {
	Icon    string `json:"icon" yaml:"icon"`
	Label   string `json:"label" yaml:"label"`
	Value   string `json:"value" yaml:"value"`
	Subtext string `json:"subtext,omitempty" yaml:"subtext,omitempty"`
}

// Insights is the stage 3 result.
type Insights struct {
	Highlights []Highlight `json:"highlights" yaml:"highlights"`
}

// Dimension names one axis of the four-letter personality code.
type Dimension string

const (
	DimensionEI Dimension = "EI"
	DimensionNS Dimension = "NS"
	DimensionTF Dimension = "TF"
	DimensionJP Dimension = "JP"
)

// Dimensions lists the four personality axes in code order.
var Dimensions = []Dimension{DimensionEI, DimensionNS, DimensionTF, DimensionJP}

// DimensionConfidence explains the letter chosen for one dimension.
type DimensionConfidence struct {
	Letter     string  `json:"letter" yaml:"letter"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	Reason     string  `json:"reason" yaml:"reason"`
}

// Personality is the stage 4 result.
type Personality struct {
	Type        string                            `json:"type" yaml:"type"`
	Title       string                            `json:"title" yaml:"title"`
	Traits      []string                          `json:"traits" yaml:"traits"`
	Explanation string                            `json:"explanation" yaml:"explanation"`
	Confidence  map[Dimension]DimensionConfidence `json:"confidence" yaml:"confidence"`
}

// Narrative is the stage 5 result.
type Narrative struct {
	Summary string `json:"summary" yaml:"summary"`
}

// PersonalitySummary is the part of Personality shown in the final report.
type PersonalitySummary struct {
	Type        string   `json:"type" yaml:"type"`
	Title       string   `json:"title" yaml:"title"`
	Traits      []string `json:"traits" yaml:"traits"`
	Explanation string   `json:"explanation" yaml:"explanation"`
}

// AggregatedReport merges the five stage results of one run.
type AggregatedReport struct {
	// TotalApps is the number of sources identified in stage 1.
	TotalApps int `json:"totalApps" yaml:"total_apps"`

	// Apps lists the identified app names in stage 1 order.
	Apps []string `json:"apps" yaml:"apps"`

	Highlights []Highlight `json:"highlights" yaml:"highlights"`
	Summary    string      `json:"summary" yaml:"summary"`

	Personality PersonalitySummary `json:"personality" yaml:"personality"`

	// ExtractedData is retained so the user can correct it and resume.
	ExtractedData []AppData `json:"extractedData" yaml:"extracted_data"`

	Confidence map[Dimension]DimensionConfidence `json:"confidence" yaml:"confidence"`
}

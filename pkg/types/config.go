// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings for outbound requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout. Zero means no client timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with requests
	// (e.g. "recap-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// GatewayConfig holds settings for the inference gateway.
type GatewayConfig struct {
	HTTPConfig `yaml:",inline"`

	// URL is the chat completions endpoint.
	URL string `json:"url" yaml:"url"`

	// Model is the multimodal model identifier (e.g. "google/gemini-2.5-flash").
	Model string `json:"model" yaml:"model"`

	// APIKey is the bearer credential. Required.
	APIKey string `json:"api_key,omitempty" yaml:"api_key,omitempty"`

	// RequestsPerSecond paces outbound calls across all runs. Zero disables pacing.
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`

	// AllowTextFallback accepts a JSON object in free-text content when the
	// response carries no tool call. Off by default.
	AllowTextFallback bool `json:"allow_text_fallback" yaml:"allow_text_fallback"`
}

// PipelineConfig holds settings for the stage orchestrator.
type PipelineConfig struct {
	// ReportYear is the year the narrative must refer to (default: current year).
	ReportYear int `json:"report_year" yaml:"report_year"`

	// StageTimeout bounds each stage's inference call. Zero means no bound.
	StageTimeout time.Duration `json:"stage_timeout" yaml:"stage_timeout"`
}

// IngestConfig holds settings for screenshot compression.
type IngestConfig struct {
	// Compress enables downscaling and JPEG re-encoding before upload.
	Compress bool `json:"compress" yaml:"compress"`

	// MaxWidth and MaxHeight bound the output dimensions (default 1920).
	MaxWidth  int `json:"max_width" yaml:"max_width"`
	MaxHeight int `json:"max_height" yaml:"max_height"`

	// Quality is the JPEG quality in 1..100 (default 80).
	Quality int `json:"quality" yaml:"quality"`
}

// StoreConfig holds settings for the run archive.
type StoreConfig struct {
	// DataDir is the directory containing recap.db and exports.
	DataDir string `json:"data_dir" yaml:"data_dir"`
}

// ServerConfig holds settings for the HTTP analysis endpoint.
type ServerConfig struct {
	// Addr is the listen address (default ":8080").
	Addr string `json:"addr" yaml:"addr"`

	// MaxBodyBytes caps the request body size (default 32 MiB).
	MaxBodyBytes int64 `json:"max_body_bytes" yaml:"max_body_bytes"`

	// AllowOrigin is the CORS Access-Control-Allow-Origin value (default "*").
	AllowOrigin string `json:"allow_origin" yaml:"allow_origin"`
}

// Config groups every component configuration.
type Config struct {
	Server   ServerConfig   `json:"server" yaml:"server"`
	Gateway  GatewayConfig  `json:"gateway" yaml:"gateway"`
	Pipeline PipelineConfig `json:"pipeline" yaml:"pipeline"`
	Ingest   IngestConfig   `json:"ingest" yaml:"ingest"`
	Store    StoreConfig    `json:"store" yaml:"store"`
}

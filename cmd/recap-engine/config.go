// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"time"

	"github.com/spf13/viper"

	"github.com/pdiddy/recap-engine/internal/gateway"
	"github.com/pdiddy/recap-engine/internal/secrets"
	"github.com/pdiddy/recap-engine/internal/server"
	"github.com/pdiddy/recap-engine/pkg/types"
)

const (
	defaultTimeout   = 90 * time.Second
	defaultUserAgent = "recap-engine/0.1"
	defaultServerURL = "http://localhost:8080"
)

// setDefaults registers every config key with its default value.
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", server.DefaultAddr)
	v.SetDefault("server.max_body_bytes", server.DefaultMaxBodyBytes)
	v.SetDefault("server.allow_origin", "*")

	v.SetDefault("gateway.url", gateway.DefaultURL)
	v.SetDefault("gateway.model", gateway.DefaultModel)
	v.SetDefault("gateway.api_key", "")
	v.SetDefault("gateway.timeout", defaultTimeout)
	v.SetDefault("gateway.user_agent", defaultUserAgent)
	v.SetDefault("gateway.requests_per_second", 1.0)
	v.SetDefault("gateway.allow_text_fallback", false)

	v.SetDefault("pipeline.report_year", 0)
	v.SetDefault("pipeline.stage_timeout", time.Duration(0))

	v.SetDefault("ingest.compress", true)
	v.SetDefault("ingest.max_width", 1920)
	v.SetDefault("ingest.max_height", 1920)
	v.SetDefault("ingest.quality", 80)

	v.SetDefault("store.data_dir", "data")
	v.SetDefault("server_url", defaultServerURL)
}

// loadConfig assembles the runtime configuration from v. The gateway key
// falls back to the gateway-api-key secret file.
func loadConfig(v *viper.Viper) (types.Config, error) {
	cfg := types.Config{
		Server: types.ServerConfig{
			Addr:         v.GetString("server.addr"),
			MaxBodyBytes: v.GetInt64("server.max_body_bytes"),
			AllowOrigin:  v.GetString("server.allow_origin"),
		},
		Gateway: types.GatewayConfig{
			HTTPConfig: types.HTTPConfig{
				Timeout:   v.GetDuration("gateway.timeout"),
				UserAgent: v.GetString("gateway.user_agent"),
			},
			URL:               v.GetString("gateway.url"),
			Model:             v.GetString("gateway.model"),
			RequestsPerSecond: v.GetFloat64("gateway.requests_per_second"),
			AllowTextFallback: v.GetBool("gateway.allow_text_fallback"),
		},
		Pipeline: types.PipelineConfig{
			ReportYear:   v.GetInt("pipeline.report_year"),
			StageTimeout: v.GetDuration("pipeline.stage_timeout"),
		},
		Ingest: types.IngestConfig{
			Compress:  v.GetBool("ingest.compress"),
			MaxWidth:  v.GetInt("ingest.max_width"),
			MaxHeight: v.GetInt("ingest.max_height"),
			Quality:   v.GetInt("ingest.quality"),
		},
		Store: types.StoreConfig{
			DataDir: v.GetString("store.data_dir"),
		},
	}

	key, err := secrets.Resolve(v.GetString("gateway.api_key"), v.GetString("secrets_dir"), secrets.GatewayAPIKey)
	if err != nil {
		return cfg, err
	}
	cfg.Gateway.APIKey = key
	return cfg, nil
}

// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/recap-engine/internal/server"
	"github.com/pdiddy/recap-engine/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the streaming analysis API",
	Long: `Serve listens for analysis requests and streams each run's stage events
back as server-sent events. Runs are archived in a SQLite database under the
data directory so they can be inspected and corrected later.

The inference gateway key comes from --api-key, RECAP_ENGINE_GATEWAY_API_KEY,
or the .secrets/gateway-api-key file.`,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.String("addr", server.DefaultAddr, "listen address")
	f.String("data-dir", "data", "directory for the run archive")
	f.String("gateway-url", "", "chat completions endpoint of the inference gateway")
	f.String("model", "", "model identifier sent to the gateway")
	f.String("api-key", "", "inference gateway API key")
	f.Float64("rps", 1, "maximum gateway requests per second across all runs (0 disables pacing)")
	f.Int("year", 0, "year the recap covers (default: current year)")
	f.Duration("stage-timeout", 0, "per-stage inference timeout (0 means none)")
	f.Bool("no-archive", false, "do not archive runs")

	bind := map[string]string{
		"server.addr":                 "addr",
		"store.data_dir":              "data-dir",
		"gateway.url":                 "gateway-url",
		"gateway.model":               "model",
		"gateway.api_key":             "api-key",
		"gateway.requests_per_second": "rps",
		"pipeline.report_year":        "year",
		"pipeline.stage_timeout":      "stage-timeout",
	}
	for key, flag := range bind {
		viper.BindPFlag(key, f.Lookup(flag))
	}

	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(viper.GetViper())
	if err != nil {
		return err
	}
	if cfg.Gateway.APIKey == "" {
		logger.Warn("no inference gateway key configured; analysis requests will fail")
	}

	deps := server.Deps{Logger: logger}
	if noArchive, _ := cmd.Flags().GetBool("no-archive"); !noArchive {
		st, err := store.Open(cfg.Store)
		if err != nil {
			return fmt.Errorf("opening run archive: %w", err)
		}
		defer st.Close()
		deps.Store = st
		logger.Info("archiving runs", "dir", st.DataDir())
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return server.New(cfg, deps).ListenAndServe(ctx)
}

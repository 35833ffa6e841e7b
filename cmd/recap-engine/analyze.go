// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/recap-engine/internal/client"
	"github.com/pdiddy/recap-engine/internal/ingest"
	"github.com/pdiddy/recap-engine/pkg/types"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [screenshots...]",
	Short: "Analyze screenshots with a running server",
	Long: `Analyze reads screenshot files, compresses them, and submits them to a
recap-engine server. Stage progress is printed to stderr as it streams in;
the final report is written to stdout as YAML or JSON.

Non-image files are skipped. The style and extraction mode default to
playful and normal.`,
	RunE: runAnalyze,
}

func init() {
	f := analyzeCmd.Flags()
	f.String("server", "", "server base URL (default http://localhost:8080)")
	f.String("style", string(types.StylePlayful), "summary style: playful, minimal, retro, tech, artistic")
	f.String("mode", string(types.ModeNormal), "extraction mode: normal, strict, loose")
	f.Bool("no-compress", false, "send screenshots without resizing")
	f.String("out", "yaml", "report format: yaml or json")

	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("provide one or more screenshot files")
	}
	style, _ := cmd.Flags().GetString("style")
	mode, _ := cmd.Flags().GetString("mode")
	out, _ := cmd.Flags().GetString("out")
	if err := checkFormat(out); err != nil {
		return err
	}

	files, err := ingest.ReadFiles(args)
	if err != nil {
		return err
	}
	icfg := types.IngestConfig{
		Compress:  viper.GetBool("ingest.compress"),
		MaxWidth:  viper.GetInt("ingest.max_width"),
		MaxHeight: viper.GetInt("ingest.max_height"),
		Quality:   viper.GetInt("ingest.quality"),
	}
	if noCompress, _ := cmd.Flags().GetBool("no-compress"); noCompress {
		icfg.Compress = false
	}
	images, err := ingest.Encode(files, icfg, logger)
	if err != nil {
		return err
	}
	if skipped := len(files) - len(images); skipped > 0 {
		logger.Warn("skipped non-image files", "count", skipped)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := client.New(serverURL(cmd), client.WithLogger(logger))
	res, err := c.Analyze(ctx, types.AnalysisRequest{
		Images: images,
		Style:  types.Style(style),
		Mode:   types.ExtractionMode(mode),
	}, progress(os.Stderr))
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "Run %s\n", res.RunID)
	return printReport(os.Stdout, res.Report, out)
}

// serverURL returns --server, falling back to the configured server_url.
func serverURL(cmd *cobra.Command) string {
	if u, _ := cmd.Flags().GetString("server"); u != "" {
		return u
	}
	return viper.GetString("server_url")
}

// progress prints one line per stage transition.
func progress(w io.Writer) client.Callbacks {
	return client.Callbacks{
		OnStage: func(ev types.StageEvent) {
			switch ev.Status {
			case types.StatusProcessing:
				fmt.Fprintf(w, "  [%d/5] %s...\n", ev.Stage, ev.Name)
			case types.StatusCompleted:
				fmt.Fprintf(w, "  [%d/5] %s done\n", ev.Stage, ev.Name)
			}
		},
		OnError: func(msg string) {
			fmt.Fprintf(w, "  failed: %s\n", msg)
		},
	}
}

func checkFormat(format string) error {
	if format != "yaml" && format != "json" {
		return fmt.Errorf("unknown output format %q (want yaml or json)", format)
	}
	return nil
}

func printReport(w io.Writer, v any, format string) error {
	if format == "json" {
		return writeJSON(w, v)
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encoding YAML: %w", err)
	}
	return enc.Close()
}

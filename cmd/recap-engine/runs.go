// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/recap-engine/internal/client"
	"github.com/pdiddy/recap-engine/internal/store"
	"github.com/pdiddy/recap-engine/pkg/types"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect and correct archived runs",
	Long: `Runs reads the SQLite run archive directly from the data directory.
"correct" sends edited extraction data to a server, which re-runs the
insight, personality, and summary stages as a new run.`,
}

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs, newest first",
	Args:  cobra.NoArgs,
	RunE:  runRunsList,
}

var runsShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Print a run and its event history",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsShow,
}

var runsExportCmd = &cobra.Command{
	Use:   "export <run-id>",
	Short: "Write a run to <id>.yaml and <id>.json",
	Args:  cobra.ExactArgs(1),
	RunE:  runRunsExport,
}

var runsCorrectCmd = &cobra.Command{
	Use:   "correct <run-id> <extracted-data.yaml>",
	Short: "Re-run stages 3-5 with corrected extraction data",
	Long: `Correct reads a YAML or JSON list of apps with their metrics (the
extracted_data section of "runs show") and asks the server to regenerate the
highlights, personality, and summary from it. Identified sources are kept.`,
	Args: cobra.ExactArgs(2),
	RunE: runRunsCorrect,
}

func init() {
	runsCmd.PersistentFlags().String("data-dir", "", "directory holding the run archive (default data)")

	runsListCmd.Flags().Int("limit", 20, "maximum number of runs")
	runsShowCmd.Flags().String("out", "yaml", "format: yaml or json")
	runsShowCmd.Flags().Bool("events", false, "include the streamed events")
	runsExportCmd.Flags().String("dir", ".", "output directory")
	runsCorrectCmd.Flags().String("server", "", "server base URL (default http://localhost:8080)")
	runsCorrectCmd.Flags().String("out", "yaml", "report format: yaml or json")

	runsCmd.AddCommand(runsListCmd, runsShowCmd, runsExportCmd, runsCorrectCmd)
	rootCmd.AddCommand(runsCmd)
}

// openStore opens the archive named by --data-dir, falling back to the
// configured store.data_dir.
func openStore(cmd *cobra.Command) (*store.Store, error) {
	dir, _ := cmd.Flags().GetString("data-dir")
	if dir == "" {
		dir = viper.GetString("store.data_dir")
	}
	return store.Open(types.StoreConfig{DataDir: dir})
}

func runRunsList(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	runs, err := st.ListRuns(cmd.Context(), limit)
	if err != nil {
		return err
	}
	return printRuns(os.Stdout, runs)
}

func printRuns(w io.Writer, runs []types.Run) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tCREATED\tSTATUS\tSTYLE\tIMAGES\tPARENT")
	for _, r := range runs {
		parent := r.ParentID
		if parent == "" {
			parent = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%s\n",
			r.ID, r.CreatedAt.Local().Format("2006-01-02 15:04"), r.Status, r.Style, r.ImageCount, parent)
	}
	return tw.Flush()
}

func runRunsShow(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")
	if err := checkFormat(out); err != nil {
		return err
	}
	withEvents, _ := cmd.Flags().GetBool("events")

	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	run, err := st.GetRun(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if !withEvents {
		return printReport(os.Stdout, run, out)
	}

	events, err := st.Events(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	type eventView struct {
		Seq   int    `json:"seq" yaml:"seq"`
		Event string `json:"event" yaml:"event"`
		Data  any    `json:"data" yaml:"data"`
	}
	views := make([]eventView, 0, len(events))
	for _, ev := range events {
		var data any
		if err := json.Unmarshal(ev.Data, &data); err != nil {
			data = string(ev.Data)
		}
		views = append(views, eventView{Seq: ev.Seq, Event: ev.Event, Data: data})
	}
	return printReport(os.Stdout, struct {
		Run    types.Run   `json:"run" yaml:"run"`
		Events []eventView `json:"events" yaml:"events"`
	}{run, views}, out)
}

func runRunsExport(cmd *cobra.Command, args []string) error {
	dir, _ := cmd.Flags().GetString("dir")
	st, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer st.Close()

	yamlPath, err := st.ExportYAML(cmd.Context(), args[0], dir)
	if err != nil {
		return err
	}
	jsonPath, err := st.ExportJSON(cmd.Context(), args[0], dir)
	if err != nil {
		return err
	}
	fmt.Printf("Exported %s and %s\n", yamlPath, jsonPath)
	return nil
}

func runRunsCorrect(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("out")
	if err := checkFormat(out); err != nil {
		return err
	}
	corrected, err := readCorrection(args[1])
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c := client.New(serverURL(cmd), client.WithLogger(logger))
	res, err := c.Resume(ctx, args[0], corrected, progress(os.Stderr))
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Run %s (corrected from %s)\n", res.RunID, args[0])
	return printReport(os.Stdout, res.Report, out)
}

// readCorrection loads a list of apps from a YAML or JSON file. JSON is a
// subset of YAML, so one decoder handles both.
func readCorrection(path string) ([]types.AppData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var apps []types.AppData
	if err := yaml.Unmarshal(data, &apps); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if apps == nil {
		return nil, fmt.Errorf("%s holds no apps", path)
	}
	return apps, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

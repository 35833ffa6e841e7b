// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the recap-engine CLI. It serves the
// analysis API, submits screenshots to a running server, and inspects the
// run archive.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/recap-engine/internal/logging"
)

// version is set at build time via ldflags.
var version = "dev"

// logger is configured from --log-level before any subcommand runs.
var logger = logging.Default()

var rootCmd = &cobra.Command{
	Use:   "recap-engine",
	Short: "Turn year-in-review screenshots into a personal recap",
	Long: `recap-engine reads screenshots of app year-in-review pages and runs them
through a five-stage inference pipeline: identify the apps, extract their
metrics, pick highlights, infer a personality type, and write a summary.

"serve" exposes the pipeline as a streaming HTTP API. "analyze" submits
screenshots to a server and prints each stage as it finishes. "runs" reads
the archive of past runs.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := logging.New(os.Stderr, viper.GetString("log_level"))
		if err != nil {
			return err
		}
		logger = l
		log.SetDefault(l)
		if f := viper.ConfigFileUsed(); f != "" {
			logger.Debug("using config file", "path", f)
		}
		return nil
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./recap-engine.yaml or ~/.config/recap-engine/recap-engine.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("secrets-dir", ".secrets", "directory holding secret files")
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("secrets_dir", rootCmd.PersistentFlags().Lookup("secrets-dir"))
}

func initConfig() {
	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("recap-engine")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "recap-engine"))
		}
	}

	viper.SetEnvPrefix("RECAP_ENGINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults(viper.GetViper())

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			fmt.Fprintln(os.Stderr, "Reading config file:", err)
		}
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

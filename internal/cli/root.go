// Package cli provides the command-line interface for leaguenews.
package cli

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/ppiankov/leaguenews/internal/config"
)

// Version and Commit are set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
)

var (
	configDir string
	logLevel  string

	// logOutput receives all log lines; results go to stdout.
	logOutput io.Writer = os.Stderr
)

var rootCmd = &cobra.Command{
	Use:           "leaguenews",
	Short:         "Incrementally harvest League of Legends news",
	Long:          "leaguenews pulls developer tweets, developer Reddit comments, official articles, and official YouTube uploads, merges them into per-source snapshots, and writes a compact projection of each for publishing.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("leaguenews %s (%s)\n", Version, Commit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", ".", "directory holding config.yaml and credentials.yaml")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")

	rootCmd.AddCommand(versionCmd, initCmd, scrapeCmd, runCmd, compressCmd, statsCmd, doctorCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the stderr logger. The --log-level flag wins over the
// configured level.
func newLogger(cfg *config.Config) (*log.Logger, error) {
	level := logLevel
	if level == "" && cfg != nil {
		level = cfg.Log.Level
	}
	if level == "" {
		level = config.DefaultLogLevel
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("parse log level: %w", err)
	}
	return log.NewWithOptions(logOutput, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           lvl,
	}), nil
}

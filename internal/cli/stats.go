package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/leaguenews/internal/config"
	"github.com/ppiankov/leaguenews/internal/report"
	"github.com/ppiankov/leaguenews/internal/store"
)

var (
	statsSince  string
	statsFormat string
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show per-source run history from the ledger",
	RunE:  statsAction,
}

func init() {
	statsCmd.Flags().StringVar(&statsSince, "since", "30d", "time window (e.g. 7d, 48h)")
	statsCmd.Flags().StringVar(&statsFormat, "format", "terminal", "output format: terminal, json, markdown")
	statsCmd.Flags().BoolVar(&noColor, "no-color", false, "disable ANSI colors")
}

func statsAction(cmd *cobra.Command, _ []string) error {
	formatter, err := report.New(statsFormat, !noColor)
	if err != nil {
		return err
	}

	sinceDur, err := config.ParseDuration(statsSince)
	if err != nil {
		return fmt.Errorf("parse --since: %w", err)
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = db.Close() }()

	now := time.Now()
	stats, err := db.GetSourceStats(cmd.Context(), now.Add(-sinceDur))
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}

	return formatter.FormatStats(os.Stdout, report.StatsInput{
		Sources: stats,
		Since:   sinceDur,
		Now:     now,
	})
}

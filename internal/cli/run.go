package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/ppiankov/leaguenews/internal/config"
)

var (
	runEvery string

	runScrapeAction = scrapeAction
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Scrape once, or repeatedly with --every",
	RunE:  runAction,
}

func init() {
	addScrapeFlags(runCmd)
	runCmd.Flags().StringVar(&runEvery, "every", "", "repeat on this interval until interrupted (e.g. 30m)")
}

func runAction(cmd *cobra.Command, args []string) error {
	every, err := parseRunEvery(runEvery)
	if err != nil {
		return err
	}
	if every == 0 {
		return runScrapeAction(cmd, args)
	}

	// Config errors surface from each scrape; the loop only needs a level.
	cfg, _ := config.Load(configDir)
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	cmd.SetContext(ctx)

	return runWatch(ctx, every, logger, func() error {
		return runScrapeAction(cmd, args)
	})
}

func parseRunEvery(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("parse --every: %w", err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("--every must be positive, got %s", d)
	}
	return d, nil
}

// runWatch calls runOnce immediately and then every interval until ctx is
// done. A failed run is logged and the next one still happens.
func runWatch(ctx context.Context, interval time.Duration, logger *log.Logger, runOnce func() error) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if err := runOnce(); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			logger.Error("run failed", "err", err, "next", interval)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

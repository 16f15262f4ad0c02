package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/leaguenews/internal/config"
	"github.com/ppiankov/leaguenews/internal/harvest"
	"github.com/ppiankov/leaguenews/internal/snapshot"
)

var compressCmd = &cobra.Command{
	Use:   "compress",
	Short: "Rewrite compressed projections from saved snapshots, offline",
	RunE:  compressAction,
}

func init() {
	compressCmd.Flags().StringSliceVar(&scrapeSources, "source", nil, "only compress these sources")
}

func compressAction(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	jobs, err := buildJobs(cfg, logger)
	if err != nil {
		return err
	}
	jobs, err = selectJobs(jobs, scrapeSources)
	if err != nil {
		return err
	}

	snaps, err := snapshot.NewStore(cfg.Output.Dir)
	if err != nil {
		return err
	}
	h, err := harvest.New(snaps, jobs, harvest.Options{}, logger)
	if err != nil {
		return err
	}

	written, err := h.Recompress()
	for _, name := range h.Jobs() {
		if n, ok := written[name]; ok {
			fmt.Printf("  %s: %d entries\n", name, n)
		}
	}
	if err != nil {
		return fmt.Errorf("compress: %w", err)
	}
	fmt.Printf("Compressed %d of %d sources into %s\n", len(written), len(jobs), snaps.Dir())
	return nil
}

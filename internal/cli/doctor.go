package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/leaguenews/internal/config"
	"github.com/ppiankov/leaguenews/internal/report"
	"github.com/ppiankov/leaguenews/internal/snapshot"
	"github.com/ppiankov/leaguenews/internal/store"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check config, credentials, output, and source health",
	RunE:  doctorAction,
}

func doctorAction(cmd *cobra.Command, _ []string) error {
	ok := true

	// Config dir
	if info, err := os.Stat(configDir); err != nil || !info.IsDir() {
		printCheck(false, "config directory %s", configDir)
		ok = false
	} else {
		printCheck(true, "config directory %s", configDir)
	}

	// Config file
	cfg, err := config.Load(configDir)
	if err != nil {
		printCheck(false, "config.yaml: %v", err)
		return fmt.Errorf("some checks failed")
	}
	logger, err := newLogger(cfg)
	if err != nil {
		printCheck(false, "log level: %v", err)
		return fmt.Errorf("some checks failed")
	}
	jobs, err := buildJobs(cfg, logger)
	if err != nil {
		printCheck(false, "sources: %v", err)
		return fmt.Errorf("some checks failed")
	}
	var names []string
	for _, j := range jobs {
		names = append(names, j.Name())
	}
	printCheck(true, "config.yaml (%d sources enabled)", len(names))

	// Credentials
	if !checkCredentials(cfg) {
		ok = false
	}

	// Output dir
	if err := checkWritable(cfg.Output.Dir); err != nil {
		printCheck(false, "output directory %s: %v", cfg.Output.Dir, err)
		ok = false
	} else {
		printCheck(true, "output directory %s", cfg.Output.Dir)
	}

	// Ledger
	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		printCheck(false, "run ledger: %v", err)
		ok = false
	} else {
		defer func() { _ = db.Close() }()
		printCheck(true, "run ledger %s", cfg.Storage.Path)
	}

	// Snapshot freshness and source health (info-level, non-fatal)
	fmt.Println()
	if snaps, err := snapshot.NewStore(cfg.Output.Dir); err == nil {
		checkSnapshots(snaps, names, time.Now())
	}
	if db != nil {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		checkSourceHealth(ctx, db, time.Now())
	}

	if !ok {
		return fmt.Errorf("some checks failed")
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

// checkCredentials reports placeholder credentials for enabled sources. It
// never writes the template; init does that.
func checkCredentials(cfg *config.Config) bool {
	path := filepath.Join(configDir, config.DefaultCredentialsFile)
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		printCheck(false, "credentials.yaml missing (run 'leaguenews init')")
		return false
	}
	creds, err := config.LoadCredentials(configDir)
	if err != nil {
		printCheck(false, "credentials.yaml: %v", err)
		return false
	}

	ok := true
	s := cfg.Sources
	if config.IsEnabled(s.Twitter.Enabled) {
		if config.Placeholder(creds.Twitter.BearerToken) {
			printCheck(false, "twitter.bearer_token is not set")
			ok = false
		} else {
			printCheck(true, "twitter credentials")
		}
	}
	if config.IsEnabled(s.Reddit.Enabled) {
		if config.Placeholder(creds.Reddit.ClientID) || config.Placeholder(creds.Reddit.ClientSecret) {
			printCheck(false, "reddit.client_id and reddit.client_secret are not set")
			ok = false
		} else {
			printCheck(true, "reddit credentials")
		}
	}
	if config.IsEnabled(s.YouTube.Enabled) && config.Placeholder(creds.YouTube.APIKey) {
		printInfo("youtube.api_key not set, falling back to the public Atom feed (latest 15 uploads)")
	}
	return ok
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return err
	}
	name := f.Name()
	_ = f.Close()
	return os.Remove(name)
}

func checkSnapshots(snaps *snapshot.Store, names []string, now time.Time) {
	for _, name := range names {
		info, err := os.Stat(snaps.ContentPath(name))
		if err != nil {
			printInfo("no snapshot yet: %s", name)
			continue
		}
		if age := now.Sub(info.ModTime()); age > report.StaleAfter {
			printInfo("stale snapshot: %s, last written %d days ago", name, int(age.Hours()/24))
		}
	}
}

func checkSourceHealth(ctx context.Context, db *store.Store, now time.Time) {
	stats, err := db.GetSourceStats(ctx, now.AddDate(0, 0, -30))
	if err != nil || len(stats) == 0 {
		return
	}
	for _, ss := range stats {
		if ss.LastError != "" {
			printInfo("failing: %s, %d of %d runs failed, last error: %s", ss.Source, ss.Failures, ss.Runs, ss.LastError)
		}
	}
}

func printCheck(pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Printf("[%s] %s\n", mark, fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	fmt.Printf("[INFO] %s\n", fmt.Sprintf(format, args...))
}

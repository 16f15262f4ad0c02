package cli

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/ppiankov/leaguenews/internal/config"
	"github.com/ppiankov/leaguenews/internal/harvest"
	"github.com/ppiankov/leaguenews/internal/report"
	"github.com/ppiankov/leaguenews/internal/snapshot"
	"github.com/ppiankov/leaguenews/internal/source"
	"github.com/ppiankov/leaguenews/internal/store"
)

var (
	scrapeSources []string
	scrapeFormat  string
	noColor       bool
)

var scrapeCmd = &cobra.Command{
	Use:   "scrape",
	Short: "Harvest every enabled source once",
	RunE:  scrapeAction,
}

func init() {
	addScrapeFlags(scrapeCmd)
}

func addScrapeFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&scrapeSources, "source", nil, "only harvest these sources (twitter, reddit, articles, youtube)")
	cmd.Flags().StringVar(&scrapeFormat, "format", "terminal", "report format: terminal, json, markdown")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable ANSI colors")
}

// sourceAliases maps the short names accepted by --source to source names.
var sourceAliases = map[string]string{
	"twitter":  "league_dev_twitter",
	"reddit":   "league_dev_reddit",
	"articles": "official_articles",
	"youtube":  "official_youtube",
}

// buildJobs constructs the enabled sources. Tests replace it.
var buildJobs = enabledJobs

func enabledJobs(cfg *config.Config, logger *log.Logger) ([]harvest.Job, error) {
	var jobs []harvest.Job
	s := cfg.Sources

	if config.IsEnabled(s.Twitter.Enabled) {
		tw, err := source.NewTwitter(s.Twitter.AccountID, s.Twitter.Handle)
		if err != nil {
			return nil, fmt.Errorf("create twitter source: %w", err)
		}
		jobs = append(jobs, harvest.Bind[source.TwitterContent, source.TwitterEntry](tw))
	}

	if config.IsEnabled(s.Reddit.Enabled) {
		rd, err := source.NewReddit(s.Reddit, logger)
		if err != nil {
			return nil, fmt.Errorf("create reddit source: %w", err)
		}
		jobs = append(jobs, harvest.Bind[source.RedditContent, source.RedditEntry](rd))
	}

	if config.IsEnabled(s.Articles.Enabled) {
		ar, err := source.NewArticles(s.Articles.Site, s.Articles.Locale)
		if err != nil {
			return nil, fmt.Errorf("create articles source: %w", err)
		}
		jobs = append(jobs, harvest.Bind[source.ArticlesContent, source.ArticleEntry](ar))
	}

	if config.IsEnabled(s.YouTube.Enabled) {
		yt, err := source.NewYouTube(s.YouTube.PlaylistID)
		if err != nil {
			return nil, fmt.Errorf("create youtube source: %w", err)
		}
		jobs = append(jobs, harvest.Bind[source.YouTubeContent, source.YouTubeEntry](yt))
	}

	return jobs, nil
}

// selectJobs keeps the jobs named in names, by source name or short alias.
// An empty names keeps every job.
func selectJobs(jobs []harvest.Job, names []string) ([]harvest.Job, error) {
	if len(names) == 0 {
		return jobs, nil
	}

	want := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if full, ok := sourceAliases[n]; ok {
			n = full
		}
		want = append(want, n)
	}

	var selected []harvest.Job
	for _, j := range jobs {
		if slices.Contains(want, j.Name()) {
			selected = append(selected, j)
		}
	}
	for _, n := range want {
		if !slices.ContainsFunc(selected, func(j harvest.Job) bool { return j.Name() == n }) {
			return nil, fmt.Errorf("unknown or disabled source %q", n)
		}
	}
	return selected, nil
}

func scrapeAction(cmd *cobra.Command, _ []string) error {
	formatter, err := report.New(scrapeFormat, !noColor)
	if err != nil {
		return err
	}

	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	creds, err := config.LoadCredentials(configDir)
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

	redact, err := cfg.RedactPatterns()
	if err != nil {
		return fmt.Errorf("compile redact patterns: %w", err)
	}

	snaps, err := snapshot.NewStore(cfg.Output.Dir)
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = db.Close() }()

	h, err := harvest.New(snaps, jobs, harvest.Options{
		MaxEntries:  cfg.Scrape.MaxEntries,
		MaxAge:      cfg.Scrape.MaxAge.Duration,
		Credentials: *creds,
		Redact:      redact,
	}, logger)
	if err != nil {
		return err
	}
	h.SetRecorder(db)

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rep, err := h.Run(ctx)
	if err != nil {
		return err
	}

	pruned, err := db.PruneOld(ctx, cfg.Storage.RetainDays)
	if err != nil {
		logger.Warn("could not prune run history", "err", err)
	} else if pruned > 0 {
		logger.Debug("pruned run history", "runs", pruned)
	}

	if err := formatter.FormatRun(os.Stdout, rep); err != nil {
		return err
	}

	if n := rep.Failures(); n > 0 && n == len(rep.Sources) {
		return fmt.Errorf("all %d sources failed", n)
	}
	return nil
}

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigFile      = "config.yaml"
	DefaultCredentialsFile = "credentials.yaml"
	DefaultOutputDir       = "dist/content"
	DefaultStoragePath     = ".leaguenews/runs.db"
	DefaultRetainDays      = 90
	DefaultMaxEntries      = 100
	DefaultMaxAge          = 60 * 24 * time.Hour
	DefaultLogLevel        = "info"

	DefaultTwitterAccountID = "1405644969675681794"
	DefaultTwitterHandle    = "LoLDev"
	DefaultRedditCommunity  = "leagueoflegends"
	DefaultStaffFlair       = ":riot:"
	DefaultDiscoveryWindow  = 7 * 24 * time.Hour
	DefaultDiscoveryPages   = 10
	DefaultArticlesSite     = "https://www.leagueoflegends.com"
	DefaultArticlesLocale   = "en-us"
	DefaultYouTubePlaylist  = "UU2t5bjwHdUX4vM2g8TRDq5g"
)

// DefaultCommunities matches the League subreddits developer comments are kept from.
var DefaultCommunities = []string{`(?i)league|summoner|aram|teamfight|tft|wildrift|lolesports`}

// Duration wraps time.Duration for YAML unmarshaling from strings like "24h" or "60d".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// ParseDuration handles both Go durations and "Nd" day notation.
func ParseDuration(s string) (time.Duration, error) {
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err == nil && days > 0 {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}
	return time.ParseDuration(s)
}

type Config struct {
	Output  OutputConfig  `yaml:"output"`
	Storage StorageConfig `yaml:"storage"`
	Scrape  ScrapeConfig  `yaml:"scrape"`
	Log     LogConfig     `yaml:"log"`
	Sources SourcesConfig `yaml:"sources"`
	Privacy PrivacyConfig `yaml:"privacy"`
}

type OutputConfig struct {
	Dir string `yaml:"dir"`
}

type StorageConfig struct {
	Path       string `yaml:"path"`
	RetainDays int    `yaml:"retain_days"`
}

type ScrapeConfig struct {
	MaxEntries int      `yaml:"max_entries"`
	MaxAge     Duration `yaml:"max_age"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// PrivacyConfig adds patterns scrubbed from error text on top of the
// credential values, which are always redacted.
type PrivacyConfig struct {
	Redact RedactConfig `yaml:"redact"`
}

type RedactConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Patterns []string `yaml:"patterns"`
}

type SourcesConfig struct {
	Twitter  TwitterConfig  `yaml:"twitter"`
	Reddit   RedditConfig   `yaml:"reddit"`
	Articles ArticlesConfig `yaml:"articles"`
	YouTube  YouTubeConfig  `yaml:"youtube"`
}

type TwitterConfig struct {
	Enabled   *bool  `yaml:"enabled"`
	AccountID string `yaml:"account_id"`
	Handle    string `yaml:"handle"`
}

type RedditConfig struct {
	Enabled         *bool    `yaml:"enabled"`
	Community       string   `yaml:"community"`
	StaffFlair      string   `yaml:"staff_flair"`
	Communities     []string `yaml:"communities"`
	DiscoveryWindow Duration `yaml:"discovery_window"`
	DiscoveryPages  int      `yaml:"discovery_pages"`
}

type ArticlesConfig struct {
	Enabled *bool  `yaml:"enabled"`
	Site    string `yaml:"site"`
	Locale  string `yaml:"locale"`
}

type YouTubeConfig struct {
	Enabled    *bool  `yaml:"enabled"`
	PlaylistID string `yaml:"playlist_id"`
}

// IsEnabled reports whether a source toggle is on. Unset means enabled.
func IsEnabled(b *bool) bool {
	return b == nil || *b
}

// Load reads config.yaml from dir, applies defaults, and validates. A missing
// config.yaml yields the defaults.
func Load(dir string) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}

	var cfg Config

	path := filepath.Join(dir, DefaultConfigFile)
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Output.Dir == "" {
		cfg.Output.Dir = DefaultOutputDir
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = DefaultStoragePath
	}
	if cfg.Storage.RetainDays == 0 {
		cfg.Storage.RetainDays = DefaultRetainDays
	}
	if cfg.Scrape.MaxEntries == 0 {
		cfg.Scrape.MaxEntries = DefaultMaxEntries
	}
	if cfg.Scrape.MaxAge.Duration == 0 {
		cfg.Scrape.MaxAge.Duration = DefaultMaxAge
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}

	tw := &cfg.Sources.Twitter
	if tw.AccountID == "" {
		tw.AccountID = DefaultTwitterAccountID
	}
	if tw.Handle == "" {
		tw.Handle = DefaultTwitterHandle
	}

	rd := &cfg.Sources.Reddit
	if rd.Community == "" {
		rd.Community = DefaultRedditCommunity
	}
	if rd.StaffFlair == "" {
		rd.StaffFlair = DefaultStaffFlair
	}
	if rd.Communities == nil {
		rd.Communities = append([]string(nil), DefaultCommunities...)
	}
	if rd.DiscoveryWindow.Duration == 0 {
		rd.DiscoveryWindow.Duration = DefaultDiscoveryWindow
	}
	if rd.DiscoveryPages == 0 {
		rd.DiscoveryPages = DefaultDiscoveryPages
	}

	ar := &cfg.Sources.Articles
	if ar.Site == "" {
		ar.Site = DefaultArticlesSite
	}
	ar.Site = strings.TrimRight(ar.Site, "/")
	if ar.Locale == "" {
		ar.Locale = DefaultArticlesLocale
	}

	if cfg.Sources.YouTube.PlaylistID == "" {
		cfg.Sources.YouTube.PlaylistID = DefaultYouTubePlaylist
	}
}

func validate(cfg *Config) error {
	s := cfg.Sources
	if !IsEnabled(s.Twitter.Enabled) && !IsEnabled(s.Reddit.Enabled) &&
		!IsEnabled(s.Articles.Enabled) && !IsEnabled(s.YouTube.Enabled) {
		return errors.New("sources: at least one source must be enabled")
	}

	if cfg.Scrape.MaxEntries < 0 {
		return fmt.Errorf("scrape.max_entries: must be positive, got %d", cfg.Scrape.MaxEntries)
	}
	if cfg.Scrape.MaxAge.Duration < 0 {
		return fmt.Errorf("scrape.max_age: must be positive, got %s", cfg.Scrape.MaxAge.Duration)
	}
	if cfg.Sources.Reddit.DiscoveryPages < 0 {
		return fmt.Errorf("sources.reddit.discovery_pages: must be positive, got %d", cfg.Sources.Reddit.DiscoveryPages)
	}

	if _, err := log.ParseLevel(cfg.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	if len(cfg.Sources.Reddit.Communities) == 0 {
		return errors.New("sources.reddit.communities: at least one pattern is required")
	}
	if _, err := CompilePatterns(cfg.Sources.Reddit.Communities); err != nil {
		return fmt.Errorf("sources.reddit.communities: %w", err)
	}

	if cfg.Privacy.Redact.Enabled {
		if _, err := CompilePatterns(cfg.Privacy.Redact.Patterns); err != nil {
			return fmt.Errorf("privacy.redact.patterns: %w", err)
		}
	}

	return nil
}

// CompilePatterns compiles community and redaction patterns.
func CompilePatterns(patterns []string) ([]*regexp.Regexp, error) {
	compiled := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("compile pattern %q: %w", p, err)
		}
		compiled = append(compiled, re)
	}
	return compiled, nil
}

// RedactPatterns returns the compiled extra redaction patterns, or nil when
// redaction is disabled.
func (c *Config) RedactPatterns() ([]*regexp.Regexp, error) {
	if !c.Privacy.Redact.Enabled || len(c.Privacy.Redact.Patterns) == 0 {
		return nil, nil
	}
	return CompilePatterns(c.Privacy.Redact.Patterns)
}

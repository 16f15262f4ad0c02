package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrCredentialsMissing is returned when the credentials file did not exist.
// A template has been written in its place by the time it is returned.
var ErrCredentialsMissing = errors.New("credentials file missing")

// DotEnvFile is read from the config dir for credential overrides.
const DotEnvFile = ".env"

type Credentials struct {
	Twitter TwitterCredentials `yaml:"twitter"`
	Reddit  RedditCredentials  `yaml:"reddit"`
	YouTube YouTubeCredentials `yaml:"youtube"`
}

type TwitterCredentials struct {
	BearerToken string `yaml:"bearer_token"`
}

type RedditCredentials struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	Username     string `yaml:"username"`
	Password     string `yaml:"password"`
}

type YouTubeCredentials struct {
	APIKey string `yaml:"api_key"`
}

// TemplateCredentials holds the dummy values written for a fresh install.
var TemplateCredentials = Credentials{
	Twitter: TwitterCredentials{BearerToken: "twitterBearerToken"},
	Reddit: RedditCredentials{
		ClientID:     "redditClientId",
		ClientSecret: "redditClientSecret",
		Username:     "redditUsername",
		Password:     "redditPassword",
	},
	YouTube: YouTubeCredentials{APIKey: "youtubeApiKey"},
}

// Placeholder reports whether v is empty or still the template value.
func Placeholder(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return true
	}
	switch v {
	case TemplateCredentials.Twitter.BearerToken,
		TemplateCredentials.Reddit.ClientID,
		TemplateCredentials.Reddit.ClientSecret,
		TemplateCredentials.Reddit.Username,
		TemplateCredentials.Reddit.Password,
		TemplateCredentials.YouTube.APIKey:
		return true
	}
	return false
}

// LoadCredentials reads credentials.yaml from dir. When the file is absent a
// template is generated and ErrCredentialsMissing is returned. Values from
// the environment, then from dir/.env, override the file.
func LoadCredentials(dir string) (*Credentials, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}

	path := filepath.Join(dir, DefaultCredentialsFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		if err := WriteCredentialsTemplate(path); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s has been generated with dummy values, fill it in and retry", ErrCredentialsMissing, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read credentials: %w", err)
	}

	var creds Credentials
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	dotenv, err := godotenv.Read(filepath.Join(dir, DotEnvFile))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", DotEnvFile, err)
	}
	applyOverrides(&creds, func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return dotenv[key]
	})

	return &creds, nil
}

// WriteCredentialsTemplate writes the dummy credentials file to path.
func WriteCredentialsTemplate(path string) error {
	data, err := yaml.Marshal(TemplateCredentials)
	if err != nil {
		return fmt.Errorf("encode credentials template: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write credentials template: %w", err)
	}
	return nil
}

func applyOverrides(c *Credentials, lookup func(string) string) {
	set := func(dst *string, key string) {
		if v := lookup(key); v != "" {
			*dst = v
		}
	}
	set(&c.Twitter.BearerToken, "LEAGUENEWS_TWITTER_BEARER_TOKEN")
	set(&c.Reddit.ClientID, "LEAGUENEWS_REDDIT_CLIENT_ID")
	set(&c.Reddit.ClientSecret, "LEAGUENEWS_REDDIT_CLIENT_SECRET")
	set(&c.Reddit.Username, "LEAGUENEWS_REDDIT_USERNAME")
	set(&c.Reddit.Password, "LEAGUENEWS_REDDIT_PASSWORD")
	set(&c.YouTube.APIKey, "LEAGUENEWS_YOUTUBE_API_KEY")
}

// Secrets returns every non-placeholder credential value, for redaction.
func (c *Credentials) Secrets() []string {
	if c == nil {
		return nil
	}
	var out []string
	for _, v := range []string{
		c.Twitter.BearerToken,
		c.Reddit.ClientSecret,
		c.Reddit.Password,
		c.YouTube.APIKey,
	} {
		if !Placeholder(v) {
			out = append(out, v)
		}
	}
	return out
}

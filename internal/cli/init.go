package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/leaguenews/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config directory with example files",
	RunE:  initAction,
}

func initAction(_ *cobra.Command, _ []string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	created := 0

	configPath := filepath.Join(configDir, config.DefaultConfigFile)
	wrote, err := writeIfNotExists(configPath, []byte(exampleConfig))
	if err != nil {
		return err
	}
	if wrote {
		created++
	}

	credsPath := filepath.Join(configDir, config.DefaultCredentialsFile)
	if _, err := os.Stat(credsPath); err == nil {
		fmt.Printf("  exists: %s\n", credsPath)
	} else {
		if err := config.WriteCredentialsTemplate(credsPath); err != nil {
			return err
		}
		fmt.Printf("  created: %s (fill in before scraping)\n", credsPath)
		created++
	}

	if created == 0 {
		fmt.Printf("Config directory %s already initialized.\n", configDir)
	} else {
		fmt.Printf("Initialized %s with %d config files.\n", configDir, created)
	}
	return nil
}

// writeIfNotExists writes data to path if the file does not exist.
// Returns true if the file was created.
func writeIfNotExists(path string, data []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("  exists: %s\n", path)
		return false, nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("  created: %s\n", path)
	return true, nil
}

const exampleConfig = `# leaguenews configuration

output:
  dir: dist/content

storage:
  path: .leaguenews/runs.db
  retain_days: 90

scrape:
  max_entries: 100
  max_age: 60d

log:
  level: info

sources:
  twitter:
    enabled: true
    account_id: "1405644969675681794"
    handle: LoLDev
  reddit:
    enabled: true
    community: leagueoflegends
    staff_flair: ":riot:"
    communities:
      - "(?i)league|summoner|aram|teamfight|tft|wildrift|lolesports"
    discovery_window: 7d
    discovery_pages: 10
  articles:
    enabled: true
    site: https://www.leagueoflegends.com
    locale: en-us
  youtube:
    enabled: true
    playlist_id: UU2t5bjwHdUX4vM2g8TRDq5g

# Credentials from credentials.yaml are always scrubbed from logged errors.
privacy:
  redact:
    enabled: false
    patterns: []
`

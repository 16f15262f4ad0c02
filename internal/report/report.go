// Package report renders harvest run reports and ledger statistics.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/ppiankov/leaguenews/internal/harvest"
	"github.com/ppiankov/leaguenews/internal/store"
)

// StaleAfter is how long a source may go without a successful run before
// stats flag it.
const StaleAfter = 7 * 24 * time.Hour

// StatsInput is the input for a stats formatter.
type StatsInput struct {
	Sources []store.SourceStats
	Since   time.Duration // window the stats cover
	Now     time.Time
}

// Formatter writes run reports and stats to w.
type Formatter interface {
	FormatRun(w io.Writer, r harvest.Report) error
	FormatStats(w io.Writer, in StatsInput) error
}

// New returns the formatter for format. An empty format means terminal.
func New(format string, color bool) (Formatter, error) {
	switch format {
	case "json":
		return NewJSON(), nil
	case "markdown", "md":
		return NewMarkdown(), nil
	case "terminal", "":
		return NewTerminal(color), nil
	default:
		return nil, fmt.Errorf("unknown format %q (want terminal, json, or markdown)", format)
	}
}

// Stale reports whether ss has not succeeded within StaleAfter of now.
func Stale(ss store.SourceStats, now time.Time) bool {
	if ss.LastSuccess.IsZero() {
		return true
	}
	return now.Sub(ss.LastSuccess) > StaleAfter
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	if hours >= 24 && hours%24 == 0 {
		return fmt.Sprintf("%d days", hours/24)
	}
	return fmt.Sprintf("%dh", hours)
}

func formatElapsed(d time.Duration) string {
	if d < time.Second {
		return d.Round(time.Millisecond).String()
	}
	return d.Round(100 * time.Millisecond).String()
}

func formatAgo(now, t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func nameWidth(floor int, names ...string) int {
	w := floor
	for _, n := range names {
		if len(n) > w {
			w = len(n)
		}
	}
	return w
}

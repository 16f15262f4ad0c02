package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/ppiankov/leaguenews/internal/harvest"
)

// MarkdownFormatter formats reports as Markdown, for CI job summaries.
type MarkdownFormatter struct{}

// NewMarkdown creates a Markdown formatter.
func NewMarkdown() *MarkdownFormatter {
	return &MarkdownFormatter{}
}

// FormatRun writes the run report as a Markdown table.
func (f *MarkdownFormatter) FormatRun(w io.Writer, r harvest.Report) error {
	fmt.Fprintf(w, "# leaguenews run `%s`\n\n", shortID(r.ID))
	fmt.Fprintf(w, "%d new entries from %d sources in %s\n\n", r.NewEntries, len(r.Sources), formatElapsed(r.Elapsed))

	if len(r.Sources) == 0 {
		fmt.Fprintln(w, "No sources ran.")
		return nil
	}

	fmt.Fprintln(w, "| Source | New | Total | Elapsed | Status |")
	fmt.Fprintln(w, "|---|---:|---:|---:|---|")
	for _, s := range r.Sources {
		status, total := "ok", fmt.Sprint(s.TotalEntries)
		if s.Failed() {
			status, total = "**failed**", "-"
		}
		fmt.Fprintf(w, "| %s | %d | %s | %s | %s |\n", s.Name, s.NewEntries, total, formatElapsed(s.Elapsed), status)
	}
	fmt.Fprintln(w)

	if n := r.Failures(); n > 0 {
		fmt.Fprintf(w, "## Failures (%d)\n\n", n)
		for _, s := range r.Sources {
			if s.Failed() {
				fmt.Fprintf(w, "- **%s**: `%s`\n", s.Name, escapeCode(s.Error))
			}
		}
		fmt.Fprintln(w)
	}

	return nil
}

// FormatStats writes the ledger stats as a Markdown table.
func (f *MarkdownFormatter) FormatStats(w io.Writer, in StatsInput) error {
	fmt.Fprintf(w, "# leaguenews stats\n\n")
	fmt.Fprintf(w, "Last %s, %d sources\n\n", formatDuration(in.Since), len(in.Sources))

	if len(in.Sources) == 0 {
		fmt.Fprintln(w, "No runs recorded.")
		return nil
	}

	fmt.Fprintln(w, "| Source | Runs | Failures | New | Last run | Last success |")
	fmt.Fprintln(w, "|---|---:|---:|---:|---|---|")
	for _, s := range in.Sources {
		last := formatAgo(in.Now, s.LastSuccess)
		if Stale(s, in.Now) {
			last = "**" + last + "**"
		}
		fmt.Fprintf(w, "| %s | %d | %d | %d | %s | %s |\n",
			s.Source, s.Runs, s.Failures, s.NewEntries, formatAgo(in.Now, s.LastRun), last)
	}
	fmt.Fprintln(w)

	return nil
}

func escapeCode(s string) string {
	return strings.ReplaceAll(s, "`", "'")
}

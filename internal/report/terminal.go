package report

import (
	"fmt"
	"io"

	"github.com/ppiankov/leaguenews/internal/harvest"
)

// TerminalFormatter formats reports for terminal output.
type TerminalFormatter struct {
	color bool
}

// NewTerminal creates a terminal formatter. Set color=true for ANSI colors.
func NewTerminal(color bool) *TerminalFormatter {
	return &TerminalFormatter{color: color}
}

// FormatRun writes one line per source followed by the failures.
func (f *TerminalFormatter) FormatRun(w io.Writer, r harvest.Report) error {
	header := fmt.Sprintf("leaguenews run %s: %d sources, %d new entries in %s",
		shortID(r.ID), len(r.Sources), r.NewEntries, formatElapsed(r.Elapsed))
	fmt.Fprintln(w, f.bold(header))
	fmt.Fprintln(w)

	if len(r.Sources) == 0 {
		fmt.Fprintln(w, "No sources ran.")
		return nil
	}

	names := make([]string, len(r.Sources))
	for i, s := range r.Sources {
		names[i] = s.Name
	}
	width := nameWidth(6, names...)

	fmt.Fprintf(w, "  %-*s  %5s  %6s  %8s  %s\n", width, "Source", "New", "Total", "Elapsed", "Status")
	for _, s := range r.Sources {
		status := f.green("ok")
		total := fmt.Sprintf("%6d", s.TotalEntries)
		if s.Failed() {
			status = f.red("FAILED")
			total = fmt.Sprintf("%6s", "-")
		}
		fmt.Fprintf(w, "  %-*s  %5d  %s  %8s  %s\n",
			width, s.Name, s.NewEntries, total, formatElapsed(s.Elapsed), status)
	}
	fmt.Fprintln(w)

	if n := r.Failures(); n > 0 {
		fmt.Fprintln(w, f.red(f.bold(fmt.Sprintf("--- Failures (%d) ---", n))))
		fmt.Fprintln(w)
		for _, s := range r.Sources {
			if s.Failed() {
				fmt.Fprintf(w, "  %s\n      %s\n", s.Name, f.dim(s.Error))
			}
		}
		fmt.Fprintln(w)
	}

	return nil
}

// FormatStats writes the per-source ledger table and the stale sources.
func (f *TerminalFormatter) FormatStats(w io.Writer, in StatsInput) error {
	fmt.Fprintln(w, f.bold(fmt.Sprintf("leaguenews stats: last %s, %d sources", formatDuration(in.Since), len(in.Sources))))
	fmt.Fprintln(w)

	if len(in.Sources) == 0 {
		fmt.Fprintln(w, "No runs recorded. Run 'leaguenews scrape' first.")
		return nil
	}

	names := make([]string, len(in.Sources))
	for i, s := range in.Sources {
		names[i] = s.Source
	}
	width := nameWidth(6, names...)

	fmt.Fprintf(w, "  %-*s  %4s  %8s  %5s  %-12s  %s\n", width, "Source", "Runs", "Failures", "New", "Last run", "Last success")
	for _, s := range in.Sources {
		fmt.Fprintf(w, "  %-*s  %4d  %8d  %5d  %-12s  %s\n",
			width, s.Source, s.Runs, s.Failures, s.NewEntries,
			formatAgo(in.Now, s.LastRun), formatAgo(in.Now, s.LastSuccess))
	}
	fmt.Fprintln(w)

	var stale []int
	for i, s := range in.Sources {
		if Stale(s, in.Now) {
			stale = append(stale, i)
		}
	}
	if len(stale) > 0 {
		fmt.Fprintln(w, f.yellow(f.bold(fmt.Sprintf("--- Stale Sources (no success in %s) ---", formatDuration(StaleAfter)))))
		fmt.Fprintln(w)
		for _, i := range stale {
			s := in.Sources[i]
			fmt.Fprintf(w, "  %s: last success %s\n", s.Source, formatAgo(in.Now, s.LastSuccess))
			if s.LastError != "" {
				fmt.Fprintf(w, "      %s\n", f.dim(s.LastError))
			}
		}
		fmt.Fprintln(w)
	}

	return nil
}

// ANSI helpers, no-op when color=false.

func (f *TerminalFormatter) bold(s string) string {
	if !f.color {
		return s
	}
	return "\033[1m" + s + "\033[0m"
}

func (f *TerminalFormatter) green(s string) string {
	if !f.color {
		return s
	}
	return "\033[32m" + s + "\033[0m"
}

func (f *TerminalFormatter) yellow(s string) string {
	if !f.color {
		return s
	}
	return "\033[33m" + s + "\033[0m"
}

func (f *TerminalFormatter) red(s string) string {
	if !f.color {
		return s
	}
	return "\033[31m" + s + "\033[0m"
}

func (f *TerminalFormatter) dim(s string) string {
	if !f.color {
		return s
	}
	return "\033[2m" + s + "\033[0m"
}

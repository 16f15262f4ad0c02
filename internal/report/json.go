package report

import (
	"encoding/json"
	"io"
	"time"

	"github.com/ppiankov/leaguenews/internal/harvest"
)

type jsonRun struct {
	ID         string       `json:"id"`
	StartedAt  string       `json:"started_at"`
	ElapsedMS  int64        `json:"elapsed_ms"`
	NewEntries int          `json:"new_entries"`
	Failed     int          `json:"failed"`
	Sources    []jsonSource `json:"sources"`
}

type jsonSource struct {
	Name         string `json:"name"`
	NewEntries   int    `json:"new_entries"`
	TotalEntries int    `json:"total_entries"`
	ElapsedMS    int64  `json:"elapsed_ms"`
	Error        string `json:"error,omitempty"`
}

type jsonStats struct {
	Since   string           `json:"since"`
	Sources []jsonSourceStat `json:"sources"`
}

type jsonSourceStat struct {
	Source      string `json:"source"`
	Runs        int    `json:"runs"`
	Failures    int    `json:"failures"`
	NewEntries  int    `json:"new_entries"`
	LastRun     string `json:"last_run"`
	LastSuccess string `json:"last_success,omitempty"`
	LastError   string `json:"last_error,omitempty"`
	Stale       bool   `json:"stale"`
}

// JSONFormatter formats reports as JSON.
type JSONFormatter struct{}

// NewJSON creates a JSON formatter.
func NewJSON() *JSONFormatter {
	return &JSONFormatter{}
}

// FormatRun writes the run report as JSON to w.
func (f *JSONFormatter) FormatRun(w io.Writer, r harvest.Report) error {
	out := jsonRun{
		ID:         r.ID,
		StartedAt:  formatTimestamp(r.StartedAt),
		ElapsedMS:  r.Elapsed.Milliseconds(),
		NewEntries: r.NewEntries,
		Failed:     r.Failures(),
		Sources:    make([]jsonSource, 0, len(r.Sources)),
	}
	for _, s := range r.Sources {
		out.Sources = append(out.Sources, jsonSource{
			Name:         s.Name,
			NewEntries:   s.NewEntries,
			TotalEntries: s.TotalEntries,
			ElapsedMS:    s.Elapsed.Milliseconds(),
			Error:        s.Error,
		})
	}
	return encode(w, out)
}

// FormatStats writes the ledger stats as JSON to w.
func (f *JSONFormatter) FormatStats(w io.Writer, in StatsInput) error {
	out := jsonStats{
		Since:   formatDuration(in.Since),
		Sources: make([]jsonSourceStat, 0, len(in.Sources)),
	}
	for _, s := range in.Sources {
		out.Sources = append(out.Sources, jsonSourceStat{
			Source:      s.Source,
			Runs:        s.Runs,
			Failures:    s.Failures,
			NewEntries:  s.NewEntries,
			LastRun:     formatTimestamp(s.LastRun),
			LastSuccess: formatTimestamp(s.LastSuccess),
			LastError:   s.LastError,
			Stale:       Stale(s, in.Now),
		})
	}
	return encode(w, out)
}

func encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func formatTimestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

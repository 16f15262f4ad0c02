// Package harvest runs every enabled source once, isolating failures so one
// broken source never blocks the others or corrupts its stored snapshot.
package harvest

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/ppiankov/leaguenews/internal/config"
	"github.com/ppiankov/leaguenews/internal/privacy"
	"github.com/ppiankov/leaguenews/internal/snapshot"
	"github.com/ppiankov/leaguenews/internal/source"
	"github.com/ppiankov/leaguenews/internal/store"
)

// Recorder persists finished runs.
type Recorder interface {
	RecordRun(ctx context.Context, run store.Run) error
}

// Options are the per-run limits shared by every source.
type Options struct {
	MaxEntries  int
	MaxAge      time.Duration
	Credentials config.Credentials
	Redact      []*regexp.Regexp // scrubbed from errors in addition to credentials
}

// SourceReport is the outcome of one source.
type SourceReport struct {
	Name           string        `json:"name"`
	NewEntries     int           `json:"new_entries"`
	UpdatedEntries int           `json:"updated_entries"`
	TotalEntries   int           `json:"total_entries"`
	Error          string        `json:"error,omitempty"`
	Elapsed        time.Duration `json:"elapsed_ns"`
}

// Failed reports whether the source failed.
func (sr SourceReport) Failed() bool {
	return sr.Error != ""
}

// Report summarises a run.
type Report struct {
	ID         string         `json:"id"`
	StartedAt  time.Time      `json:"started_at"`
	Elapsed    time.Duration  `json:"elapsed_ns"`
	NewEntries int            `json:"new_entries"`
	Sources    []SourceReport `json:"sources"`
}

// Failures returns the number of failed sources.
func (r Report) Failures() int {
	n := 0
	for _, s := range r.Sources {
		if s.Failed() {
			n++
		}
	}
	return n
}

// Run converts the report into a ledger row.
func (r Report) Run() store.Run {
	run := store.Run{
		ID:         r.ID,
		StartedAt:  r.StartedAt,
		Elapsed:    r.Elapsed,
		NewEntries: r.NewEntries,
	}
	for _, s := range r.Sources {
		run.Sources = append(run.Sources, store.SourceRun{
			Source:         s.Name,
			NewEntries:     s.NewEntries,
			UpdatedEntries: s.UpdatedEntries,
			TotalEntries:   s.TotalEntries,
			Error:          s.Error,
			Elapsed:        s.Elapsed,
		})
	}
	return run
}

// Harvester runs a fixed list of jobs against one snapshot directory.
type Harvester struct {
	jobs     []Job
	snaps    *snapshot.Store
	opts     Options
	log      *log.Logger
	redact   *privacy.Redactor
	recorder Recorder
	now      func() time.Time
}

// New creates a Harvester. logger may be nil.
func New(snaps *snapshot.Store, jobs []Job, opts Options, logger *log.Logger) (*Harvester, error) {
	if snaps == nil {
		return nil, errors.New("snapshot store is required")
	}
	if len(jobs) == 0 {
		return nil, errors.New("at least one source is required")
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Harvester{
		jobs:   jobs,
		snaps:  snaps,
		opts:   opts,
		log:    logger,
		redact: privacy.NewRedactor(opts.Credentials.Secrets(), opts.Redact...),
		now:    time.Now,
	}, nil
}

// SetRecorder makes Run write every report to r. Recording is best-effort.
func (h *Harvester) SetRecorder(r Recorder) {
	h.recorder = r
}

// Jobs returns the names of the configured sources, in run order.
func (h *Harvester) Jobs() []string {
	names := make([]string, 0, len(h.jobs))
	for _, j := range h.jobs {
		names = append(names, j.Name())
	}
	return names
}

// Run harvests every source in order. A failed source is logged and counted
// as zero new entries; the remaining sources still run. The returned error is
// non-nil only when ctx was canceled.
func (h *Harvester) Run(ctx context.Context) (Report, error) {
	start := h.now()
	report := Report{ID: uuid.NewString(), StartedAt: start.UTC()}

	opts := source.Options{
		MaxEntries:  h.opts.MaxEntries,
		MaxAge:      start.Add(-h.opts.MaxAge),
		Credentials: h.opts.Credentials,
	}

	for _, j := range h.jobs {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		name := j.Name()
		h.log.Info("scraping", "source", name)
		begin := time.Now()

		counts, err := j.Harvest(ctx, h.snaps, opts, h.log)
		sr := SourceReport{Name: name, Elapsed: time.Since(begin)}
		if err != nil {
			sr.Error = h.redact.Error(err)
			h.log.Error("scrape failed", "source", name, "err", sr.Error)
		} else {
			sr.NewEntries = counts.New
			sr.UpdatedEntries = counts.Updated
			sr.TotalEntries = counts.Total
			report.NewEntries += counts.New
			h.log.Info("scraped", "source", name, "new", counts.New, "updated", counts.Updated, "total", counts.Total, "elapsed", sr.Elapsed.Round(time.Millisecond))
		}
		report.Sources = append(report.Sources, sr)
	}

	report.Elapsed = h.now().Sub(start)
	h.log.Info("run finished", "new", report.NewEntries, "failed", report.Failures(), "elapsed", report.Elapsed.Round(time.Millisecond))

	if h.recorder != nil {
		if err := h.recorder.RecordRun(ctx, report.Run()); err != nil {
			h.log.Warn("could not record run", "err", h.redact.Error(err))
		}
	}

	return report, nil
}

// Recompress regenerates every compressed projection from the saved
// snapshots without touching the network. Sources without a snapshot are
// skipped; other failures are joined and returned after every source ran.
func (h *Harvester) Recompress() (map[string]int, error) {
	written := make(map[string]int, len(h.jobs))
	var errs []error
	for _, j := range h.jobs {
		n, err := j.Recompress(h.snaps)
		switch {
		case errors.Is(err, snapshot.ErrNotFound):
			h.log.Warn("no snapshot to compress", "source", j.Name())
		case err != nil:
			h.log.Error("compress failed", "source", j.Name(), "err", err)
			errs = append(errs, fmt.Errorf("%s: %w", j.Name(), err))
		default:
			written[j.Name()] = n
			h.log.Debug("compressed", "source", j.Name(), "entries", n)
		}
	}
	return written, errors.Join(errs...)
}

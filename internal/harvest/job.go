package harvest

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"

	"github.com/ppiankov/leaguenews/internal/snapshot"
	"github.com/ppiankov/leaguenews/internal/source"
)

// Job is a source bound to its snapshot type, so sources with different
// content types can run in one list.
type Job interface {
	Name() string

	// Harvest loads the previous snapshot, scrapes, and persists the result.
	// Nothing is written when the scrape or the commit of its files fails.
	Harvest(ctx context.Context, snaps *snapshot.Store, opts source.Options, logger *log.Logger) (Counts, error)

	// Recompress rewrites the compressed projection from the saved snapshot
	// and returns the number of entries written.
	Recompress(snaps *snapshot.Store) (int, error)
}

// Counts are the entry counts of one successful harvest.
type Counts struct {
	New     int
	Updated int
	Total   int
}

type job[C, E any] struct {
	scraper source.Scraper[C, E]
}

// Bind wraps a scraper as a Job.
func Bind[C, E any](s source.Scraper[C, E]) Job {
	return job[C, E]{scraper: s}
}

func (j job[C, E]) Name() string {
	return j.scraper.Name()
}

func (j job[C, E]) Harvest(ctx context.Context, snaps *snapshot.Store, opts source.Options, logger *log.Logger) (Counts, error) {
	name := j.scraper.Name()
	old := j.load(snaps, logger)

	res, err := j.scraper.Scrape(ctx, old, opts)
	if err != nil {
		return Counts{}, err
	}

	if err := snaps.Commit(name, res.Content, j.scraper.Compress(res.Content)); err != nil {
		return Counts{}, err
	}

	return Counts{New: res.NewEntries, Updated: res.UpdatedEntries, Total: res.TotalEntries}, nil
}

func (j job[C, E]) Recompress(snaps *snapshot.Store) (int, error) {
	name := j.scraper.Name()
	content := j.scraper.InitContent()
	if err := snaps.Load(name, &content); err != nil {
		return 0, err
	}
	entries := j.scraper.Compress(content)
	if err := snaps.SaveCompressed(name, entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// load returns the previous snapshot, or an empty one when there is none or
// it cannot be read.
func (j job[C, E]) load(snaps *snapshot.Store, logger *log.Logger) C {
	name := j.scraper.Name()
	old := j.scraper.InitContent()
	err := snaps.Load(name, &old)
	switch {
	case err == nil:
		return old
	case errors.Is(err, snapshot.ErrNotFound):
		logger.Debug("no previous snapshot", "source", name)
	default:
		logger.Warn("previous snapshot unreadable, starting fresh", "source", name, "err", err)
	}
	return j.scraper.InitContent()
}

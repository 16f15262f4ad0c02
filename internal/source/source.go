// Package source implements the incremental scrapers for each news source.
//
// Every scraper walks a newest-first feed, merges what it sees against the
// previous snapshot, and returns a full replacement snapshot. Items already
// known by id keep their stored attributes; only attributes still missing are
// derived, which is where the expensive secondary lookups happen.
package source

import (
	"context"
	"errors"
	"time"

	"github.com/ppiankov/leaguenews/internal/config"
)

// ErrIdentity is returned when an item's id or link cannot be derived from
// any of its representations.
var ErrIdentity = errors.New("identity resolution failed")

// Options is the immutable per-run configuration handed to every scraper.
type Options struct {
	MaxEntries  int       // stop after this many processed items
	MaxAge      time.Time // items published before this are never processed
	Credentials config.Credentials
}

// Result is a complete replacement snapshot plus run counts.
type Result[C any] struct {
	Content        C
	NewEntries     int // items not present in the old snapshot
	UpdatedEntries int // known items that gained an attribute this run
	TotalEntries   int // all items processed this run
}

// Scraper is the capability every source implements. C is the snapshot
// type and E the compressed entry type.
type Scraper[C, E any] interface {
	// Name returns the source identifier, also used for file names.
	Name() string

	// InitContent returns an empty snapshot.
	InitContent() C

	// Scrape walks the source feed and merges it against old.
	Scrape(ctx context.Context, old C, opts Options) (Result[C], error)

	// Compress projects a snapshot into publishable entries sorted by date.
	Compress(content C) []E
}

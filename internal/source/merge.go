package source

import (
	"cmp"
	"slices"
	"sync"
	"time"
)

// Outcome classifies one merged item.
type Outcome struct {
	Inherited      bool // id was present in the previous snapshot
	NewInformation bool // at least one attribute was set during this run
}

// Tally accumulates outcomes from concurrent merges.
type Tally struct {
	mu      sync.Mutex
	New     int
	Updated int // known items that gained an attribute
	Total   int
}

func (t *Tally) Add(o Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Total++
	switch {
	case !o.Inherited:
		t.New++
	case o.NewInformation:
		t.Updated++
	}
}

// known reports whether id is present in a snapshot's primary map.
func known[V any](primary map[string]V, id string) bool {
	_, ok := primary[id]
	return ok
}

// carry copies the stored attribute for id from src into dst, if any.
func carry[V any](dst, src map[string]V, id string) {
	if v, ok := src[id]; ok {
		dst[id] = v
	}
}

// fill sets dst[id] when it is unset and v is non-zero. It reports whether
// the attribute was filled.
func fill[V comparable](dst map[string]V, id string, v V) bool {
	if _, ok := dst[id]; ok {
		return false
	}
	var zero V
	if v == zero {
		return false
	}
	dst[id] = v
	return true
}

// sortEntries orders compressed entries ascending by date, then id.
func sortEntries[E any](entries []E, date func(E) time.Time, id func(E) string) {
	slices.SortFunc(entries, func(a, b E) int {
		if c := date(a).Compare(date(b)); c != 0 {
			return c
		}
		return cmp.Compare(id(a), id(b))
	})
}

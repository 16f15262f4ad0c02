package source

import (
	"context"
	"time"
)

// Page is one response of a cursor-paginated feed.
type Page[T any] struct {
	Items []T
	Next  string // empty at end of feed
}

// PageFunc fetches the page at cursor. The first call receives "".
type PageFunc[T any] func(ctx context.Context, cursor string) (Page[T], error)

// Walk consumes a newest-first feed until one of its cutoffs is hit:
// an item older than MaxAge, MaxEntries processed items, or the end of the
// feed. Page errors are returned as-is; there are no retries.
type Walk[T any] struct {
	Fetch      PageFunc[T]
	Published  func(T) time.Time
	MaxAge     time.Time
	MaxEntries int
}

// Run calls visit for every item inside the cutoffs, in feed order. visit
// reports whether the item counted as processed; filtered items return
// false. Run returns the number of processed items.
func (w Walk[T]) Run(ctx context.Context, visit func(T) (bool, error)) (int, error) {
	processed := 0
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return processed, err
		}

		page, err := w.Fetch(ctx, cursor)
		if err != nil {
			return processed, err
		}

		for _, item := range page.Items {
			if w.Published(item).Before(w.MaxAge) {
				return processed, nil
			}
			counted, err := visit(item)
			if err != nil {
				return processed, err
			}
			if counted {
				processed++
			}
			if w.MaxEntries > 0 && processed >= w.MaxEntries {
				return processed, nil
			}
		}

		// A repeated cursor would loop forever on a misbehaving server.
		if page.Next == "" || len(page.Items) == 0 || page.Next == cursor {
			return processed, nil
		}
		cursor = page.Next
	}
}

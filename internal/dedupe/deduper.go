package dedupe

import "context"

// Deduper answers "was this event id processed already". Implementations:
// in-memory TTL map for single-instance runs, Redis SETNX for clusters.
type Deduper interface {
	// Seen marks id and reports whether it was already marked. true means
	// duplicate, processing can be skipped.
	Seen(ctx context.Context, id string) (alreadySeen bool, err error)
	Health(ctx context.Context) error
}

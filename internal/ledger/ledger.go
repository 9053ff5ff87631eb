package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// DefaultMaxHistory bounds how many delivered identities a ledger keeps.
// Pruning drops the oldest entries first.
const DefaultMaxHistory = 1000

// Entry records one confirmed delivery. Entries are created by
// MarkDelivered and never mutated afterwards.
type Entry struct {
	DeliveredAt time.Time      `json:"delivered_at"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// Ledger is the persistent set of already-delivered identities. Lookups
// hit an in-memory table loaded once at startup; MarkDelivered mutates
// memory only and Flush persists the table in one shot. A flush failure
// is reported as *types.PersistenceError and must not abort the run.
type Ledger interface {
	IsDelivered(identity string) bool
	MarkDelivered(identity string, metadata map[string]any)
	Flush(ctx context.Context) error
	Len() int
	Close(ctx context.Context) error
}

type Options struct {
	Path       string
	Addr       string
	Password   string
	DB         int
	MaxHistory int
}

type Factory func(ctx context.Context, opts Options) (Ledger, error)

var factories = map[string]Factory{}

func Register(backend string, fn Factory) {
	factories[backend] = fn
}

func New(ctx context.Context, backend string, opts Options) (Ledger, error) {
	if backend == "" {
		backend = "json"
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = DefaultMaxHistory
	}

	fn, exists := factories[backend]
	if !exists {
		return nil, fmt.Errorf("unsupported ledger backend: %s", backend)
	}

	return fn(ctx, opts)
}

// Prune trims a table to max entries, keeping the most recently
// delivered. Shared by backends that prune in application code.
func Prune(entries map[string]Entry, max int) int {
	if len(entries) <= max {
		return 0
	}

	type keyed struct {
		identity string
		at       time.Time
	}

	all := make([]keyed, 0, len(entries))
	for id, e := range entries {
		all = append(all, keyed{identity: id, at: e.DeliveredAt})
	}

	// Oldest first so the victims are at the front.
	sort.Slice(all, func(i, j int) bool {
		return all[i].at.Before(all[j].at)
	})

	dropped := len(all) - max
	for _, victim := range all[:dropped] {
		delete(entries, victim.identity)
	}
	return dropped
}

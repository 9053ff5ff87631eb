package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"golazo/internal/ledger"
	"golazo/internal/types"
)

const (
	entriesKey = "golazo:ledger"
	recencyKey = "golazo:ledger:recency"
)

func init() {
	ledger.Register("redis", New)
}

type pending struct {
	identity string
	entry    ledger.Entry
}

// Ledger keeps delivered identities in a redis hash, with a companion
// sorted set scored by delivery time that drives pruning. Lookups still
// hit an in-memory set loaded once at startup.
type Ledger struct {
	client     *goredis.Client
	maxHistory int
	mu         sync.RWMutex
	seen       map[string]struct{}
	queue      []pending
}

func New(ctx context.Context, opts ledger.Options) (ledger.Ledger, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	l := &Ledger{
		client:     client,
		maxHistory: opts.MaxHistory,
		seen:       make(map[string]struct{}),
	}

	identities, err := client.HKeys(ctx, entriesKey).Result()
	if err != nil {
		slog.Warn("Failed to load delivered identities, starting empty", "error", err)
	} else {
		for _, id := range identities {
			l.seen[id] = struct{}{}
		}
	}

	slog.Info("Redis ledger ready", "addr", opts.Addr, "delivered", len(l.seen))
	return l, nil
}

func (l *Ledger) IsDelivered(identity string) bool {
	if identity == "" {
		return false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, exists := l.seen[identity]
	return exists
}

func (l *Ledger) MarkDelivered(identity string, metadata map[string]any) {
	if identity == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seen[identity] = struct{}{}
	l.queue = append(l.queue, pending{
		identity: identity,
		entry: ledger.Entry{
			DeliveredAt: time.Now().UTC(),
			Metadata:    metadata,
		},
	})
}

func (l *Ledger) Flush(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.queue) > 0 {
		pipe := l.client.TxPipeline()
		for _, p := range l.queue {
			encoded, err := json.Marshal(p.entry)
			if err != nil {
				encoded = []byte("{}")
			}
			pipe.HSet(ctx, entriesKey, p.identity, string(encoded))
			pipe.ZAdd(ctx, recencyKey, goredis.Z{
				Score:  float64(p.entry.DeliveredAt.UnixMilli()),
				Member: p.identity,
			})
		}
		if _, err := pipe.Exec(ctx); err != nil {
			return &types.PersistenceError{Op: "write", Path: entriesKey, Err: err}
		}
	}

	if err := l.prune(ctx); err != nil {
		return err
	}

	l.queue = nil
	return nil
}

func (l *Ledger) prune(ctx context.Context) error {
	count, err := l.client.ZCard(ctx, recencyKey).Result()
	if err != nil {
		return &types.PersistenceError{Op: "prune", Path: recencyKey, Err: err}
	}
	if count <= int64(l.maxHistory) {
		return nil
	}

	excess := count - int64(l.maxHistory)
	victims, err := l.client.ZRange(ctx, recencyKey, 0, excess-1).Result()
	if err != nil {
		return &types.PersistenceError{Op: "prune", Path: recencyKey, Err: err}
	}

	pipe := l.client.TxPipeline()
	for _, id := range victims {
		pipe.HDel(ctx, entriesKey, id)
	}
	pipe.ZRemRangeByRank(ctx, recencyKey, 0, excess-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return &types.PersistenceError{Op: "prune", Path: recencyKey, Err: err}
	}

	for _, id := range victims {
		delete(l.seen, id)
	}
	slog.Info("Pruned ledger to capacity", "dropped", len(victims))
	return nil
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.seen)
}

func (l *Ledger) Close(ctx context.Context) error {
	return l.client.Close()
}

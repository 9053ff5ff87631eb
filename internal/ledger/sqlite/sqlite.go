package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"

	"golazo/internal/ledger"
	"golazo/internal/types"
)

//go:embed migrations/*.sql
var migrations embed.FS

func init() {
	ledger.Register("sqlite", New)
}

type pending struct {
	identity string
	entry    ledger.Entry
}

type Ledger struct {
	db         *sql.DB
	path       string
	maxHistory int
	mu         sync.RWMutex
	seen       map[string]struct{}
	queue      []pending
}

func New(ctx context.Context, opts ledger.Options) (ledger.Ledger, error) {
	path := opts.Path
	if path == "" {
		path = "./golazo.db"
	}

	slog.Info("Initializing sqlite ledger", "path", path)

	dsn := fmt.Sprintf("file:%s?cache=shared&mode=rwc&_journal_mode=WAL", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	l := &Ledger{
		db:         db,
		path:       path,
		maxHistory: opts.MaxHistory,
		seen:       make(map[string]struct{}),
	}

	if err := l.loadSeen(ctx); err != nil {
		// Same degradation contract as the file backend: a broken table
		// means an empty ledger and a warning, not a dead run.
		slog.Warn("Failed to load delivered identities, starting empty", "error", err)
	}

	slog.Info("Sqlite ledger ready", "delivered", len(l.seen))
	return l, nil
}

func runMigrations(db *sql.DB) error {
	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

func (l *Ledger) loadSeen(ctx context.Context) error {
	rows, err := l.db.QueryContext(ctx, `SELECT identity FROM delivered`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var identity string
		if err := rows.Scan(&identity); err != nil {
			return err
		}
		l.seen[identity] = struct{}{}
	}
	return rows.Err()
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

// Flush writes queued entries in one transaction and prunes the table to
// capacity, newest kept. The transaction keeps a mid-write crash from
// leaving a partial batch behind.
func (l *Ledger) Flush(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return &types.PersistenceError{Op: "begin", Path: l.path, Err: err}
	}
	defer tx.Rollback()

	for _, p := range l.queue {
		meta, err := json.Marshal(p.entry.Metadata)
		if err != nil {
			meta = []byte("{}")
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO delivered (identity, delivered_at, metadata)
			VALUES (?, ?, ?)
			ON CONFLICT(identity) DO NOTHING
		`, p.identity, p.entry.DeliveredAt, string(meta))
		if err != nil {
			return &types.PersistenceError{Op: "insert", Path: l.path, Err: err}
		}
	}

	result, err := tx.ExecContext(ctx, `
		DELETE FROM delivered WHERE identity NOT IN (
			SELECT identity FROM delivered ORDER BY delivered_at DESC LIMIT ?
		)
	`, l.maxHistory)
	if err != nil {
		return &types.PersistenceError{Op: "prune", Path: l.path, Err: err}
	}

	if err := tx.Commit(); err != nil {
		return &types.PersistenceError{Op: "commit", Path: l.path, Err: err}
	}

	if rows, err := result.RowsAffected(); err == nil && rows > 0 {
		slog.Info("Pruned ledger to capacity", "dropped", rows)
		if err := l.reloadSeen(ctx); err != nil {
			slog.Warn("Failed to reload identities after prune", "error", err)
		}
	}

	l.queue = nil
	return nil
}

func (l *Ledger) reloadSeen(ctx context.Context) error {
	l.seen = make(map[string]struct{})
	return l.loadSeen(ctx)
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.seen)
}

func (l *Ledger) Close(ctx context.Context) error {
	return l.db.Close()
}

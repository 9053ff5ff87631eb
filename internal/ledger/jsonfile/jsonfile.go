package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golazo/internal/ledger"
	"golazo/internal/types"
)

func init() {
	ledger.Register("json", New)
}

// fileFormat is the on-disk shape. It mirrors what the bot has always
// written, so existing ledger files keep loading across upgrades.
type fileFormat struct {
	LastUpdated time.Time               `json:"last_updated"`
	TotalCount  int                     `json:"total_count"`
	Entries     map[string]ledger.Entry `json:"entries"`
}

type Ledger struct {
	path       string
	maxHistory int
	mu         sync.RWMutex
	entries    map[string]ledger.Entry
	dirty      bool
}

func New(ctx context.Context, opts ledger.Options) (ledger.Ledger, error) {
	path := opts.Path
	if path == "" {
		path = filepath.Join("data", "delivered.json")
	}

	l := &Ledger{
		path:       path,
		maxHistory: opts.MaxHistory,
		entries:    make(map[string]ledger.Entry),
	}

	l.load()
	return l, nil
}

// load reads the backing file into memory. A missing file means a fresh
// start; a malformed file degrades to an empty ledger with a warning
// rather than crashing the run.
func (l *Ledger) load() {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			slog.Info("No existing ledger file, starting fresh", "path", l.path)
			return
		}
		slog.Warn("Failed to read ledger file, starting empty", "path", l.path, "error", err)
		return
	}

	var decoded fileFormat
	if err := json.Unmarshal(data, &decoded); err != nil {
		slog.Warn("Ledger file is malformed, starting empty", "path", l.path, "error", err)
		return
	}

	if decoded.Entries != nil {
		l.entries = decoded.Entries
	}
	slog.Info("Loaded delivered identities from ledger", "path", l.path, "count", len(l.entries))
}

func (l *Ledger) IsDelivered(identity string) bool {
	if identity == "" {
		return false
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, exists := l.entries[identity]
	return exists
}

func (l *Ledger) MarkDelivered(identity string, metadata map[string]any) {
	if identity == "" {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[identity] = ledger.Entry{
		DeliveredAt: time.Now().UTC(),
		Metadata:    metadata,
	}
	l.dirty = true
	slog.Debug("Marked identity as delivered", "identity", identity)
}

// Flush prunes the table to capacity and atomically replaces the backing
// file via a temp file plus rename, so an interrupted write never
// corrupts the previous state.
func (l *Ledger) Flush(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if dropped := ledger.Prune(l.entries, l.maxHistory); dropped > 0 {
		slog.Info("Pruned ledger to capacity", "dropped", dropped, "kept", len(l.entries))
	}

	out := fileFormat{
		LastUpdated: time.Now().UTC(),
		TotalCount:  len(l.entries),
		Entries:     l.entries,
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return &types.PersistenceError{Op: "encode", Path: l.path, Err: err}
	}

	dir := filepath.Dir(l.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return &types.PersistenceError{Op: "mkdir", Path: dir, Err: err}
		}
	}

	tmp, err := os.CreateTemp(dir, ".ledger-*.tmp")
	if err != nil {
		return &types.PersistenceError{Op: "create", Path: l.path, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &types.PersistenceError{Op: "write", Path: l.path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &types.PersistenceError{Op: "close", Path: l.path, Err: err}
	}

	if err := os.Rename(tmpName, l.path); err != nil {
		os.Remove(tmpName)
		return &types.PersistenceError{Op: "rename", Path: l.path, Err: err}
	}

	l.dirty = false
	slog.Debug("Flushed ledger", "path", l.path, "count", len(l.entries))
	return nil
}

func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

func (l *Ledger) Close(ctx context.Context) error {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if l.dirty {
		slog.Warn("Ledger closed with unflushed entries", "path", l.path)
	}
	return nil
}

// Package cache implements the content-addressed backup store. Backups are
// keyed by the state hash of everything that produced them and live under
//
//	<root>/caches/<dbName>/<hex-hash>
//
// alongside a hit table (<root>/hit.json) that records the last time each
// entry was used. The hit table is the single source of truth for garbage
// collection: files without an entry are orphans and get deleted, entries
// without a file are forgotten, and live entries are evicted oldest-hit
// first when the store exceeds its size bound.
//
// All mutations of hit.json happen under an exclusive advisory file lock
// and rewrite the file whole; there are no in-place edits.
package cache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roach88/dbbm/internal/sqlrunner"
	"github.com/roach88/dbbm/internal/state"
)

// Key identifies one cache entry.
type Key struct {
	DB   string
	Hash state.Hash
}

// Cache is the engine-facing contract. Manager is the real store;
// Null backs --no-cache.
type Cache interface {
	// TryGet reports whether a backup exists for (db, h) and returns its
	// path. When updateHit is set a successful lookup also touches the
	// hit table.
	TryGet(db string, h state.Hash, updateHit bool) (path string, ok bool, err error)

	// Add streams a backup of db at state h into the store. An existing
	// entry makes Add a no-op. Failures clean up any partial file and do
	// not touch the hit table.
	Add(ctx context.Context, conn, db string, h state.Hash) error

	// UpdateHits stamps the given entries with the current time.
	UpdateHits(keys []Key) error

	// GarbageCollect removes orphans and forgotten entries and evicts
	// live entries oldest-hit first until the store fits its size bound.
	GarbageCollect(silent bool) (Stats, error)
}

// Stats summarizes one garbage collection.
type Stats struct {
	Invalid   int   // files whose name does not parse as a state hash
	Orphans   int   // files with no hit-table entry
	Forgotten int   // hit-table entries with no file
	Evicted   int   // live entries evicted for size
	LiveSize  int64 // bytes remaining after collection
	Reclaimed int64 // bytes deleted
}

// Options configures a Manager.
type Options struct {
	// Root is the cache directory; caches/ and hit.json live under it.
	Root string
	// MaxSize bounds the total size in bytes of live entries after GC.
	// Negative means unbounded.
	MaxSize int64
	// AutoGC runs a silent collection before every Add.
	AutoGC bool
	// Compress requests backup compression from the server.
	Compress bool
}

// Manager is the on-disk cache store. It holds no mutable in-memory state
// across calls; everything lives under Root.
type Manager struct {
	opts   Options
	runner sqlrunner.Runner
	log    *slog.Logger
	now    func() time.Time
}

// NewManager creates a Manager over the given root. runner streams backups
// in and out; log receives warnings (nil means slog.Default()).
func NewManager(opts Options, runner sqlrunner.Runner, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{opts: opts, runner: runner, log: log, now: time.Now}
}

func (m *Manager) entryPath(db string, h state.Hash) string {
	return filepath.Join(m.opts.Root, "caches", db, h.Hex())
}

// TryGet reports whether a backup exists for (db, h).
func (m *Manager) TryGet(db string, h state.Hash, updateHit bool) (string, bool, error) {
	path := m.entryPath(db, h)
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("cache lookup %s/%s: %w", db, h.Hex(), err)
	}
	if updateHit {
		if err := m.UpdateHits([]Key{{DB: db, Hash: h}}); err != nil {
			return "", false, err
		}
	}
	return path, true, nil
}

// Add streams a backup of db into the store under the hash h.
func (m *Manager) Add(ctx context.Context, conn, db string, h state.Hash) error {
	path := m.entryPath(db, h)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if m.opts.AutoGC {
		if _, err := m.GarbageCollect(true); err != nil {
			m.log.Warn("cache auto-gc failed", "error", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cache add %s: %w", db, err)
	}

	if err := m.runner.BackupDatabase(ctx, conn, db, path, m.opts.Compress); err != nil {
		// A failed backup must not leave a partial entry behind and
		// must not be recorded as hit.
		os.Remove(path)
		return fmt.Errorf("cache add %s at %s: %w", db, h, err)
	}

	return m.UpdateHits([]Key{{DB: db, Hash: h}})
}

// UpdateHits stamps entries with the current time under the table lock.
func (m *Manager) UpdateHits(keys []Key) error {
	return m.withHits(func(hits hitTable) (hitTable, error) {
		ticks := m.now().UnixNano()
		for _, k := range keys {
			byHash := hits[k.DB]
			if byHash == nil {
				byHash = make(map[string]int64)
				hits[k.DB] = byHash
			}
			byHash[k.Hash.Hex()] = ticks
		}
		return hits, nil
	})
}

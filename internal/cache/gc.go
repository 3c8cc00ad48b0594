package cache

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/roach88/dbbm/internal/state"
)

// liveEntry is one (db, hash) pair present both on disk and in the table.
type liveEntry struct {
	db      string
	hex     string
	size    int64
	lastHit int64
}

// GarbageCollect brings the store back to its invariants:
//
//  1. every file under caches/ parses as a hex state hash
//  2. every file has a hit-table entry and vice versa
//  3. total live size fits MaxSize (when non-negative), evicting
//     oldest-hit entries first
//
// The whole collection runs under the hit-table lock so concurrent Adds
// and UpdateHits serialize against it.
func (m *Manager) GarbageCollect(silent bool) (Stats, error) {
	var stats Stats

	err := m.withHits(func(hits hitTable) (hitTable, error) {
		files, err := m.scanFiles(&stats)
		if err != nil {
			return nil, err
		}

		// Orphan files: on disk, not in the table.
		var live []liveEntry
		for db, byHash := range files {
			for hex, size := range byHash {
				lastHit, ok := hits[db][hex]
				if !ok {
					path := filepath.Join(m.opts.Root, "caches", db, hex)
					if err := os.Remove(path); err != nil {
						return nil, fmt.Errorf("gc remove orphan %s: %w", path, err)
					}
					stats.Orphans++
					stats.Reclaimed += size
					continue
				}
				live = append(live, liveEntry{db: db, hex: hex, size: size, lastHit: lastHit})
			}
		}

		// Forgotten entries: in the table, not on disk.
		for db, byHash := range hits {
			for hex := range byHash {
				if _, ok := files[db][hex]; !ok {
					delete(byHash, hex)
					stats.Forgotten++
				}
			}
			if len(byHash) == 0 {
				delete(hits, db)
			}
		}

		// Size bound: evict oldest-hit first until we fit.
		var total int64
		for _, e := range live {
			total += e.size
		}
		if m.opts.MaxSize >= 0 && total > m.opts.MaxSize {
			sort.Slice(live, func(i, j int) bool {
				if live[i].lastHit != live[j].lastHit {
					return live[i].lastHit < live[j].lastHit
				}
				// Tie-break for a stable eviction order.
				if live[i].db != live[j].db {
					return live[i].db < live[j].db
				}
				return live[i].hex < live[j].hex
			})
			for _, e := range live {
				if total <= m.opts.MaxSize {
					break
				}
				path := filepath.Join(m.opts.Root, "caches", e.db, e.hex)
				if err := os.Remove(path); err != nil {
					return nil, fmt.Errorf("gc evict %s: %w", path, err)
				}
				delete(hits[e.db], e.hex)
				if len(hits[e.db]) == 0 {
					delete(hits, e.db)
				}
				total -= e.size
				stats.Evicted++
				stats.Reclaimed += e.size
			}
		}
		stats.LiveSize = total

		return hits, nil
	})
	if err != nil {
		return Stats{}, err
	}

	if !silent {
		m.log.Info("cache gc complete",
			"invalid", stats.Invalid,
			"orphans", stats.Orphans,
			"forgotten", stats.Forgotten,
			"evicted", stats.Evicted,
			"live_bytes", stats.LiveSize,
			"reclaimed_bytes", stats.Reclaimed)
	}
	return stats, nil
}

// scanFiles enumerates caches/<db>/<hex>, deleting files whose name does
// not parse as a state hash. Returns db → hex → size.
func (m *Manager) scanFiles(stats *Stats) (map[string]map[string]int64, error) {
	files := make(map[string]map[string]int64)
	cachesDir := filepath.Join(m.opts.Root, "caches")

	dbs, err := os.ReadDir(cachesDir)
	if errors.Is(err, fs.ErrNotExist) {
		return files, nil
	}
	if err != nil {
		return nil, fmt.Errorf("gc scan: %w", err)
	}

	for _, dbEntry := range dbs {
		if !dbEntry.IsDir() {
			continue
		}
		db := dbEntry.Name()
		entries, err := os.ReadDir(filepath.Join(cachesDir, db))
		if err != nil {
			return nil, fmt.Errorf("gc scan %s: %w", db, err)
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			path := filepath.Join(cachesDir, db, entry.Name())
			info, err := entry.Info()
			if err != nil {
				return nil, fmt.Errorf("gc scan %s: %w", path, err)
			}
			if _, err := state.Parse(entry.Name()); err != nil {
				if err := os.Remove(path); err != nil {
					return nil, fmt.Errorf("gc remove invalid %s: %w", path, err)
				}
				stats.Invalid++
				stats.Reclaimed += info.Size()
				continue
			}
			if files[db] == nil {
				files[db] = make(map[string]int64)
			}
			files[db][entry.Name()] = info.Size()
		}
	}
	return files, nil
}

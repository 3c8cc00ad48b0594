package cache

import (
	"sort"
	"time"
)

// Entry describes one live cache entry for listings.
type Entry struct {
	DB      string
	Hex     string
	Size    int64
	LastHit time.Time
}

// Entries lists the live cache entries (file and hit-table entry both
// present), newest hit first. The listing runs under the table lock so
// it never observes a half-written join.
func (m *Manager) Entries() ([]Entry, error) {
	var out []Entry
	err := m.withHits(func(hits hitTable) (hitTable, error) {
		var stats Stats
		files, err := m.scanFiles(&stats)
		if err != nil {
			return nil, err
		}
		for db, byHash := range files {
			for hex, size := range byHash {
				ticks, ok := hits[db][hex]
				if !ok {
					continue
				}
				out = append(out, Entry{DB: db, Hex: hex, Size: size, LastHit: time.Unix(0, ticks)})
			}
		}
		return hits, nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastHit.Equal(out[j].LastHit) {
			return out[i].LastHit.After(out[j].LastHit)
		}
		if out[i].DB != out[j].DB {
			return out[i].DB < out[j].DB
		}
		return out[i].Hex < out[j].Hex
	})
	return out, nil
}

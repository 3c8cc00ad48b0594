package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// hitTable maps dbName → hex hash → last-hit ticks (UnixNano).
// It is the on-disk schema of hit.json.
type hitTable map[string]map[string]int64

const hitFileName = "hit.json"

// withHits runs fn over the hit table under an exclusive file lock and
// rewrites hit.json with fn's result. The whole read-modify-write cycle
// holds the lock; concurrent mutators serialize here.
func (m *Manager) withHits(fn func(hitTable) (hitTable, error)) error {
	if err := os.MkdirAll(m.opts.Root, 0o755); err != nil {
		return fmt.Errorf("hit table: %w", err)
	}
	path := filepath.Join(m.opts.Root, hitFileName)

	lock := flock.New(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("hit table lock: %w", err)
	}
	defer lock.Unlock()

	hits, err := readHits(path)
	if err != nil {
		return err
	}

	updated, err := fn(hits)
	if err != nil {
		return err
	}

	return writeHits(path, updated)
}

// readHits loads the table, tolerating a missing or empty file.
func readHits(path string) (hitTable, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) || (err == nil && len(data) == 0) {
		return make(hitTable), nil
	}
	if err != nil {
		return nil, fmt.Errorf("hit table read: %w", err)
	}
	var hits hitTable
	if err := json.Unmarshal(data, &hits); err != nil {
		return nil, fmt.Errorf("hit table parse: %w", err)
	}
	if hits == nil {
		hits = make(hitTable)
	}
	return hits, nil
}

// writeHits rewrites the table whole, pretty-printed with indent 2.
func writeHits(path string, hits hitTable) error {
	data, err := json.MarshalIndent(hits, "", "  ")
	if err != nil {
		return fmt.Errorf("hit table marshal: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("hit table write: %w", err)
	}
	return nil
}

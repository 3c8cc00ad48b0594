// Package resume persists the fingerprint of the last successfully
// executed leaf. The file is a single lowercase-hex line beside the
// project file; it is rewritten after every leaf, deleted after a full
// success, and left behind by any failure so the next run can pick up
// where this one stopped.
package resume

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/roach88/dbbm/internal/state"
)

// FileName is the resume file's name under the project root.
const FileName = ".dbbm.resume"

// ErrMissing means a resume was requested but no resume file exists.
var ErrMissing = errors.New("no resume file found; nothing to resume")

// InvalidError wraps a resume file that does not parse as a state hash.
type InvalidError struct {
	Path string
	Err  error
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("resume file %s is not a valid state hash: %v", e.Path, e.Err)
}

func (e *InvalidError) Unwrap() error { return e.Err }

// Store reads and writes the resume file for one project.
type Store struct {
	path string
}

// NewStore creates a Store under the given project root.
func NewStore(projectRoot string) *Store {
	return &Store{path: filepath.Join(projectRoot, FileName)}
}

// Path returns the resume file location.
func (s *Store) Path() string { return s.path }

// Load reads the persisted hash. ErrMissing when the file does not
// exist; *InvalidError when its content does not parse.
func (s *Store) Load() (state.Hash, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return state.Hash{}, ErrMissing
	}
	if err != nil {
		return state.Hash{}, fmt.Errorf("resume file: %w", err)
	}
	h, err := state.Parse(strings.TrimSpace(string(data)))
	if err != nil {
		return state.Hash{}, &InvalidError{Path: s.path, Err: err}
	}
	return h, nil
}

// Write overwrites the resume file with h.
func (s *Store) Write(h state.Hash) error {
	if err := os.WriteFile(s.path, []byte(h.Hex()+"\n"), 0o644); err != nil {
		return fmt.Errorf("resume file: %w", err)
	}
	return nil
}

// Clear removes the resume file. A missing file is not an error.
func (s *Store) Clear() error {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("resume file: %w", err)
	}
	return nil
}

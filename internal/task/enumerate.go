package task

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/roach88/dbbm/internal/state"
)

// matchedFile is one enumerated file: absolute path, normalized relative
// path, and base name.
type matchedFile struct {
	abs  string
	rel  string
	base string
}

// enumerate walks root recursively and returns the files whose base name
// matches pattern, sorted by normalized relative path (forward slashes,
// case-sensitive). The order is part of the fingerprint: directory
// listing order must never leak into a hash.
func enumerate(root string, pattern *regexp.Regexp) ([]matchedFile, error) {
	var files []matchedFile
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// A missing root enumerates as empty; the requirements pass
			// reports it before anything runs.
			if path == root && errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		base := d.Name()
		if !pattern.MatchString(base) {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, matchedFile{
			abs:  path,
			rel:  state.NormalizeRelName(rel),
			base: base,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("enumerate %s: %w", root, err)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].rel < files[j].rel })
	return files, nil
}

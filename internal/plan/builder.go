package plan

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/roach88/dbbm/internal/config"
)

// Builder indexes the backup directory and resolves plans against it.
type Builder struct {
	cfg *config.Config

	// index: release → env → dbName → backup path.
	index map[string]map[string]map[string]string
	// envOrder: release → envs in discovery order.
	envOrder map[string][]string
}

// NewBuilder creates a Builder and indexes the backup directory using the
// configured filename pattern. The pattern must contain named groups
// dbName and release; the env group is optional, and files without it are
// indexed under the empty environment, which satisfies any preference.
func NewBuilder(cfg *config.Config) (*Builder, error) {
	pattern, err := regexp.Compile(cfg.User.BackupPattern)
	if err != nil {
		return nil, fmt.Errorf("backup pattern: %w", err)
	}

	groups := map[string]int{}
	for i, name := range pattern.SubexpNames() {
		if name != "" {
			groups[name] = i
		}
	}
	for _, required := range []string{"dbName", "release"} {
		if _, ok := groups[required]; !ok {
			return nil, fmt.Errorf("backup pattern: missing named group %q", required)
		}
	}

	b := &Builder{
		cfg:      cfg,
		index:    make(map[string]map[string]map[string]string),
		envOrder: make(map[string][]string),
	}

	entries, err := os.ReadDir(cfg.User.BackupDir)
	if err != nil {
		return nil, fmt.Errorf("backup directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := pattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		release := match[groups["release"]]
		db := match[groups["dbName"]]
		env := ""
		if i, ok := groups["env"]; ok {
			env = match[i]
		}
		b.record(release, env, db, filepath.Join(cfg.User.BackupDir, entry.Name()))
	}

	return b, nil
}

func (b *Builder) record(release, env, db, path string) {
	byEnv := b.index[release]
	if byEnv == nil {
		byEnv = make(map[string]map[string]string)
		b.index[release] = byEnv
	}
	if byEnv[env] == nil {
		byEnv[env] = make(map[string]string)
		b.envOrder[release] = append(b.envOrder[release], env)
	}
	byEnv[env][db] = path
}

// Build resolves the plan for the active release and preferred
// environment. Starting at the active release it looks for a complete
// backup set — one file per project database — preferring the given env,
// then trying each discovered env in order. Releases without a complete
// set are stacked and their baseline examined next; the stack unwinds
// into the plan innermost-first.
func (b *Builder) Build(active config.Release, env string) (*Plan, error) {
	var stacked []config.Release

	head := active
	for {
		if backups, foundEnv, ok := b.completeSet(head.Name, env); ok {
			// Unwind the stack: last pushed applies first.
			releases := make([]config.Release, 0, len(stacked))
			for i := len(stacked) - 1; i >= 0; i-- {
				releases = append(releases, stacked[i])
			}
			return &Plan{
				Databases:       backups,
				Releases:        releases,
				BaselineRelease: head.Name,
				BaselineEnv:     foundEnv,
			}, nil
		}

		if head.Baseline == "" {
			return nil, &NoBaselineError{Release: head.Name}
		}
		next, ok := b.cfg.Release(head.Baseline)
		if !ok {
			return nil, &config.UnknownReleaseError{Name: head.Baseline}
		}
		stacked = append(stacked, head)
		head = next
	}
}

// completeSet finds a backup set covering every project database for the
// given release, preferring preferredEnv.
func (b *Builder) completeSet(release, preferredEnv string) ([]DatabaseBackup, string, bool) {
	byEnv := b.index[release]
	if byEnv == nil {
		return nil, "", false
	}

	candidates := make([]string, 0, len(byEnv)+1)
	candidates = append(candidates, preferredEnv)
	candidates = append(candidates, b.envOrder[release]...)

	seen := map[string]bool{}
	for _, env := range candidates {
		if seen[env] {
			continue
		}
		seen[env] = true
		if backups, ok := b.setForEnv(byEnv[env]); ok {
			return backups, env, true
		}
	}
	return nil, "", false
}

func (b *Builder) setForEnv(byDB map[string]string) ([]DatabaseBackup, bool) {
	if byDB == nil {
		return nil, false
	}
	backups := make([]DatabaseBackup, 0, len(b.cfg.Project.Databases))
	for _, db := range b.cfg.Project.Databases {
		path, ok := byDB[db]
		if !ok {
			return nil, false
		}
		backups = append(backups, DatabaseBackup{Name: db, BackupPath: path})
	}
	return backups, true
}

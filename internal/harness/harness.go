package harness

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/roach88/dbbm/internal/cache"
	"github.com/roach88/dbbm/internal/config"
	"github.com/roach88/dbbm/internal/deploy"
	"github.com/roach88/dbbm/internal/state"
	"github.com/roach88/dbbm/internal/testutil"
)

// Env is one materialized scenario: a temporary project plus the
// recording collaborators.
type Env struct {
	Root   string
	Cfg    *config.Config
	Runner *testutil.FakeRunner
	Cache  cache.Cache
}

// Materialize builds the scenario into a temp directory.
func (s *Scenario) Materialize(t *testing.T) *Env {
	t.Helper()
	root := t.TempDir()
	cfg, err := s.materialize(root)
	if err != nil {
		t.Fatalf("materialize scenario %s: %v", s.Name, err)
	}
	runner := testutil.NewFakeRunner()
	return &Env{
		Root:   root,
		Cfg:    cfg,
		Runner: runner,
		Cache:  cache.NewManager(cache.Options{Root: cfg.User.Cache.RootPath, MaxSize: -1}, runner, nil),
	}
}

// Deploy runs one deployment against the environment.
func (e *Env) Deploy(opts deploy.Options) error {
	d := deploy.New(e.Cfg, opts, e.Runner, e.Cache, nil, nil, nil)
	return d.Run(context.Background())
}

// Trace renders the recorded operations with machine-specific parts
// normalized: the project root becomes $ROOT and cache entry hashes
// become <state>, since backup descriptors fold file mtimes and so
// differ between runs.
func (e *Env) Trace() string {
	var lines []string
	for _, op := range e.Runner.Ops() {
		switch op.Kind {
		case "restore", "backup":
			lines = append(lines, fmt.Sprintf("%s %s %s", op.Kind, op.DB, e.normalize(op.Path)))
		case "exec":
			lines = append(lines, fmt.Sprintf("exec %q", op.Text))
		}
	}
	return strings.Join(lines, "\n") + "\n"
}

func (e *Env) normalize(path string) string {
	path = filepath.ToSlash(path)
	root := filepath.ToSlash(e.Root)
	path = strings.ReplaceAll(path, root, "$ROOT")

	// Cache entries end in a hex state hash; blank it.
	parts := strings.Split(path, "/")
	last := parts[len(parts)-1]
	if _, err := state.Parse(last); err == nil {
		parts[len(parts)-1] = "<state>"
		path = strings.Join(parts, "/")
	}
	return path
}

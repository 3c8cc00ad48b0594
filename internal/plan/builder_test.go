package plan

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/dbbm/internal/config"
)

// testConfig wires a config by hand: two databases, a three-release
// chain R0 ← R1 ← R2, and a backup dir the tests populate.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	releases := []config.Release{
		{Name: "R0", Features: []string{"base"}},
		{Name: "R1", Baseline: "R0", Features: []string{"f1"}},
		{Name: "R2", Baseline: "R1", Features: []string{"f2"}},
	}
	return config.New(
		config.Project{Databases: []string{"app", "audit"}},
		config.User{
			BackupDir:     t.TempDir(),
			BackupPattern: `^(?P<dbName>[^.]+)\.(?P<release>[^.]+)(?:\.(?P<env>[^.]+))?\.bak$`,
			Environment:   "dev",
		},
		releases, nil, nil)
}

func dropBackup(t *testing.T, cfg *config.Config, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(cfg.User.BackupDir, name), []byte("bak"), 0o644))
}

func active(t *testing.T, cfg *config.Config, name string) config.Release {
	t.Helper()
	r, ok := cfg.Release(name)
	require.True(t, ok)
	return r
}

// TestBuild_BaselineAtActiveRelease tests the trivial walk: the active
// release already has a complete set, so nothing stacks.
func TestBuild_BaselineAtActiveRelease(t *testing.T) {
	cfg := testConfig(t)
	dropBackup(t, cfg, "app.R2.dev.bak")
	dropBackup(t, cfg, "audit.R2.dev.bak")

	b, err := NewBuilder(cfg)
	require.NoError(t, err)

	p, err := b.Build(active(t, cfg, "R2"), "dev")
	require.NoError(t, err)
	assert.Equal(t, "R2", p.BaselineRelease)
	assert.Empty(t, p.Releases)
	require.Len(t, p.Databases, 2)
	assert.Equal(t, "app", p.Databases[0].Name)
	assert.Equal(t, "audit", p.Databases[1].Name)
}

// TestBuild_WalksToBaseline tests the stacked walk R2 → R1 → R0 with
// releases unwound innermost-first.
func TestBuild_WalksToBaseline(t *testing.T) {
	cfg := testConfig(t)
	dropBackup(t, cfg, "app.R0.dev.bak")
	dropBackup(t, cfg, "audit.R0.dev.bak")

	b, err := NewBuilder(cfg)
	require.NoError(t, err)

	p, err := b.Build(active(t, cfg, "R2"), "dev")
	require.NoError(t, err)
	assert.Equal(t, "R0", p.BaselineRelease)
	require.Len(t, p.Releases, 2)
	assert.Equal(t, "R1", p.Releases[0].Name)
	assert.Equal(t, "R2", p.Releases[1].Name)
}

// TestBuild_IncompleteSetKeepsWalking tests that a release with backups
// for only some databases does not become the baseline.
func TestBuild_IncompleteSetKeepsWalking(t *testing.T) {
	cfg := testConfig(t)
	dropBackup(t, cfg, "app.R1.dev.bak") // audit missing at R1
	dropBackup(t, cfg, "app.R0.dev.bak")
	dropBackup(t, cfg, "audit.R0.dev.bak")

	b, err := NewBuilder(cfg)
	require.NoError(t, err)

	p, err := b.Build(active(t, cfg, "R2"), "dev")
	require.NoError(t, err)
	assert.Equal(t, "R0", p.BaselineRelease)
}

// TestBuild_PrefersSelectedEnv tests env preference with fallback to
// discovery order.
func TestBuild_PrefersSelectedEnv(t *testing.T) {
	cfg := testConfig(t)
	dropBackup(t, cfg, "app.R2.dev.bak")
	dropBackup(t, cfg, "audit.R2.dev.bak")
	dropBackup(t, cfg, "app.R2.prod.bak")
	dropBackup(t, cfg, "audit.R2.prod.bak")

	b, err := NewBuilder(cfg)
	require.NoError(t, err)

	p, err := b.Build(active(t, cfg, "R2"), "prod")
	require.NoError(t, err)
	assert.Equal(t, "prod", p.BaselineEnv)

	// Preferred env incomplete: fall back to whichever env is complete.
	cfg2 := testConfig(t)
	dropBackup(t, cfg2, "app.R2.dev.bak")
	dropBackup(t, cfg2, "audit.R2.dev.bak")
	dropBackup(t, cfg2, "app.R2.prod.bak") // prod incomplete

	b2, err := NewBuilder(cfg2)
	require.NoError(t, err)
	p2, err := b2.Build(active(t, cfg2, "R2"), "prod")
	require.NoError(t, err)
	assert.Equal(t, "dev", p2.BaselineEnv)
}

// TestBuild_EnvAgnosticBackups tests files whose pattern has no env
// segment: they satisfy any preferred env.
func TestBuild_EnvAgnosticBackups(t *testing.T) {
	cfg := testConfig(t)
	dropBackup(t, cfg, "app.R2.bak")
	dropBackup(t, cfg, "audit.R2.bak")

	b, err := NewBuilder(cfg)
	require.NoError(t, err)

	p, err := b.Build(active(t, cfg, "R2"), "prod")
	require.NoError(t, err)
	assert.Equal(t, "R2", p.BaselineRelease)
	assert.Empty(t, p.BaselineEnv)
}

// TestBuild_NoBaseline tests exhausting the DAG.
func TestBuild_NoBaseline(t *testing.T) {
	cfg := testConfig(t)

	b, err := NewBuilder(cfg)
	require.NoError(t, err)

	_, err = b.Build(active(t, cfg, "R2"), "dev")
	var noBase *NoBaselineError
	require.ErrorAs(t, err, &noBase)
	assert.Equal(t, "R0", noBase.Release)
}

// TestBuild_UnknownBaselineReference tests a dangling baseline name.
func TestBuild_UnknownBaselineReference(t *testing.T) {
	base := testConfig(t)
	releases := append([]config.Release{}, base.Releases...)
	releases = append(releases, config.Release{Name: "R3", Baseline: "ghost"})
	cfg := config.New(base.Project, base.User, releases, nil, nil)

	b, err := NewBuilder(cfg)
	require.NoError(t, err)

	_, err = b.Build(active(t, cfg, "R3"), "dev")
	var unknown *config.UnknownReleaseError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "ghost", unknown.Name)
}

// TestNewBuilder_PatternValidation tests the named-group requirement.
func TestNewBuilder_PatternValidation(t *testing.T) {
	cfg := testConfig(t)
	cfg.User.BackupPattern = `^(?P<dbName>[^.]+)\.bak$` // release group missing

	_, err := NewBuilder(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "release")
}

// Package harness runs whole-deployment scenarios for tests. A scenario
// is a YAML fixture describing databases, baseline backups, releases,
// and features; the harness materializes it into a temporary project,
// deploys it with a recording SQL runner, and renders the recorded
// operations as a normalized trace for golden comparison.
package harness

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/roach88/dbbm/internal/config"
)

// Scenario is one YAML fixture.
type Scenario struct {
	Name        string        `yaml:"name"`
	Databases   []string      `yaml:"databases"`
	Environment string        `yaml:"environment"`
	Backups     []BackupSpec  `yaml:"backups"`
	Releases    []ReleaseSpec `yaml:"releases"`
	Features    []FeatureSpec `yaml:"features"`
	Deploy      DeploySpec    `yaml:"deploy"`
}

// BackupSpec places one baseline backup file.
type BackupSpec struct {
	DB      string `yaml:"db"`
	Release string `yaml:"release"`
	Env     string `yaml:"env"`
}

// ReleaseSpec is one release of the scenario's DAG.
type ReleaseSpec struct {
	Name     string   `yaml:"name"`
	Baseline string   `yaml:"baseline"`
	Features []string `yaml:"features"`
}

// FeatureSpec is one feature: named scripts executed by a sql task.
type FeatureSpec struct {
	Name    string            `yaml:"name"`
	Scripts map[string]string `yaml:"scripts"`
}

// DeploySpec selects what to deploy.
type DeploySpec struct {
	Release string `yaml:"release"`
}

// LoadScenario reads one YAML fixture.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", path, err)
	}
	if s.Name == "" {
		return nil, fmt.Errorf("scenario %s: missing name", path)
	}
	return &s, nil
}

// materialize writes the scenario's files under root and assembles the
// configuration.
func (s *Scenario) materialize(root string) (*config.Config, error) {
	backupDir := filepath.Join(root, "backups")
	for _, b := range s.Backups {
		name := fmt.Sprintf("%s.%s.bak", b.DB, b.Release)
		if b.Env != "" {
			name = fmt.Sprintf("%s.%s.%s.bak", b.DB, b.Release, b.Env)
		}
		if err := writeFile(filepath.Join(backupDir, name), "backup of "+b.DB+" at "+b.Release); err != nil {
			return nil, err
		}
	}

	featDir := filepath.Join(root, "features")
	features := make(map[string]config.Feature, len(s.Features))
	for _, f := range s.Features {
		for name, content := range f.Scripts {
			if err := writeFile(filepath.Join(featDir, "scripts", f.Name, name), content); err != nil {
				return nil, err
			}
		}
		features[f.Name] = config.Feature{
			Name:    f.Name,
			BaseDir: featDir,
			Recipe: []config.TaskConfig{
				{Kind: "sql", Params: map[string]any{
					"path":      "scripts/" + f.Name,
					"templates": map[string]any{"item": ":r $$(file)"},
				}},
			},
		}
	}

	releases := make([]config.Release, 0, len(s.Releases))
	for _, r := range s.Releases {
		releases = append(releases, config.Release{
			Name:     r.Name,
			Baseline: r.Baseline,
			Features: r.Features,
		})
	}

	env := s.Environment
	if env == "" {
		env = "dev"
	}

	cfg := config.New(
		config.Project{Databases: s.Databases, Root: root},
		config.User{
			BackupDir:      backupDir,
			BackupPattern:  `^(?P<dbName>[^.]+)\.(?P<release>[^.]+)(?:\.(?P<env>[^.]+))?\.bak$`,
			Environment:    env,
			DefaultRelease: s.Deploy.Release,
			Connection:     "server",
			Cache: config.CacheSettings{
				RootPath:     filepath.Join(root, "cache"),
				MaxCacheSize: -1,
			},
		},
		releases, features, nil)
	return cfg, nil
}

func writeFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

// Package config loads and validates the configuration tree that describes
// a deployment project: the project file, the user file, the release list,
// and the feature and task files discovered by glob. JSON documents are
// validated against embedded CUE schemas before decoding, so shape errors
// carry schema positions instead of surfacing as zero values downstream.
package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// ProjectFileName is the marker file found by walking up from the
// working directory.
const ProjectFileName = "dbbm.json"

// UserFileName sits beside the project file and carries the
// machine-local settings.
const UserFileName = "dbbm.user.json"

// Project is the shared, checked-in half of the configuration.
type Project struct {
	// Databases lists the deployed databases in declaration order.
	// The order is significant: plans, fingerprints, and cache lookups
	// all iterate it as-is.
	Databases []string `json:"databases"`
	// Releases is the path of the release list, relative to Root.
	Releases string `json:"releases"`
	// Features is a glob for feature files, relative to Root.
	Features string `json:"features"`
	// Tasks is a glob for task definition files, relative to Root.
	Tasks string `json:"tasks"`

	// Root is the directory holding the project file.
	Root string `json:"-"`
}

// User is the machine-local half: where backups live, how to reach the
// server, and cache tuning.
type User struct {
	// BackupDir holds the baseline backup files.
	BackupDir string `mapstructure:"backupDir"`
	// BackupPattern is a regexp over backup file names. It must contain
	// named groups dbName and release; an env group is optional, and
	// files without one count as environment-agnostic.
	BackupPattern string `mapstructure:"backupPattern"`
	// Environment selects the preferred env for baseline resolution and
	// filters environment-suffixed SQL scripts.
	Environment string `mapstructure:"environment"`
	// DefaultRelease is deployed when no -r flag is given.
	DefaultRelease string `mapstructure:"defaultRelease"`
	// Connection is the server the deployment targets.
	Connection string `mapstructure:"connection"`
	// Cache tunes the backup cache.
	Cache CacheSettings `mapstructure:"cache"`
	// Beeps maps tone names (start, success, error) to bell patterns.
	Beeps map[string]string `mapstructure:"beeps"`
}

// CacheSettings tunes the backup cache.
type CacheSettings struct {
	// RootPath is the cache directory. Empty disables caching.
	RootPath string `mapstructure:"rootPath"`
	// MaxCacheSize bounds the live cache in bytes; negative means
	// unbounded.
	MaxCacheSize int64 `mapstructure:"maxCacheSize"`
	// AutoGC collects silently before each cache add.
	AutoGC bool `mapstructure:"autoGC"`
	// MinDeployTime is the execution time below which a state is not
	// worth caching.
	MinDeployTime time.Duration `mapstructure:"minDeployTime"`
	// Compress requests backup compression.
	Compress bool `mapstructure:"compress"`
}

// Release is one entry of the release list. A release without a baseline
// is a root of the release DAG.
type Release struct {
	Name     string   `json:"name"`
	Baseline string   `json:"baseline,omitempty"`
	Features []string `json:"features"`
}

// Feature is one feature file: a named, ordered recipe of tasks.
type Feature struct {
	Name   string       `json:"name"`
	Recipe []TaskConfig `json:"recipe"`

	// BaseDir is the directory holding the feature file; task parameter
	// paths resolve against it.
	BaseDir string `json:"-"`
}

// TaskConfig is one recipe step: a task kind plus its parameters.
// The JSON form is a single-key object, {"copy": {...}}.
type TaskConfig struct {
	Kind   string
	Params map[string]any
}

// UnmarshalJSON decodes the single-key object form.
func (tc *TaskConfig) UnmarshalJSON(data []byte) error {
	var raw map[string]map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 1 {
		return fmt.Errorf("recipe step must have exactly one task kind, got %d", len(raw))
	}
	for kind, params := range raw {
		tc.Kind = kind
		tc.Params = params
	}
	return nil
}

// MarshalJSON re-encodes the single-key object form.
func (tc TaskConfig) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]map[string]any{tc.Kind: tc.Params})
}

// TaskDef is a user-defined task kind: named commands composed of
// built-in (or further user-defined) steps, plus defined variables and
// required parameters.
type TaskDef struct {
	Name     string                  `json:"name"`
	Define   map[string]string       `json:"define,omitempty"`
	Requires []string                `json:"requires,omitempty"`
	Commands map[string][]TaskConfig `json:"commands"`
}

// Config is the fully resolved tree.
type Config struct {
	Project  Project
	User     User
	Releases []Release
	Features map[string]Feature
	TaskDefs map[string]TaskDef

	releaseByName map[string]Release
}

// New assembles a Config from already-decoded parts and builds the name
// indexes. Load is the usual entry point; New serves tests and tools that
// construct configuration programmatically.
func New(p Project, u User, releases []Release, features map[string]Feature, defs map[string]TaskDef) *Config {
	c := &Config{
		Project:       p,
		User:          u,
		Releases:      releases,
		Features:      features,
		TaskDefs:      defs,
		releaseByName: make(map[string]Release, len(releases)),
	}
	if c.Features == nil {
		c.Features = make(map[string]Feature)
	}
	if c.TaskDefs == nil {
		c.TaskDefs = make(map[string]TaskDef)
	}
	for _, r := range releases {
		c.releaseByName[r.Name] = r
	}
	return c
}

// Release looks up a release by name.
func (c *Config) Release(name string) (Release, bool) {
	r, ok := c.releaseByName[name]
	return r, ok
}

// ActiveRelease resolves the release to deploy: the override when given,
// otherwise the user default.
func (c *Config) ActiveRelease(override string) (Release, error) {
	name := override
	if name == "" {
		name = c.User.DefaultRelease
	}
	if name == "" {
		return Release{}, fmt.Errorf("no release selected: set defaultRelease or pass --release")
	}
	r, ok := c.Release(name)
	if !ok {
		return Release{}, &UnknownReleaseError{Name: name}
	}
	return r, nil
}

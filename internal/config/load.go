package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FindProject walks upward from dir looking for the project file.
// Returns the directory containing it, or ErrNoProject.
func FindProject(dir string) (string, error) {
	cur, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(cur, ProjectFileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return cur, nil
		}
		parent := filepath.Dir(cur)
		if parent == cur {
			return "", ErrNoProject
		}
		cur = parent
	}
}

// Load reads and resolves the full configuration tree rooted at the
// project directory: project file, user file, release list, feature
// files, and task definition files. Every document is schema-validated
// before decoding; reference errors (duplicate features, bad globs)
// surface as *ParseError.
//
// Feature references from releases are NOT resolved here — the planner
// checks them per deployed release, so an unrelated broken release does
// not block a deployment.
func Load(root string) (*Config, error) {
	cfg := &Config{
		Features: make(map[string]Feature),
		TaskDefs: make(map[string]TaskDef),
	}

	if err := loadProject(root, &cfg.Project); err != nil {
		return nil, err
	}

	user, err := LoadUser(root)
	if err != nil {
		return nil, err
	}
	cfg.User = user

	if err := cfg.loadReleases(); err != nil {
		return nil, err
	}
	if err := cfg.loadFeatures(); err != nil {
		return nil, err
	}
	if err := cfg.loadTaskDefs(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadProject(root string, p *Project) error {
	path := filepath.Join(root, ProjectFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return &ParseError{Path: path, Err: err}
	}
	if err := validateJSON(path, "#Project", data); err != nil {
		return err
	}
	if err := json.Unmarshal(data, p); err != nil {
		return &ParseError{Path: path, Err: err}
	}
	p.Root = root
	return nil
}

func (c *Config) loadReleases() error {
	path := filepath.Join(c.Project.Root, c.Project.Releases)
	data, err := os.ReadFile(path)
	if err != nil {
		return &ParseError{Path: path, Err: err}
	}
	if err := validateJSON(path, "#Releases", data); err != nil {
		return err
	}
	if err := json.Unmarshal(data, &c.Releases); err != nil {
		return &ParseError{Path: path, Err: err}
	}

	c.releaseByName = make(map[string]Release, len(c.Releases))
	for _, r := range c.Releases {
		if _, dup := c.releaseByName[r.Name]; dup {
			return &ParseError{Path: path, Err: fmt.Errorf("duplicate release %q", r.Name)}
		}
		c.releaseByName[r.Name] = r
	}
	return nil
}

func (c *Config) loadFeatures() error {
	paths, err := filepath.Glob(filepath.Join(c.Project.Root, c.Project.Features))
	if err != nil {
		return &ParseError{Path: c.Project.Features, Err: err}
	}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return &ParseError{Path: path, Err: err}
		}
		if err := validateJSON(path, "#Feature", data); err != nil {
			return err
		}
		var f Feature
		if err := json.Unmarshal(data, &f); err != nil {
			return &ParseError{Path: path, Err: err}
		}
		f.BaseDir = filepath.Dir(path)
		if _, dup := c.Features[f.Name]; dup {
			return &ParseError{Path: path, Err: fmt.Errorf("duplicate feature %q", f.Name)}
		}
		c.Features[f.Name] = f
	}
	return nil
}

func (c *Config) loadTaskDefs() error {
	if c.Project.Tasks == "" {
		return nil
	}
	paths, err := filepath.Glob(filepath.Join(c.Project.Root, c.Project.Tasks))
	if err != nil {
		return &ParseError{Path: c.Project.Tasks, Err: err}
	}
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return &ParseError{Path: path, Err: err}
		}
		if err := validateJSON(path, "#Task", data); err != nil {
			return err
		}
		var td TaskDef
		if err := json.Unmarshal(data, &td); err != nil {
			return &ParseError{Path: path, Err: err}
		}
		if _, dup := c.TaskDefs[td.Name]; dup {
			return &ParseError{Path: path, Err: fmt.Errorf("duplicate task %q", td.Name)}
		}
		c.TaskDefs[td.Name] = td
	}
	return nil
}

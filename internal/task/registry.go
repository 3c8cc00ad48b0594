package task

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/roach88/dbbm/internal/config"
	"github.com/roach88/dbbm/internal/sqlrunner"
	"github.com/roach88/dbbm/internal/tree"
)

// Context is what a task factory needs to turn parameters into a
// transform: the substitution variables, the feature base directory that
// relative paths resolve against, and the execution environment.
type Context struct {
	Vars    *Vars
	BaseDir string
	Env     string
	Conn    string
	Runner  sqlrunner.Runner
}

// abs resolves a parameter path against the feature base directory.
func (tc *Context) abs(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(tc.BaseDir, path)
}

// UnknownTaskError means a recipe referenced a task kind that is neither
// built in nor defined by a task file.
type UnknownTaskError struct {
	Kind string
}

func (e *UnknownTaskError) Error() string {
	return fmt.Sprintf("unknown task kind %q", e.Kind)
}

// Factory builds a transform from expanded parameters.
type Factory func(p Params, tc *Context) (tree.Transform, error)

// Registry maps task kinds to factories. Built-in kinds (copy, sql) are
// registered at construction; user-defined kinds come from task files
// and expand recursively into built-in steps.
type Registry struct {
	factories map[string]Factory
	defs      map[string]config.TaskDef
}

// NewRegistry creates a registry with the built-in kinds plus the given
// user task definitions.
func NewRegistry(defs map[string]config.TaskDef) *Registry {
	r := &Registry{
		factories: make(map[string]Factory),
		defs:      defs,
	}
	r.Register("copy", newCopy)
	r.Register("sql", newSQL)
	return r
}

// Register installs a factory for a kind, replacing any previous one.
func (r *Registry) Register(kind string, f Factory) {
	r.factories[kind] = f
}

// Build resolves one recipe step into transforms. A built-in kind yields
// one transform; a user-defined kind expands its deploy command, with the
// step parameters and the definition's define block layered into the
// variable scope.
func (r *Registry) Build(step config.TaskConfig, tc *Context) ([]tree.Transform, error) {
	return r.build(step, tc, 0)
}

const maxTaskDepth = 16

func (r *Registry) build(step config.TaskConfig, tc *Context, depth int) ([]tree.Transform, error) {
	if depth > maxTaskDepth {
		return nil, fmt.Errorf("task %q: definitions nested deeper than %d", step.Kind, maxTaskDepth)
	}

	if factory, ok := r.factories[step.Kind]; ok {
		t, err := factory(Params(step.Params), tc)
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", step.Kind, err)
		}
		return []tree.Transform{t}, nil
	}

	def, ok := r.defs[step.Kind]
	if !ok {
		return nil, &UnknownTaskError{Kind: step.Kind}
	}

	scope, err := r.taskScope(def, Params(step.Params), tc)
	if err != nil {
		return nil, fmt.Errorf("task %q: %w", step.Kind, err)
	}
	sub := *tc
	sub.Vars = scope

	var out []tree.Transform
	for _, inner := range def.Commands["deploy"] {
		built, err := r.build(inner, &sub, depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, built...)
	}
	return out, nil
}

// taskScope layers a definition's variables over the caller's: required
// parameters must be present in the step, define entries are expanded in
// the resulting scope.
func (r *Registry) taskScope(def config.TaskDef, p Params, tc *Context) (*Vars, error) {
	extra := make(map[string]string)
	for key := range p {
		val, err := p.String(tc, key, "")
		if err != nil {
			return nil, err
		}
		extra[key] = val
	}
	for _, req := range def.Requires {
		if _, ok := extra[req]; !ok {
			return nil, fmt.Errorf("missing required parameter %q", req)
		}
	}
	scope := tc.Vars.With(extra)
	for key, raw := range def.Define {
		val, err := scope.Expand(raw)
		if err != nil {
			return nil, err
		}
		scope = scope.With(map[string]string{key: val})
	}
	return scope, nil
}

// Params is the raw parameter map of one recipe step.
type Params map[string]any

// String extracts a parameter, joins list values with newlines, and
// expands variables. Returns def when the key is absent.
func (p Params) String(tc *Context, key, def string) (string, error) {
	raw, ok := p[key]
	if !ok {
		return def, nil
	}
	var joined string
	switch v := raw.(type) {
	case string:
		joined = v
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return "", fmt.Errorf("parameter %q: list items must be strings", key)
			}
			parts = append(parts, s)
		}
		joined = strings.Join(parts, "\n")
	default:
		return "", fmt.Errorf("parameter %q: expected string or list of strings", key)
	}
	return tc.Vars.Expand(joined)
}

// Bool extracts a boolean parameter, defaulting when absent.
func (p Params) Bool(key string, def bool) (bool, error) {
	raw, ok := p[key]
	if !ok {
		return def, nil
	}
	b, ok := raw.(bool)
	if !ok {
		return false, fmt.Errorf("parameter %q: expected a boolean", key)
	}
	return b, nil
}

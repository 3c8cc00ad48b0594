package task

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/roach88/dbbm/internal/logx"
	"github.com/roach88/dbbm/internal/sqlrunner"
	"github.com/roach88/dbbm/internal/state"
	"github.com/roach88/dbbm/internal/tree"
)

// SQL renders a script from matched files and templates, then executes
// it and/or writes it out. The fingerprint covers every included script
// file plus the fully rendered text, so template changes re-execute too.
//
// Script files may carry an environment in their name, captured by an
// `env` group in the regex: such scripts are included only when the
// capture is empty or equals the active environment.
type SQL struct {
	Path    string
	Pattern *regexp.Regexp
	Execute bool
	Output  string

	TemplatePre  string
	TemplateItem string
	TemplatePost string

	Env    string
	Conn   string
	Runner sqlrunner.Runner
}

func newSQL(p Params, tc *Context) (tree.Transform, error) {
	path, err := p.String(tc, "path", "")
	if err != nil {
		return nil, err
	}
	if path == "" {
		return nil, fmt.Errorf("sql requires path")
	}
	raw, err := p.String(tc, "regex", `.*\.sql$`)
	if err != nil {
		return nil, err
	}
	pattern, err := regexp.Compile(raw)
	if err != nil {
		return nil, fmt.Errorf("sql regex: %w", err)
	}
	execute, err := p.Bool("execute", true)
	if err != nil {
		return nil, err
	}
	output, err := p.String(tc, "output", "")
	if err != nil {
		return nil, err
	}

	templates, _ := p["templates"].(map[string]any)
	tmpl := func(key string) (string, error) {
		raw, ok := templates[key]
		if !ok {
			return "", nil
		}
		return Params{key: raw}.String(tc, key, "")
	}
	pre, err := tmpl("pre")
	if err != nil {
		return nil, err
	}
	item, err := tmpl("item")
	if err != nil {
		return nil, err
	}
	if item == "" {
		item = "$(file)"
	}
	post, err := tmpl("post")
	if err != nil {
		return nil, err
	}

	s := &SQL{
		Path:         tc.abs(path),
		Pattern:      pattern,
		Execute:      execute,
		TemplatePre:  pre,
		TemplateItem: item,
		TemplatePost: post,
		Env:          tc.Env,
		Conn:         tc.Conn,
		Runner:       tc.Runner,
	}
	if output != "" {
		s.Output = tc.abs(output)
	}
	return s, nil
}

// Description implements tree.Transform.
func (s *SQL) Description() string {
	return fmt.Sprintf("sql %s", s.Path)
}

// CalculateTransform renders without side effects.
func (s *SQL) CalculateTransform(in state.Hash) (state.Hash, error) {
	out, _, err := s.render(in)
	return out, err
}

// Requirements implements tree.Transform.
func (s *SQL) Requirements(sink *tree.ReqSink) {
	sink.RequireDir(s.Path)
	if s.Execute && s.Runner == nil {
		sink.Failf("sql %s: no script runner configured", s.Path)
	}
}

// RunTransform writes the rendered script when output is set, then
// executes it when execute is on.
func (s *SQL) RunTransform(ctx context.Context, in state.Hash, dryRun bool, log *logx.Log) (state.Hash, error) {
	out, script, err := s.render(in)
	if err != nil {
		return state.Hash{}, err
	}

	if dryRun {
		verb := "render"
		if s.Execute {
			verb = "execute"
		}
		log.Printf("would %s script from %s (%d bytes)", verb, s.Path, len(script))
		return out, nil
	}

	if s.Output != "" {
		if err := os.MkdirAll(filepath.Dir(s.Output), 0o755); err != nil {
			return state.Hash{}, fmt.Errorf("sql output: %w", err)
		}
		if err := os.WriteFile(s.Output, []byte(script), 0o644); err != nil {
			return state.Hash{}, fmt.Errorf("sql output: %w", err)
		}
		log.Printf("wrote rendered script to %s", s.Output)
	}

	if s.Execute {
		log.Printf("executing script from %s", s.Path)
		if err := s.Runner.ExecScript(ctx, s.Conn, script); err != nil {
			return state.Hash{}, err
		}
	}

	return out, nil
}

// render builds the script text and the output hash in one pass: each
// included file contributes its item line to the text and its canonical
// encoding to the hash, then the whole rendered text is folded last.
func (s *SQL) render(in state.Hash) (state.Hash, string, error) {
	files, err := enumerate(s.Path, s.Pattern)
	if err != nil {
		return state.Hash{}, "", err
	}

	tr := state.NewTransformer(in)
	defer tr.Discard()

	var segments []string
	if s.TemplatePre != "" {
		segments = append(segments, s.TemplatePre)
	}
	for _, f := range files {
		if !s.included(f.base) {
			continue
		}
		item, err := (&Vars{Values: map[string]string{"file": f.rel}}).Expand(s.TemplateItem)
		if err != nil {
			return state.Hash{}, "", fmt.Errorf("sql item template: %w", err)
		}
		segments = append(segments, item)
		if err := tr.TransformFileSmart(f.abs, f.rel); err != nil {
			return state.Hash{}, "", err
		}
	}
	if s.TemplatePost != "" {
		segments = append(segments, s.TemplatePost)
	}

	script := ""
	if len(segments) > 0 {
		script = strings.Join(segments, "\n") + "\n"
	}
	tr.Transform([]byte(script))
	return tr.Result(), script, nil
}

// included applies the environment filter to one base name.
func (s *SQL) included(base string) bool {
	idx := s.Pattern.SubexpIndex("env")
	if idx < 0 {
		return true
	}
	match := s.Pattern.FindStringSubmatch(base)
	if match == nil {
		return true
	}
	env := match[idx]
	return env == "" || env == s.Env
}

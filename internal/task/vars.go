// Package task implements the leaf operations a feature recipe is made
// of: the task registry that maps configured kinds to transforms, the
// variable substitution applied to task parameters, and the concrete
// copy, sql, and restore transforms.
package task

import (
	"fmt"
	"os"
	"strings"
)

// Vars resolves variable references in task parameter strings:
//
//	$(name)    a context or task variable
//	$(e:name)  a user environment variable
//	$(f:name)  a feature attribute
//	$$(name)   a single-level escape: expands to the literal $(name),
//	           which the task evaluates at execution time
type Vars struct {
	// Values holds context and task variables.
	Values map[string]string
	// Feature holds feature attributes, referenced as $(f:name).
	Feature map[string]string
	// LookupEnv resolves $(e:name). Nil means os.LookupEnv.
	LookupEnv func(string) (string, bool)
}

// With returns a copy of v with extra values layered on top.
func (v *Vars) With(extra map[string]string) *Vars {
	merged := make(map[string]string, len(v.Values)+len(extra))
	for k, val := range v.Values {
		merged[k] = val
	}
	for k, val := range extra {
		merged[k] = val
	}
	return &Vars{Values: merged, Feature: v.Feature, LookupEnv: v.LookupEnv}
}

// Expand substitutes every variable reference in s. Unknown references
// are errors; a malformed reference (unclosed parenthesis) is too.
func (v *Vars) Expand(s string) (string, error) {
	var out strings.Builder
	for i := 0; i < len(s); {
		// Escape: $$(name) emits $(name) untouched.
		if strings.HasPrefix(s[i:], "$$(") {
			end := strings.IndexByte(s[i+3:], ')')
			if end < 0 {
				return "", fmt.Errorf("unclosed variable reference at %q", s[i:])
			}
			out.WriteString(s[i+1 : i+3+end+1])
			i += 3 + end + 1
			continue
		}
		if strings.HasPrefix(s[i:], "$(") {
			end := strings.IndexByte(s[i+2:], ')')
			if end < 0 {
				return "", fmt.Errorf("unclosed variable reference at %q", s[i:])
			}
			name := s[i+2 : i+2+end]
			val, err := v.resolve(name)
			if err != nil {
				return "", err
			}
			out.WriteString(val)
			i += 2 + end + 1
			continue
		}
		out.WriteByte(s[i])
		i++
	}
	return out.String(), nil
}

func (v *Vars) resolve(name string) (string, error) {
	switch {
	case strings.HasPrefix(name, "e:"):
		lookup := v.LookupEnv
		if lookup == nil {
			lookup = os.LookupEnv
		}
		val, ok := lookup(name[2:])
		if !ok {
			return "", fmt.Errorf("undefined environment variable $(%s)", name)
		}
		return val, nil
	case strings.HasPrefix(name, "f:"):
		val, ok := v.Feature[name[2:]]
		if !ok {
			return "", fmt.Errorf("undefined feature attribute $(%s)", name)
		}
		return val, nil
	default:
		val, ok := v.Values[name]
		if !ok {
			return "", fmt.Errorf("undefined variable $(%s)", name)
		}
		return val, nil
	}
}

package task

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/roach88/dbbm/internal/logx"
	"github.com/roach88/dbbm/internal/state"
	"github.com/roach88/dbbm/internal/tree"
)

// Copy mirrors matching files from one directory into another. The
// fingerprint covers every matched source file — name, length, content —
// so any change re-executes from here.
type Copy struct {
	From    string
	To      string
	Pattern *regexp.Regexp
}

func newCopy(p Params, tc *Context) (tree.Transform, error) {
	from, err := p.String(tc, "from", "")
	if err != nil {
		return nil, err
	}
	to, err := p.String(tc, "to", "")
	if err != nil {
		return nil, err
	}
	if from == "" || to == "" {
		return nil, fmt.Errorf("copy requires from and to")
	}
	raw, err := p.String(tc, "regex", ".*")
	if err != nil {
		return nil, err
	}
	pattern, err := regexp.Compile(raw)
	if err != nil {
		return nil, fmt.Errorf("copy regex: %w", err)
	}
	return &Copy{From: tc.abs(from), To: tc.abs(to), Pattern: pattern}, nil
}

// Description implements tree.Transform.
func (c *Copy) Description() string {
	return fmt.Sprintf("copy %s -> %s", c.From, c.To)
}

// CalculateTransform folds every matched source file into the hash.
func (c *Copy) CalculateTransform(in state.Hash) (state.Hash, error) {
	files, err := enumerate(c.From, c.Pattern)
	if err != nil {
		return state.Hash{}, err
	}
	tr := state.NewTransformer(in)
	defer tr.Discard()
	for _, f := range files {
		if err := tr.TransformFileSmart(f.abs, f.rel); err != nil {
			return state.Hash{}, err
		}
	}
	return tr.Result(), nil
}

// Requirements implements tree.Transform.
func (c *Copy) Requirements(sink *tree.ReqSink) {
	sink.RequireDir(c.From)
}

// RunTransform copies matched files, skipping destinations whose
// modification time already equals the source's. Read-only destinations
// are made writable before the overwrite, and copies carry the source
// mtime forward so the skip works on the next run.
func (c *Copy) RunTransform(ctx context.Context, in state.Hash, dryRun bool, log *logx.Log) (state.Hash, error) {
	out, err := c.CalculateTransform(in)
	if err != nil {
		return state.Hash{}, err
	}

	files, err := enumerate(c.From, c.Pattern)
	if err != nil {
		return state.Hash{}, err
	}

	if dryRun {
		log.Printf("would copy %d file(s) from %s to %s", len(files), c.From, c.To)
		return out, nil
	}

	if err := os.MkdirAll(c.To, 0o755); err != nil {
		return state.Hash{}, fmt.Errorf("copy: %w", err)
	}

	copied := 0
	for _, f := range files {
		dest := filepath.Join(c.To, filepath.FromSlash(f.rel))
		srcInfo, err := os.Stat(f.abs)
		if err != nil {
			return state.Hash{}, fmt.Errorf("copy %s: %w", f.rel, err)
		}
		if destInfo, err := os.Stat(dest); err == nil && destInfo.ModTime().Equal(srcInfo.ModTime()) {
			continue
		}
		if err := copyFile(f.abs, dest, srcInfo); err != nil {
			return state.Hash{}, fmt.Errorf("copy %s: %w", f.rel, err)
		}
		copied++
	}
	log.Printf("copied %d of %d file(s) to %s", copied, len(files), c.To)
	return out, nil
}

func copyFile(src, dest string, srcInfo os.FileInfo) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	// A read-only destination would make the overwrite fail.
	if info, err := os.Stat(dest); err == nil && info.Mode().Perm()&0o200 == 0 {
		if err := os.Chmod(dest, info.Mode().Perm()|0o200); err != nil {
			return err
		}
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chtimes(dest, srcInfo.ModTime(), srcInfo.ModTime())
}

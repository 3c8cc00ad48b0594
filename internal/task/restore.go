package task

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"sort"

	"github.com/roach88/dbbm/internal/logx"
	"github.com/roach88/dbbm/internal/sqlrunner"
	"github.com/roach88/dbbm/internal/state"
	"github.com/roach88/dbbm/internal/tree"
)

// DatabaseBackup pairs a database with the backup file that restores it.
type DatabaseBackup struct {
	Name       string
	BackupPath string
}

// RestoreDatabases restores every listed database in order. It serves
// two roles with one fingerprint rule:
//
//   - baseline restore: the fingerprint mixes each database name with a
//     compact descriptor of its backup file (path, size, mtime), so a
//     refreshed backup changes the state;
//   - cache restore: ResultHash pins the output to the state the cached
//     backups were taken at, since that state is by construction what
//     restoring them reproduces.
type RestoreDatabases struct {
	Conn      string
	Databases []DatabaseBackup
	// ResultHash, when set, is returned as the output hash directly.
	ResultHash *state.Hash
	Runner     sqlrunner.Runner
}

// NewCacheRestore builds the transform the Calculate pass substitutes
// for a fully cached state.
func NewCacheRestore(conn string, runner sqlrunner.Runner) func(h state.Hash, backupByDB map[string]string) tree.Transform {
	return func(h state.Hash, backupByDB map[string]string) tree.Transform {
		names := make([]string, 0, len(backupByDB))
		for name := range backupByDB {
			names = append(names, name)
		}
		sort.Strings(names)
		dbs := make([]DatabaseBackup, 0, len(names))
		for _, name := range names {
			dbs = append(dbs, DatabaseBackup{Name: name, BackupPath: backupByDB[name]})
		}
		return &RestoreDatabases{Conn: conn, Databases: dbs, ResultHash: &h, Runner: runner}
	}
}

// Description implements tree.Transform.
func (r *RestoreDatabases) Description() string {
	return fmt.Sprintf("restore %d database(s)", len(r.Databases))
}

// CalculateTransform implements tree.Transform.
func (r *RestoreDatabases) CalculateTransform(in state.Hash) (state.Hash, error) {
	if r.ResultHash != nil {
		return *r.ResultHash, nil
	}

	tr := state.NewTransformer(in)
	defer tr.Discard()
	for _, db := range r.Databases {
		info, err := os.Stat(db.BackupPath)
		if err != nil {
			return state.Hash{}, fmt.Errorf("backup %s: %w", db.BackupPath, err)
		}
		tr.TransformString(db.Name)
		tr.Transform([]byte{0x00})
		tr.TransformString(state.NormalizeRelName(db.BackupPath))
		tr.Transform([]byte{0x00})
		var meta [16]byte
		binary.BigEndian.PutUint64(meta[:8], uint64(info.Size()))
		binary.BigEndian.PutUint64(meta[8:], uint64(info.ModTime().UnixNano()))
		tr.Transform(meta[:])
	}
	return tr.Result(), nil
}

// Requirements implements tree.Transform.
func (r *RestoreDatabases) Requirements(sink *tree.ReqSink) {
	for _, db := range r.Databases {
		sink.RequireFile(db.BackupPath)
	}
	if r.Runner == nil {
		sink.Failf("restore: no sql runner configured")
	}
}

// RunTransform restores each database in order.
func (r *RestoreDatabases) RunTransform(ctx context.Context, in state.Hash, dryRun bool, log *logx.Log) (state.Hash, error) {
	out, err := r.CalculateTransform(in)
	if err != nil {
		return state.Hash{}, err
	}
	for _, db := range r.Databases {
		if dryRun {
			log.Printf("would restore %s from %s", db.Name, db.BackupPath)
			continue
		}
		log.Printf("restoring %s from %s", db.Name, db.BackupPath)
		if err := r.Runner.RestoreDatabase(ctx, r.Conn, db.Name, db.BackupPath); err != nil {
			return state.Hash{}, fmt.Errorf("restore %s: %w", db.Name, err)
		}
	}
	return out, nil
}

// Compile-time interface checks for the concrete transforms.
var (
	_ tree.Transform = (*Copy)(nil)
	_ tree.Transform = (*SQL)(nil)
	_ tree.Transform = (*RestoreDatabases)(nil)
)

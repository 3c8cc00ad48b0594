// Package testutil provides deterministic doubles for the deployment
// engine's external collaborators.
package testutil

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/roach88/dbbm/internal/sqlrunner"
)

// Op is one recorded call against the FakeRunner.
type Op struct {
	Kind string // "restore", "backup", "exec"
	DB   string
	Path string // backup path for restore/backup
	Text string // script text for exec
}

// FakeRunner implements sqlrunner.Runner by recording calls. Backups
// materialize as real files so the cache manager's existence checks and
// size accounting behave as they do in production.
//
// Thread-safety: all methods are safe for concurrent use via internal
// mutex, although the engine itself is single-threaded.
type FakeRunner struct {
	mu  sync.Mutex
	ops []Op

	// FailExec, when non-nil, is returned by ExecScript.
	FailExec error
	// FailBackup, when non-nil, is returned by BackupDatabase and no
	// backup file is written.
	FailBackup error
	// BackupSize is the size in bytes of fabricated backup files.
	// Zero means a small constant payload.
	BackupSize int
}

// NewFakeRunner creates an empty recording runner.
func NewFakeRunner() *FakeRunner {
	return &FakeRunner{}
}

// Ops returns a copy of the recorded calls in order.
func (r *FakeRunner) Ops() []Op {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Op, len(r.ops))
	copy(out, r.ops)
	return out
}

// Reset clears the recorded calls.
func (r *FakeRunner) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = nil
}

func (r *FakeRunner) record(op Op) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, op)
}

// RestoreDatabase records the call.
func (r *FakeRunner) RestoreDatabase(ctx context.Context, conn, dbName, backupPath string) error {
	r.record(Op{Kind: "restore", DB: dbName, Path: backupPath})
	return nil
}

// BackupDatabase records the call and writes a fabricated backup file.
func (r *FakeRunner) BackupDatabase(ctx context.Context, conn, dbName, outPath string, compress bool) error {
	if r.FailBackup != nil {
		return r.FailBackup
	}
	r.record(Op{Kind: "backup", DB: dbName, Path: outPath})
	size := r.BackupSize
	if size == 0 {
		size = 16
	}
	payload := make([]byte, size)
	copy(payload, fmt.Sprintf("backup:%s", dbName))
	return os.WriteFile(outPath, payload, 0o644)
}

// ExecScript records the script text.
func (r *FakeRunner) ExecScript(ctx context.Context, conn, script string) error {
	if r.FailExec != nil {
		return r.FailExec
	}
	r.record(Op{Kind: "exec", Text: script})
	return nil
}

// Verify FakeRunner satisfies the Runner contract at compile time.
var _ sqlrunner.Runner = (*FakeRunner)(nil)

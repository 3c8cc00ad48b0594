// Package plan resolves a deployment into an executable shape: which
// baseline backups restore the starting state, and which releases apply on
// top of them, in order. The planner walks the release DAG backwards from
// the active release until it finds a release whose backups exist on disk
// for every project database.
package plan

import (
	"fmt"

	"github.com/roach88/dbbm/internal/config"
)

// DatabaseBackup pairs a project database with the baseline backup file
// that restores it.
type DatabaseBackup struct {
	Name       string
	BackupPath string
}

// Plan is the immutable result of baseline resolution.
type Plan struct {
	// Databases lists one backup per project database, in
	// project-declared order.
	Databases []DatabaseBackup

	// Releases are the releases to apply after restoring the baselines,
	// innermost (closest to the baseline) first.
	Releases []config.Release

	// BaselineRelease names the release whose backups restore the
	// starting state.
	BaselineRelease string

	// BaselineEnv names the environment the backups came from. Empty
	// for environment-agnostic backup files.
	BaselineEnv string
}

// NoBaselineError means the walk ran out of baselines before finding a
// release with a complete backup set.
type NoBaselineError struct {
	// Release is the last release examined.
	Release string
}

func (e *NoBaselineError) Error() string {
	return fmt.Sprintf("no baseline backups found walking back from release %q", e.Release)
}

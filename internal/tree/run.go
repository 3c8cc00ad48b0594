package tree

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/dbbm/internal/cache"
	"github.com/roach88/dbbm/internal/logx"
	"github.com/roach88/dbbm/internal/state"
)

// ResumeWriter persists the hash of the last completed leaf.
type ResumeWriter interface {
	Write(h state.Hash) error
}

// LeafRecorder observes executed leaves, for the deployment journal.
// Recording is best-effort; implementations must not fail the run.
type LeafRecorder interface {
	LeafExecuted(description string, out state.Hash, elapsed time.Duration)
}

// RunContext carries what the Run pass needs. Resume, Recorder, and
// Cache may be nil; DryRun suppresses every side effect including
// resume-file updates and cache adds.
type RunContext struct {
	Ctx           context.Context
	DryRun        bool
	Log           *logx.Log
	Cache         cache.Cache
	Resume        ResumeWriter
	Recorder      LeafRecorder
	Databases     []string
	Connection    string
	MinDeployTime time.Duration

	// Now is swappable for tests. Nil means time.Now.
	Now func() time.Time
}

func (rc *RunContext) now() time.Time {
	if rc.Now != nil {
		return rc.Now()
	}
	return time.Now()
}

// Run executes the (rewritten) tree depth-first, threading the hash
// through every leaf. first and last mark whether this node contains the
// overall first or last leaf of the run; the root is called with both
// true. Interior leaves — neither first nor last — feed the cache when
// their execution took at least MinDeployTime: caching the starting
// state is pointless and caching the finished state is wasteful.
func (n *Node) Run(rc *RunContext, in state.Hash, first, last bool) (state.Hash, error) {
	if !n.IsGroup() {
		return n.runLeaf(rc, in, first, last)
	}

	leave := rc.Log.Scope(n.pre)
	out := in
	for i, child := range n.children {
		childFirst := first && i == 0
		childLast := last && i == len(n.children)-1
		var err error
		out, err = child.Run(rc, out, childFirst, childLast)
		if err != nil {
			leave("")
			return out, err
		}
	}
	leave(n.post)
	return out, nil
}

func (n *Node) runLeaf(rc *RunContext, in state.Hash, first, last bool) (state.Hash, error) {
	started := rc.now()
	out, err := n.transform.RunTransform(rc.Ctx, in, rc.DryRun, rc.Log)
	if err != nil {
		return out, fmt.Errorf("%s: %w", n.transform.Description(), err)
	}
	elapsed := rc.now().Sub(started)

	if rc.DryRun {
		return out, nil
	}

	if rc.Resume != nil {
		if err := rc.Resume.Write(out); err != nil {
			return out, fmt.Errorf("record resume point: %w", err)
		}
	}
	if rc.Recorder != nil {
		rc.Recorder.LeafExecuted(n.transform.Description(), out, elapsed)
	}

	if !first && !last && rc.Cache != nil && rc.MinDeployTime >= 0 && elapsed >= rc.MinDeployTime {
		for _, db := range rc.Databases {
			if err := rc.Cache.Add(rc.Ctx, rc.Connection, db, out); err != nil {
				// Cache population is an optimization; a failed add
				// never fails the deployment.
				rc.Log.Warnf("cache add failed for %s at %s: %v", db, out, err)
			}
		}
	}

	return out, nil
}

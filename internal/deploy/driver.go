// Package deploy orchestrates one deployment: plan the baseline, build
// the execution tree, calculate and rewrite it against the resume point
// and the cache, check requirements, and run it.
package deploy

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/dbbm/internal/cache"
	"github.com/roach88/dbbm/internal/config"
	"github.com/roach88/dbbm/internal/journal"
	"github.com/roach88/dbbm/internal/logx"
	"github.com/roach88/dbbm/internal/plan"
	"github.com/roach88/dbbm/internal/resume"
	"github.com/roach88/dbbm/internal/sqlrunner"
	"github.com/roach88/dbbm/internal/state"
	"github.com/roach88/dbbm/internal/task"
	"github.com/roach88/dbbm/internal/tree"
)

// TokenGenerator produces run tokens for the journal.
type TokenGenerator interface {
	Generate() string
}

// UUIDTokens is the production token generator.
type UUIDTokens struct{}

// Generate returns a fresh UUID.
func (UUIDTokens) Generate() string { return uuid.NewString() }

// Options are the per-invocation switches, mirroring the CLI flags.
type Options struct {
	Release string // override of the default active release
	Env     string // override of the configured environment
	DryRun  bool
	Resume  bool
	NoCache bool
}

// Deployment wires one deployment's collaborators.
type Deployment struct {
	cfg    *config.Config
	opts   Options
	runner sqlrunner.Runner
	cache  cache.Cache
	log    *logx.Log
	beeper logx.Beeper
	store  *resume.Store
	jrnl   *journal.Store
	tokens TokenGenerator
}

// New assembles a Deployment. jrnl may be nil (no history recording);
// beeper and tokens default to silent and UUIDs.
func New(cfg *config.Config, opts Options, runner sqlrunner.Runner, c cache.Cache, log *logx.Log, beeper logx.Beeper, jrnl *journal.Store) *Deployment {
	if beeper == nil {
		beeper = logx.NullBeeper{}
	}
	if c == nil || opts.NoCache {
		c = cache.Null{}
	}
	return &Deployment{
		cfg:    cfg,
		opts:   opts,
		runner: runner,
		cache:  c,
		log:    log,
		beeper: beeper,
		store:  resume.NewStore(cfg.Project.Root),
		jrnl:   jrnl,
		tokens: UUIDTokens{},
	}
}

// SetTokens overrides the run token generator.
func (d *Deployment) SetTokens(g TokenGenerator) { d.tokens = g }

// env resolves the active environment.
func (d *Deployment) env() string {
	if d.opts.Env != "" {
		return d.opts.Env
	}
	return d.cfg.User.Environment
}

// Run executes the full deployment sequence. Any failure comes back as
// a *SoftFailure wrapping the cause; the resume file is left behind so
// the next invocation can pick up with --resume.
func (d *Deployment) Run(ctx context.Context) error {
	d.beeper.Beep("start")
	if err := d.run(ctx); err != nil {
		d.beeper.Beep("error")
		inner := classify(err)
		return &SoftFailure{Code: inner.Code, Message: "Blocking error detected", Err: inner}
	}
	d.beeper.Beep("success")
	return nil
}

func (d *Deployment) run(ctx context.Context) error {
	active, err := d.cfg.ActiveRelease(d.opts.Release)
	if err != nil {
		return err
	}

	builder, err := plan.NewBuilder(d.cfg)
	if err != nil {
		return err
	}
	p, err := builder.Build(active, d.env())
	if err != nil {
		return err
	}
	d.log.Printf("deploying release %s from baseline %s", active.Name, p.BaselineRelease)

	root, err := d.buildTree(p)
	if err != nil {
		return err
	}

	var starting *state.Hash
	if d.opts.Resume {
		h, err := d.store.Load()
		if err != nil {
			return err
		}
		starting = &h
		d.log.Printf("resuming from %s", h)
	}

	calcCtx := &tree.CalcContext{
		Databases:       d.cfg.Project.Databases,
		Cache:           d.cache,
		NewCacheRestore: task.NewCacheRestore(d.cfg.User.Connection, d.runner),
	}
	calc, err := root.Calculate(calcCtx, state.Empty, starting)
	if err != nil {
		return err
	}
	if starting != nil && !calc.ResumeFound {
		return &SoftFailure{
			Code:    CodeResumeInvalid,
			Message: fmt.Sprintf("resume point %s matches no step of this deployment", *starting),
		}
	}

	// Touch the entries a cache substitution will restore from, so GC
	// ranks them hot even if the run then fails. Dry-run leaves the hit
	// table alone.
	if !d.opts.DryRun && calc.Changed && calc.CacheHash != nil {
		keys := make([]cache.Key, 0, len(d.cfg.Project.Databases))
		for _, db := range d.cfg.Project.Databases {
			keys = append(keys, cache.Key{DB: db, Hash: *calc.CacheHash})
		}
		if err := d.cache.UpdateHits(keys); err != nil {
			return err
		}
	}

	if calc.Node == nil {
		d.log.Printf("nothing to do: target state %s already reached", calc.Hash)
		if !d.opts.DryRun {
			if err := d.store.Clear(); err != nil {
				return err
			}
		}
		return nil
	}

	sink := &tree.ReqSink{}
	calc.Node.Requirements(sink)
	if sink.Finish() {
		for _, failure := range sink.Failures() {
			d.log.Errorf("unmet requirement: %s", failure)
		}
		return &SoftFailure{
			Code:    CodeUnmetRequirements,
			Message: "Command aborted due to unmet requirements.",
		}
	}

	inbound := state.Empty
	if starting != nil {
		inbound = *starting
	}

	token := d.tokens.Generate()
	rc := &tree.RunContext{
		Ctx:           ctx,
		DryRun:        d.opts.DryRun,
		Log:           d.log,
		Cache:         d.cache,
		Resume:        d.store,
		Recorder:      d.newRecorder(ctx, token, active.Name),
		Databases:     d.cfg.Project.Databases,
		Connection:    d.cfg.User.Connection,
		MinDeployTime: d.cfg.User.Cache.MinDeployTime,
	}

	final, err := calc.Node.Run(rc, inbound, true, true)
	d.finishJournal(ctx, token, final, err)
	if err != nil {
		return err
	}

	d.log.Printf("deployment complete at %s", final)
	if !d.opts.DryRun {
		if err := d.store.Clear(); err != nil {
			return err
		}
	}
	return nil
}

// buildTree constructs the unrewritten execution tree: the baseline
// restore first, then one group per release, one per feature, one leaf
// per recipe step.
func (d *Deployment) buildTree(p *plan.Plan) (*tree.Node, error) {
	root := tree.NewGroup("", "")

	backups := make([]task.DatabaseBackup, 0, len(p.Databases))
	for _, db := range p.Databases {
		backups = append(backups, task.DatabaseBackup{Name: db.Name, BackupPath: db.BackupPath})
	}
	restoreGroup := tree.NewGroup("Restore databases", "")
	if err := restoreGroup.Add(tree.NewLeaf(&task.RestoreDatabases{
		Conn:      d.cfg.User.Connection,
		Databases: backups,
		Runner:    d.runner,
	})); err != nil {
		return nil, err
	}
	if err := root.Add(restoreGroup); err != nil {
		return nil, err
	}

	registry := task.NewRegistry(d.cfg.TaskDefs)
	for _, release := range p.Releases {
		relGroup := tree.NewGroup(fmt.Sprintf("Release %s", release.Name), "")
		for _, featureName := range release.Features {
			feature, ok := d.cfg.Features[featureName]
			if !ok {
				return nil, &config.UnknownFeatureError{Release: release.Name, Feature: featureName}
			}
			featGroup, err := d.buildFeature(registry, feature)
			if err != nil {
				return nil, err
			}
			if err := relGroup.Add(featGroup); err != nil {
				return nil, err
			}
		}
		if err := root.Add(relGroup); err != nil {
			return nil, err
		}
	}
	return root, nil
}

func (d *Deployment) buildFeature(registry *task.Registry, feature config.Feature) (*tree.Node, error) {
	group := tree.NewGroup(fmt.Sprintf("Feature %s", feature.Name), "")
	tc := &task.Context{
		Vars: &task.Vars{
			Values:  map[string]string{},
			Feature: map[string]string{"name": feature.Name},
		},
		BaseDir: feature.BaseDir,
		Env:     d.env(),
		Conn:    d.cfg.User.Connection,
		Runner:  d.runner,
	}
	for _, step := range feature.Recipe {
		transforms, err := registry.Build(step, tc)
		if err != nil {
			return nil, fmt.Errorf("feature %s: %w", feature.Name, err)
		}
		for _, tf := range transforms {
			if err := group.Add(tree.NewLeaf(tf)); err != nil {
				return nil, err
			}
		}
	}
	return group, nil
}

// journalRecorder implements tree.LeafRecorder best-effort.
type journalRecorder struct {
	ctx   context.Context
	jrnl  *journal.Store
	token string
	seq   int
}

func (r *journalRecorder) LeafExecuted(description string, out state.Hash, elapsed time.Duration) {
	r.seq++
	if err := r.jrnl.RecordLeaf(r.ctx, r.token, r.seq, description, out, elapsed); err != nil {
		slog.Warn("journal write failed", "error", err)
	}
}

func (d *Deployment) newRecorder(ctx context.Context, token, release string) tree.LeafRecorder {
	if d.jrnl == nil || d.opts.DryRun {
		return nil
	}
	if err := d.jrnl.BeginRun(ctx, token, release, d.env()); err != nil {
		slog.Warn("journal write failed", "error", err)
		return nil
	}
	return &journalRecorder{ctx: ctx, jrnl: d.jrnl, token: token}
}

func (d *Deployment) finishJournal(ctx context.Context, token string, final state.Hash, runErr error) {
	if d.jrnl == nil || d.opts.DryRun {
		return
	}
	outcome := "success"
	var finalHash *state.Hash
	if runErr != nil {
		outcome = "failure"
	} else {
		finalHash = &final
	}
	if err := d.jrnl.FinishRun(ctx, token, outcome, finalHash); err != nil {
		slog.Warn("journal write failed", "error", err)
	}
}

package cli

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/roach88/dbbm/internal/cache"
	"github.com/roach88/dbbm/internal/config"
	"github.com/roach88/dbbm/internal/deploy"
	"github.com/roach88/dbbm/internal/journal"
	"github.com/roach88/dbbm/internal/logx"
	"github.com/roach88/dbbm/internal/sqlrunner"
)

// DeployOptions holds flags for the deploy command.
type DeployOptions struct {
	*RootOptions
	Release string
	Env     string
	DryRun  bool
	Resume  bool
	NoCache bool
	NoBeeps bool
}

// NewDeployCommand creates the deploy command.
func NewDeployCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DeployOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy the active release to the configured server",
		Long: `Deploy restores the newest available baseline backups, then applies
every release between the baseline and the active release, feature by
feature, task by task. The resume file is updated after every task; an
interrupted deployment continues with --resume.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDeploy(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Release, "release", "r", "", "override the default active release")
	cmd.Flags().StringVarP(&opts.Env, "env", "e", "", "override the default environment")
	cmd.Flags().BoolVarP(&opts.DryRun, "dry-run", "n", false, "calculate and log without side effects")
	cmd.Flags().BoolVarP(&opts.Resume, "resume", "s", false, "start at the hash in the resume file")
	cmd.Flags().BoolVarP(&opts.NoCache, "no-cache", "C", false, "disable the backup cache")
	cmd.Flags().BoolVarP(&opts.NoBeeps, "no-beeps", "B", false, "disable the buzzer")

	return cmd
}

func runDeploy(cmd *cobra.Command, opts *DeployOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return WrapExitError(ExitCommandError, "configuration", err)
	}

	runner := sqlrunner.NewSQLCmd()
	log := logx.New(cmd.OutOrStdout())

	var store cache.Cache = cache.Null{}
	if !opts.NoCache && cfg.User.Cache.RootPath != "" {
		store = cache.NewManager(cache.Options{
			Root:     cfg.User.Cache.RootPath,
			MaxSize:  cfg.User.Cache.MaxCacheSize,
			AutoGC:   cfg.User.Cache.AutoGC,
			Compress: cfg.User.Cache.Compress,
		}, runner, nil)
	}

	var beeper logx.Beeper = logx.NullBeeper{}
	if !opts.NoBeeps && len(cfg.User.Beeps) > 0 {
		beeper = &logx.TerminalBeeper{W: cmd.ErrOrStderr(), Patterns: cfg.User.Beeps}
	}

	jrnl := openJournal(cfg)
	if jrnl != nil {
		defer jrnl.Close()
	}

	d := deploy.New(cfg, deploy.Options{
		Release: opts.Release,
		Env:     opts.Env,
		DryRun:  opts.DryRun,
		Resume:  opts.Resume,
		NoCache: opts.NoCache,
	}, runner, store, log, beeper, jrnl)

	if err := d.Run(cmd.Context()); err != nil {
		if sf, ok := deploy.IsSoftFailure(err); ok {
			return WrapExitError(ExitFailure, string(sf.Code), err)
		}
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Deployment successful.")
	return nil
}

// openJournal opens the project journal. History is best-effort: any
// failure just disables it.
func openJournal(cfg *config.Config) *journal.Store {
	path := journal.DefaultPath(cfg.Project.Root)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		slog.Warn("journal disabled", "error", err)
		return nil
	}
	jrnl, err := journal.Open(path)
	if err != nil {
		slog.Warn("journal disabled", "error", err)
		return nil
	}
	return jrnl
}

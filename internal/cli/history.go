package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/dbbm/internal/journal"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Limit int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent deployment runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return WrapExitError(ExitCommandError, "configuration", err)
			}

			path := journal.DefaultPath(cfg.Project.Root)
			if _, err := os.Stat(path); err != nil {
				fmt.Fprintln(cmd.OutOrStdout(), "no deployment history")
				return nil
			}
			jrnl, err := journal.Open(path)
			if err != nil {
				return WrapExitError(ExitFailure, "journal", err)
			}
			defer jrnl.Close()

			runs, err := jrnl.Recent(cmd.Context(), opts.Limit)
			if err != nil {
				return WrapExitError(ExitFailure, "journal", err)
			}

			out := cmd.OutOrStdout()
			if len(runs) == 0 {
				fmt.Fprintln(out, "no deployment history")
				return nil
			}
			for _, r := range runs {
				outcome := r.Outcome
				if outcome == "" {
					outcome = "running"
				}
				elapsed := ""
				if !r.FinishedAt.IsZero() {
					elapsed = fmt.Sprintf(" in %s", r.FinishedAt.Sub(r.StartedAt).Round(1e9))
				}
				fmt.Fprintf(out, "%s  %-8s release=%s env=%s leaves=%d%s\n",
					r.StartedAt.Format("2006-01-02 15:04:05"), outcome, r.Release, r.Env, r.Leaves, elapsed)
				if opts.Verbose && r.FinalHash != "" {
					fmt.Fprintf(out, "    final state %s\n", r.FinalHash)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&opts.Limit, "limit", "n", 10, "number of runs to show")
	return cmd
}

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the whole configuration tree",
		Long: `Validate loads the project file, the user file, the release list, and
every feature and task file, checks each against its schema, and
verifies that release feature references resolve.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return WrapExitError(ExitFailure, "validation failed", err)
			}

			var problems []string
			for _, release := range cfg.Releases {
				if release.Baseline != "" {
					if _, ok := cfg.Release(release.Baseline); !ok {
						problems = append(problems, fmt.Sprintf(
							"release %q: unknown baseline %q", release.Name, release.Baseline))
					}
				}
				for _, feature := range release.Features {
					if _, ok := cfg.Features[feature]; !ok {
						problems = append(problems, fmt.Sprintf(
							"release %q: unknown feature %q", release.Name, feature))
					}
				}
			}

			out := cmd.OutOrStdout()
			if len(problems) > 0 {
				for _, p := range problems {
					fmt.Fprintln(out, p)
				}
				return WrapExitError(ExitFailure,
					fmt.Sprintf("%d problem(s) found", len(problems)), nil)
			}

			fmt.Fprintf(out, "ok: %d database(s), %d release(s), %d feature(s), %d task definition(s)\n",
				len(cfg.Project.Databases), len(cfg.Releases), len(cfg.Features), len(cfg.TaskDefs))
			return nil
		},
	}
}

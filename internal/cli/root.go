// Package cli implements the dbbm command line: deploy, gc, cache,
// history, and validate.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/dbbm/internal/config"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Verbose bool
}

// NewRootCommand creates the root command for the dbbm CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "dbbm",
		Short: "Declarative database branch deployment",
		Long: `dbbm deploys a set of SQL databases from a baseline backup through a
sequence of releases, features, and tasks. Every deployment is
fingerprinted; cached backups short-circuit already-reached states and a
resume file lets an interrupted deployment pick up where it stopped.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewDeployCommand(opts))
	cmd.AddCommand(NewGCCommand(opts))
	cmd.AddCommand(NewCacheCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))

	return cmd
}

// loadConfig discovers the project from the working directory and loads
// the full configuration tree.
func loadConfig() (*config.Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	root, err := config.FindProject(cwd)
	if err != nil {
		return nil, err
	}
	return config.Load(root)
}

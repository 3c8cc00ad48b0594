package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/dbbm/internal/cache"
	"github.com/roach88/dbbm/internal/sqlrunner"
)

// NewGCCommand creates the gc command.
func NewGCCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "gc",
		Short: "Garbage-collect the backup cache",
		Long: `GC deletes cache files without a hit-table entry, drops hit-table
entries without a file, and evicts the oldest-hit entries until the
cache fits its configured size bound.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return WrapExitError(ExitCommandError, "configuration", err)
			}
			if cfg.User.Cache.RootPath == "" {
				return WrapExitError(ExitCommandError, "no cache configured", nil)
			}

			m := cache.NewManager(cache.Options{
				Root:    cfg.User.Cache.RootPath,
				MaxSize: cfg.User.Cache.MaxCacheSize,
			}, sqlrunner.NewSQLCmd(), nil)

			stats, err := m.GarbageCollect(true)
			if err != nil {
				return WrapExitError(ExitFailure, "gc", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "invalid files removed:   %d\n", stats.Invalid)
			fmt.Fprintf(out, "orphan files removed:    %d\n", stats.Orphans)
			fmt.Fprintf(out, "forgotten entries:       %d\n", stats.Forgotten)
			fmt.Fprintf(out, "evicted for size:        %d\n", stats.Evicted)
			fmt.Fprintf(out, "reclaimed:               %d bytes\n", stats.Reclaimed)
			fmt.Fprintf(out, "live cache size:         %d bytes\n", stats.LiveSize)
			return nil
		},
	}
}

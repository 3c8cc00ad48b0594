package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/dbbm/internal/cache"
	"github.com/roach88/dbbm/internal/sqlrunner"
)

// NewCacheCommand creates the cache listing command.
func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cache",
		Short: "List backup cache entries",
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

			entries, err := m.Entries()
			if err != nil {
				return WrapExitError(ExitFailure, "cache listing", err)
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "cache is empty")
				return nil
			}
			var total int64
			for _, e := range entries {
				fmt.Fprintf(out, "%-20s %s  %10d bytes  last hit %s\n",
					e.DB, e.Hex[:12], e.Size, e.LastHit.Format("2006-01-02 15:04:05"))
				total += e.Size
			}
			fmt.Fprintf(out, "%d entries, %d bytes\n", len(entries), total)
			return nil
		},
	}
}

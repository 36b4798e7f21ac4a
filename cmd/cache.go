package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and maintain the per-marketplace result caches",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *App) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Backend: %s (ttl %s)\n", app.cfg.Cache.Backend, app.cfg.Cache.TTL)
			total := 0
			for _, c := range app.caches {
				fmt.Fprintf(out, "%-8s %d entries\n", c.Name(), c.Len())
				total += c.Len()
			}
			fmt.Fprintf(out, "Total:   %d entries\n", total)
			return nil
		})
	},
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove expired entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *App) error {
			removed := 0
			for _, c := range app.caches {
				n := c.Prune()
				if n == 0 {
					continue
				}
				if err := c.Flush(ctx); err != nil {
					return fmt.Errorf("flushing %s cache: %w", c.Name(), err)
				}
				removed += n
			}
			if removed == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to prune.")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d expired entries.\n", removed)
			}
			return nil
		})
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every cached result",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, func(ctx context.Context, app *App) error {
			for _, c := range app.caches {
				if err := c.Clear(ctx); err != nil {
					return fmt.Errorf("clearing %s cache: %w", c.Name(), err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d cache(s).\n", len(app.caches))
			return nil
		})
	},
}

func init() {
	cacheCmd.AddCommand(cacheStatsCmd, cachePruneCmd, cacheClearCmd)
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-metrics/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage the companyfacts and submissions snapshot cache",
}

var cachePruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove all but the newest snapshot per company",
	RunE: func(cmd *cobra.Command, _ []string) error {
		removed, err := pruneCaches(cfg.Cache.Dir, cfg.Cache.SubsDir)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed %d stale snapshots.\n", removed)
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cachePruneCmd)
	rootCmd.AddCommand(cacheCmd)
}

// pruneCaches prunes the facts and submissions caches.
func pruneCaches(factsDir, subsDir string) (int, error) {
	total := 0
	for _, c := range []*cache.Cache{
		cache.New(factsDir, cache.FactsPrefix),
		cache.New(subsDir, cache.SubmissionsPrefix),
	} {
		n, err := c.PruneAll()
		total += n
		if err != nil {
			return total, err
		}
		zap.L().Debug("cache pruned", zap.String("dir", c.Dir()), zap.Int("removed", n))
	}
	return total, nil
}

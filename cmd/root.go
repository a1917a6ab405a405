package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/edgar-metrics/internal/config"
)

var cfg *config.Config

var (
	logLevel string
	refresh  bool
)

var rootCmd = &cobra.Command{
	Use:   "edgar-metrics",
	Short: "XBRL fact resolution and derived-metric engine",
	Long:  "Resolves canonical financial metrics from SEC EDGAR companyfacts, derives growth and ratio metrics, and benchmarks and ranks companies against their peers.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c
		if logLevel != "" {
			cfg.Log.Level = logLevel
		}
		if refresh {
			cfg.Cache.Force = true
		}

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&refresh, "refresh", false, "ignore cached EDGAR snapshots and download fresh copies")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

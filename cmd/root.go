package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/ratesync/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "ratesync",
	Short: "Per-jurisdiction Medicaid rate collection pipeline",
	Long:  "Reads published nursing facility rate files, detects their columns, normalizes the rows, and versions them in an append-only fact store with registry matching.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rothnic/mercator/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "mercator",
	Short: "Recipe synthesis and extraction engine for product pages",
	Long:  "Derives CSS extraction recipes from saved HTML documents, validates them against expected data with type-aware tolerances, and manages their draft-to-stable lifecycle.",
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

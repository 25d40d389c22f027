package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/datafixer/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "datafixer",
	Short: "Supplier master data validation and enrichment",
	Long:  "Imports supplier tables, validates and normalizes every row, fills gaps from VAT, business registries, sibling rows and an LLM, and exports the reconciled records.",
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

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vLannaAi/i3speedex-sub004/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "speedex",
	Short: "Email sender identity resolution",
	Long:  "Resolves raw email sender strings into structured identities: deterministic preprocessing, tiered Claude extraction, and a reviewed reconciliation queue for structural changes.",
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

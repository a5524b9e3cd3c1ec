package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/vLannaAi/i3speedex-sub004/internal/batch"
	"github.com/vLannaAi/i3speedex-sub004/internal/extract"
	"github.com/vLannaAi/i3speedex-sub004/pkg/anthropic"
)

var processLimit int

var processCmd = &cobra.Command{
	Use:   "process-batch",
	Short: "Resolve unprocessed sender records",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.Anthropic.Key == "" {
			return eris.New("anthropic API key is required (SPEEDEX_ANTHROPIC_KEY)")
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		engine := extract.NewEngine(anthropic.NewClient(cfg.Anthropic.Key), cfg.Anthropic)
		orch := batch.NewOrchestrator(st, engine, cfg.Batch)

		summary, err := orch.Run(ctx, processLimit)
		if err != nil {
			return eris.Wrap(err, "process batch")
		}

		fmt.Printf("processed %d records: %d high, %d medium, %d low, %d not applicable, %d failed (%s)\n",
			summary.Processed, summary.High, summary.Medium, summary.Low,
			summary.NotApplicable, summary.Failed, summary.Elapsed.Round(time.Second))
		return nil
	},
}

func init() {
	processCmd.Flags().IntVar(&processLimit, "limit", 0, "max records to process (0 = configured default)")
	rootCmd.AddCommand(processCmd)
}

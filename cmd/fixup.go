package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/vLannaAi/i3speedex-sub004/internal/batch"
)

var fixupCmd = &cobra.Command{
	Use:   "fixup-existing",
	Short: "Re-derive computed fields on processed records without new extraction calls",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		summary, err := batch.Fixup(ctx, st)
		if err != nil {
			return eris.Wrap(err, "fixup existing")
		}

		fmt.Printf("fixup: scanned %d records, updated %d, failed %d\n",
			summary.Scanned, summary.Updated, summary.Failed)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fixupCmd)
}

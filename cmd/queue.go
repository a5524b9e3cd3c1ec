package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/vLannaAi/i3speedex-sub004/internal/queue"
)

var (
	queueListStatus string
	queueListLimit  int
	queueReviewer   string
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Review and apply identity change proposals",
}

var queueListCmd = &cobra.Command{
	Use:   "list",
	Short: "List queue entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initPostgres(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		entries, err := queue.NewStore(st.Pool()).List(ctx, queue.Status(queueListStatus), queueListLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("queue is empty")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%s  %-11s %-8s record=%s conf=%.2f  %s\n",
				e.CreatedAt.Format(time.DateTime), e.Kind, e.Status,
				e.RecordID, e.Confidence, e.ID)
		}
		return nil
	},
}

var queueApproveCmd = &cobra.Command{
	Use:   "approve <entry-id>",
	Short: "Approve a pending proposal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initPostgres(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := queue.NewStore(st.Pool()).Approve(ctx, args[0], queueReviewer); err != nil {
			return eris.Wrap(err, "approve entry")
		}
		fmt.Printf("approved %s\n", args[0])
		return nil
	},
}

var queueRejectCmd = &cobra.Command{
	Use:   "reject <entry-id>",
	Short: "Reject a pending proposal",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initPostgres(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := queue.NewStore(st.Pool()).Reject(ctx, args[0], queueReviewer); err != nil {
			return eris.Wrap(err, "reject entry")
		}
		fmt.Printf("rejected %s\n", args[0])
		return nil
	},
}

var queueApplyCmd = &cobra.Command{
	Use:   "apply <entry-id>",
	Short: "Apply an approved proposal transactionally",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initPostgres(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		qs := queue.NewStore(st.Pool())
		if err := queue.NewApplier(st.Pool(), qs).Apply(ctx, args[0]); err != nil {
			return eris.Wrap(err, "apply entry")
		}
		fmt.Printf("applied %s\n", args[0])
		return nil
	},
}

func init() {
	queueListCmd.Flags().StringVar(&queueListStatus, "status", "", "filter by status (pending|approved|rejected|applied)")
	queueListCmd.Flags().IntVar(&queueListLimit, "limit", 50, "max entries to list")
	queueApproveCmd.Flags().StringVar(&queueReviewer, "reviewer", "", "reviewer id recorded on the entry")
	queueRejectCmd.Flags().StringVar(&queueReviewer, "reviewer", "", "reviewer id recorded on the entry")

	queueCmd.AddCommand(queueListCmd, queueApproveCmd, queueRejectCmd, queueApplyCmd)
	rootCmd.AddCommand(queueCmd)
}

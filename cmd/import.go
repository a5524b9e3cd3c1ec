package main

import (
	"bufio"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vLannaAi/i3speedex-sub004/internal/db"
	"github.com/vLannaAi/i3speedex-sub004/internal/identity"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Bulk-load raw sender strings as unprocessed records",
	Long:  "Reads one raw \"From\" string per line and loads them into message_records via COPY. Records are stored unprocessed; run process-batch afterwards.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initPostgres(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "open import file")
		}
		defer f.Close()

		columns := []string{"id", "raw_from", "email", "domain", "local_part", "created_at", "updated_at"}
		now := time.Now().UTC()

		var rows [][]any
		var skipped int
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			pre := identity.Preprocess(scanner.Text())
			if pre.Email == "" {
				skipped++
				continue
			}
			rows = append(rows, []any{
				uuid.New().String(), scanner.Text(),
				pre.Email, pre.Domain, pre.LocalPart, now, now,
			})
		}
		if err := scanner.Err(); err != nil {
			return eris.Wrap(err, "read import file")
		}

		n, err := db.CopyFrom(ctx, st.Pool(), "message_records", columns, rows)
		if err != nil {
			return err
		}

		zap.L().Info("import: records loaded",
			zap.Int64("loaded", n),
			zap.Int("skipped", skipped),
		)
		fmt.Printf("imported %d records (%d lines skipped, no address found)\n", n, skipped)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
}

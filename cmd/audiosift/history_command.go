package main

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"audiosift/internal/logging"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or reset the extraction history",
	}

	historyCmd.AddCommand(newHistoryShowCommand(ctx))
	historyCmd.AddCommand(newHistoryClearCommand(ctx))

	return historyCmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	var limitFlag int

	cmd := &cobra.Command{
		Use:   "show",
		Short: "List extracted files recorded in the history",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore(logging.NewNop())
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			records, err := store.All(cmd.Context())
			if err != nil {
				return fmt.Errorf("read history: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(records) == 0 {
				fmt.Fprintln(out, "History is empty")
				return nil
			}

			// All returns newest-first; the limit keeps the head.
			total := len(records)
			if limitFlag > 0 && limitFlag < total {
				records = records[:limitFlag]
			}

			rows := make([][]string, 0, len(records))
			for _, rec := range records {
				rows = append(rows, []string{
					rec.ContentHash,
					filepath.Base(rec.OutputPath),
					rec.Bucket,
					humanize.Bytes(uint64(rec.ByteLength)),
					rec.ExtractedAt.Local().Format("2006-01-02 15:04:05"),
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Hash", "File", "Bucket", "Size", "Extracted"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft},
			))
			fmt.Fprintf(out, "%d of %d record(s) shown\n", len(records), total)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limitFlag, "limit", "n", 50, "Show at most this many of the newest records (0 for all)")
	return cmd
}

func newHistoryClearCommand(ctx *commandContext) *cobra.Command {
	var yesFlag bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Forget all extraction history",
		Long: `Clear removes every record from the history database. Files already in the
cache will be extracted again on the next run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore(logging.NewNop())
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			count := store.Len()
			if count == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "History is already empty")
				return nil
			}
			if !yesFlag {
				ok, err := confirm(cmd, fmt.Sprintf("Delete %s from %s?", pluralRecords(count), store.Path()))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
					return nil
				}
			}
			if err := store.Clear(cmd.Context()); err != nil {
				return fmt.Errorf("clear history: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", pluralRecords(count))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

func pluralRecords(count int) string {
	if count == 1 {
		return "1 record"
	}
	return strconv.Itoa(count) + " records"
}

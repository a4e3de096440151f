package main

import (
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"audiosift/internal/convert"
	"audiosift/internal/ffmpeg"
	"audiosift/internal/logging"
)

func newConvertCommand(ctx *commandContext) *cobra.Command {
	var sourceFlag string
	var targetFlag string
	var threadsFlag int

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert an extracted OGG tree to MP3",
		Long: `Convert walks a previously extracted tree and produces MP3 copies under a
parallel directory, preserving the bucket layout. Already converted files are
skipped, so an interrupted run can simply be repeated.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			source := cfg.Paths.OutputDir
			if sourceFlag != "" {
				source = sourceFlag
			}
			target := filepath.Join(source, "mp3")
			if targetFlag != "" {
				target = targetFlag
			}
			threads := cfg.Extract.Threads
			if threadsFlag > 0 {
				threads = threadsFlag
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger, err := ctx.newLogger("stdout")
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			bridge, err := ctx.newBridge(logger)
			if err != nil {
				return err
			}

			conv := convert.New(bridge, threads, logging.WithComponent(logger, "convert"))
			result, err := conv.Run(runCtx, source, target)
			switch {
			case errors.Is(err, ffmpeg.ErrToolUnavailable):
				return fmt.Errorf("ffmpeg not found; install it or set ffmpeg.ffmpeg_binary")
			case errors.Is(err, convert.ErrSourceNotFound):
				return fmt.Errorf("nothing to convert: %s does not exist", source)
			case err != nil:
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Metric", "Value"},
				[][]string{
					{"Considered", fmt.Sprintf("%d", result.Total())},
					{"Converted", fmt.Sprintf("%d", result.Converted)},
					{"Skipped", fmt.Sprintf("%d", result.Skipped)},
					{"Failed", fmt.Sprintf("%d", result.Failed)},
					{"Target", target},
				},
				[]columnAlignment{alignLeft, alignRight},
			))
			return nil
		},
	}

	cmd.Flags().StringVarP(&sourceFlag, "source", "s", "", "Extracted tree to convert (defaults to the output directory)")
	cmd.Flags().StringVar(&targetFlag, "target", "", "Destination for MP3 files (defaults to <source>/mp3)")
	cmd.Flags().IntVarP(&threadsFlag, "threads", "t", 0, "Worker count (overrides config)")
	return cmd
}

package main

import (
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"audiosift/internal/cachewipe"
	"audiosift/internal/logging"
)

func newCacheCommand(ctx *commandContext) *cobra.Command {
	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the application audio cache",
	}

	cacheCmd.AddCommand(newCacheClearCommand(ctx))

	return cacheCmd
}

func newCacheClearCommand(ctx *commandContext) *cobra.Command {
	var yesFlag bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete audio blobs from the cache",
		Long: `Clear removes cache entries that contain audio payloads so the client
downloads them fresh. Extracted copies and non-audio cache entries are left
alone.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			if !yesFlag {
				ok, err := confirm(cmd, fmt.Sprintf("Delete audio entries under %s?", cfg.Paths.CacheDir))
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Aborted")
					return nil
				}
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger, err := ctx.newLogger("stdout")
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			wiper := cachewipe.New(logging.WithComponent(logger, "cachewipe"),
				cachewipe.WithExcludedDir(cfg.Paths.OutputDir))
			result, err := wiper.Run(runCtx, cfg.Paths.CacheDir)
			if errors.Is(err, cachewipe.ErrCacheNotFound) {
				return fmt.Errorf("cache directory %s not found; set paths.cache_dir", cfg.Paths.CacheDir)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, renderTable(
				[]string{"Metric", "Value"},
				[][]string{
					{"Examined", fmt.Sprintf("%d", result.Examined)},
					{"Removed", fmt.Sprintf("%d", result.Removed)},
					{"Failed", fmt.Sprintf("%d", result.Failed)},
				},
				[]columnAlignment{alignLeft, alignRight},
			))
			return err
		},
	}

	cmd.Flags().BoolVarP(&yesFlag, "yes", "y", false, "Skip the confirmation prompt")
	return cmd
}

package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"audiosift/internal/config"
	"audiosift/internal/pipeline"
	"audiosift/internal/scanner"
)

func newExtractCommand(ctx *commandContext) *cobra.Command {
	var inputFlag string
	var outputFlag string
	var threadsFlag int
	var classificationFlag string
	var convertFlag bool

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Scan the cache and extract new audio assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			opts, err := extractOptions(cfg, inputFlag, outputFlag, threadsFlag, classificationFlag, convertFlag, cmd.Flags().Changed("convert"))
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			interactive := isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
			logPath := filepath.Join(cfg.Paths.LogDir, fmt.Sprintf("audiosift-%s.log", time.Now().UTC().Format("20060102T150405")))
			outputs := []string{logPath}
			if !interactive {
				outputs = append(outputs, "stdout")
			}
			logger, err := ctx.newLogger(outputs...)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			store, err := ctx.openStore(logger)
			if err != nil {
				return fmt.Errorf("open history: %w", err)
			}
			defer store.Close()

			bridge, err := ctx.newBridge(logger)
			if err != nil {
				return err
			}

			p := pipeline.New(opts, store, bridge, logger)

			var barDone chan struct{}
			if interactive {
				barDone = watchProgress(p)
			}
			summary, err := p.Run(runCtx)
			if barDone != nil {
				close(barDone)
			}
			switch {
			case errors.Is(err, pipeline.ErrLocked):
				return fmt.Errorf("history database is locked; another extraction appears to be running")
			case errors.Is(err, scanner.ErrRootNotFound):
				return fmt.Errorf("cache directory %s not found; set paths.cache_dir or pass --input", opts.CacheDir)
			case err != nil:
				return err
			}

			printExtractSummary(cmd, summary, opts)
			return nil
		},
	}

	cmd.Flags().StringVarP(&inputFlag, "input", "i", "", "Cache directory to scan (overrides config)")
	cmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Directory for extracted files (overrides config)")
	cmd.Flags().IntVarP(&threadsFlag, "threads", "t", 0, "Worker count (overrides config)")
	cmd.Flags().StringVar(&classificationFlag, "classification", "", "Bucket mode: size or duration (overrides config)")
	cmd.Flags().BoolVar(&convertFlag, "convert", false, "Also produce MP3 copies of extracted files")
	return cmd
}

// extractOptions merges flag overrides into the configured run options.
func extractOptions(cfg *config.Config, input, output string, threads int, classification string, convert, convertSet bool) (pipeline.Options, error) {
	merged := *cfg
	if input != "" {
		expanded, err := config.ExpandPath(input)
		if err != nil {
			return pipeline.Options{}, fmt.Errorf("resolve input path: %w", err)
		}
		merged.Paths.CacheDir = expanded
	}
	if output != "" {
		expanded, err := config.ExpandPath(output)
		if err != nil {
			return pipeline.Options{}, fmt.Errorf("resolve output path: %w", err)
		}
		merged.Paths.OutputDir = expanded
		if err := os.MkdirAll(expanded, 0o755); err != nil {
			return pipeline.Options{}, fmt.Errorf("create output directory: %w", err)
		}
	}
	if threads > 0 {
		if threads > config.MaxThreads {
			return pipeline.Options{}, fmt.Errorf("threads must be between %d and %d", config.MinThreads, config.MaxThreads)
		}
		merged.Extract.Threads = threads
	}
	if classification != "" {
		if classification != config.ClassificationSize && classification != config.ClassificationDuration {
			return pipeline.Options{}, fmt.Errorf("classification must be %q or %q", config.ClassificationSize, config.ClassificationDuration)
		}
		merged.Extract.Classification = classification
	}
	if convertSet {
		merged.Extract.ConvertToMP3 = convert
	}
	return pipeline.OptionsFromConfig(&merged), nil
}

// watchProgress drives an indeterminate progress bar from the run counters
// until the returned channel is closed.
func watchProgress(p *pipeline.Pipeline) chan struct{} {
	done := make(chan struct{})
	bar := progressbar.NewOptions64(-1,
		progressbar.OptionSetDescription("extracting"),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetElapsedTime(true),
	)
	go func() {
		ticker := time.NewTicker(200 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				snap := p.Progress()
				_ = bar.Set64(snap.Scanned)
				_ = bar.Finish()
				fmt.Fprintln(os.Stderr)
				return
			case <-ticker.C:
				_ = bar.Set64(p.Progress().Scanned)
			}
		}
	}()
	return done
}

func printExtractSummary(cmd *cobra.Command, summary pipeline.Summary, opts pipeline.Options) {
	snap := summary.Progress

	rows := [][]string{
		{"State", summary.State.String()},
		{"Scanned", strconv.FormatInt(snap.Scanned, 10)},
		{"Extracted", strconv.FormatInt(snap.Extracted, 10)},
		{"Duplicates", strconv.FormatInt(snap.SkippedDuplicate, 10)},
		{"Invalid", strconv.FormatInt(snap.SkippedInvalid, 10)},
		{"Failed", strconv.FormatInt(snap.Failed, 10)},
		{"Data extracted", humanize.Bytes(uint64(snap.BytesProcessed))},
		{"Duration", summary.Duration.Round(time.Millisecond).String()},
		{"Throughput", fmt.Sprintf("%.1f files/s", snap.FilesPerSecond())},
		{"Output", summary.OutputDir},
	}
	if opts.ConvertToMP3 {
		rows = append(rows,
			[]string{"Converted", strconv.FormatInt(snap.Converted, 10)},
			[]string{"Convert failures", strconv.FormatInt(snap.ConvertFailed, 10)})
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, renderTable(
		[]string{"Metric", "Value"},
		rows,
		[]columnAlignment{alignLeft, alignRight},
	))
	if snap.DegradedRun {
		fmt.Fprintln(out, "Note: duration probing was unavailable; files were bucketed by size instead.")
	} else if snap.Degraded > 0 {
		fmt.Fprintf(out, "Note: %d file(s) could not be probed and fell back to size buckets.\n", snap.Degraded)
	}
}

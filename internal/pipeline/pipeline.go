package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"audiosift/internal/classify"
	"audiosift/internal/config"
	"audiosift/internal/extract"
	"audiosift/internal/ffmpeg"
	"audiosift/internal/history"
	"audiosift/internal/logging"
	"audiosift/internal/output"
	"audiosift/internal/scanner"
)

// State is the coordinator's run lifecycle.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateCancelled
	StateFatal
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// ErrAlreadyRunning reports a second Run on the same Pipeline value.
var ErrAlreadyRunning = errors.New("pipeline already running")

// ErrLocked reports another process holding the history lock.
var ErrLocked = errors.New("another extraction is using this history database")

// Options is the immutable per-run configuration, constructed once before
// dispatch. Validation happens at config load; the pipeline trusts it.
type Options struct {
	CacheDir     string
	OutputDir    string
	Threads      int
	Mode         classify.Mode
	ConvertToMP3 bool
	ScanWindow   int
	MinFileBytes int64
}

// OptionsFromConfig builds run options from validated configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	mode := classify.ModeSize
	if cfg.Extract.Classification == config.ClassificationDuration {
		mode = classify.ModeDuration
	}
	return Options{
		CacheDir:     cfg.Paths.CacheDir,
		OutputDir:    cfg.Paths.OutputDir,
		Threads:      cfg.Extract.Threads,
		Mode:         mode,
		ConvertToMP3: cfg.Extract.ConvertToMP3,
		ScanWindow:   cfg.ScanWindowBytes(),
		MinFileBytes: cfg.Extract.MinFileBytes,
	}
}

// Summary is the terminal report of one run.
type Summary struct {
	State     State
	Progress  Snapshot
	OutputDir string
	Duration  time.Duration
}

// Pipeline owns one extraction run: a bounded worker pool fed by the scanner,
// with the history store as the only cross-worker mutable structure. A
// Pipeline value is single-use.
type Pipeline struct {
	opts      Options
	store     *history.Store
	bridge    *ffmpeg.Bridge
	extractor *extract.Extractor
	writer    *output.Writer
	fs        afero.Fs
	logger    *slog.Logger

	progress *Progress
	state    atomic.Int32

	degradedNotice sync.Once
	convertNotice  sync.Once
}

// Option configures optional Pipeline behavior.
type Option func(*Pipeline)

// WithFs overrides the filesystem used to read cache entries, for tests.
func WithFs(fs afero.Fs) Option {
	return func(p *Pipeline) { p.fs = fs }
}

// WithWriter overrides the output writer, for tests.
func WithWriter(w *output.Writer) Option {
	return func(p *Pipeline) { p.writer = w }
}

// New constructs a Pipeline for one run.
func New(opts Options, store *history.Store, bridge *ffmpeg.Bridge, logger *slog.Logger, pOpts ...Option) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	p := &Pipeline{
		opts:      opts,
		store:     store,
		bridge:    bridge,
		extractor: extract.New(opts.ScanWindow),
		fs:        afero.NewOsFs(),
		logger:    logging.WithComponent(logger, "pipeline"),
		progress:  newProgress(),
	}
	for _, opt := range pOpts {
		opt(p)
	}
	if p.writer == nil {
		p.writer = output.New(opts.OutputDir, output.WithFs(p.fs))
	}
	p.state.Store(int32(StateIdle))
	return p
}

// State returns the current run state.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Progress returns a snapshot of the run counters, safe to poll from another
// goroutine while the run is in flight.
func (p *Pipeline) Progress() Snapshot {
	return p.progress.Snapshot()
}

// Run executes the pipeline to completion or cancellation. Only an invalid
// input root is fatal; every per-file condition is folded into the summary
// counters so each scanned file's fate lands in exactly one of them.
func (p *Pipeline) Run(ctx context.Context) (Summary, error) {
	if !p.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return Summary{State: p.State()}, ErrAlreadyRunning
	}
	start := time.Now()

	lock := flock.New(p.store.Path() + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		p.state.Store(int32(StateFatal))
		return p.summary(start), fmt.Errorf("acquire history lock: %w", err)
	}
	if !locked {
		p.state.Store(int32(StateFatal))
		return p.summary(start), ErrLocked
	}
	defer func() { _ = lock.Unlock() }()

	classifier := p.newClassifier()

	if err := p.writer.EnsureLayout(classifier.Mode()); err != nil {
		p.state.Store(int32(StateFatal))
		return p.summary(start), err
	}
	if err := p.writer.WriteReadme(classifier.Mode()); err != nil {
		// The README is informational only.
		p.logger.Debug("write readme failed", logging.Error(err))
	}

	scan := scanner.New(p.opts.CacheDir,
		scanner.WithFs(p.fs),
		scanner.WithMinSize(p.opts.MinFileBytes),
		scanner.WithExcludedDir(p.opts.OutputDir),
	)

	entries := make(chan scanner.Entry, 64)
	var scanErr error
	go func() {
		defer close(entries)
		scanErr = scan.Walk(ctx, func(e scanner.Entry) bool {
			select {
			case entries <- e:
				return true
			case <-ctx.Done():
				return false
			}
		}, func(path string, err error) {
			p.progress.addScanned()
			p.progress.addInvalid()
			p.logger.Debug("skipping unreadable entry", logging.String("path", path), logging.Error(err))
		})
	}()

	group := new(errgroup.Group)
	group.SetLimit(p.opts.Threads)

	for entry := range entries {
		// Cancellation is cooperative and checked between dispatches;
		// in-flight tasks always reach a terminal outcome.
		if ctx.Err() != nil {
			break
		}
		entry := entry
		group.Go(func() error {
			p.processEntry(ctx, classifier, entry)
			return nil
		})
	}
	_ = group.Wait()
	// Drain anything the producer buffered after cancellation so it exits.
	for range entries {
	}

	switch {
	case scanErr != nil && errors.Is(scanErr, scanner.ErrRootNotFound):
		p.state.Store(int32(StateFatal))
		return p.summary(start), scanErr
	case ctx.Err() != nil || errors.Is(scanErr, context.Canceled):
		p.state.Store(int32(StateCancelled))
	default:
		p.state.Store(int32(StateCompleted))
	}

	snap := p.progress.Snapshot()
	p.logger.Info("run finished",
		logging.String("state", p.State().String()),
		logging.Int64("scanned", snap.Scanned),
		logging.Int64("extracted", snap.Extracted),
		logging.Int64("duplicates", snap.SkippedDuplicate),
		logging.Int64("invalid", snap.SkippedInvalid),
		logging.Int64("failed", snap.Failed),
		logging.Int64("bytes", snap.BytesProcessed),
		logging.Duration("elapsed", time.Since(start)),
	)
	return p.summary(start), nil
}

// newClassifier decides the effective classification for this run. A missing
// prober in duration mode degrades the entire run to size bucketing, reported
// once here rather than once per file.
func (p *Pipeline) newClassifier() *classify.Classifier {
	if p.opts.Mode != classify.ModeDuration {
		return classify.New(classify.ModeSize, nil, p.logger)
	}
	if p.bridge == nil || !p.bridge.ProbeAvailable() {
		p.logger.Warn("ffprobe unavailable; classifying by size for this run")
		p.progress.markDegradedRun()
		return classify.New(classify.ModeSize, nil, p.logger)
	}
	return classify.New(classify.ModeDuration, p.bridge, p.logger)
}

func (p *Pipeline) summary(start time.Time) Summary {
	return Summary{
		State:     p.State(),
		Progress:  p.progress.Snapshot(),
		OutputDir: p.opts.OutputDir,
		Duration:  time.Since(start),
	}
}

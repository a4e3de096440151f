// Package convert batch-transcodes an extracted OGG tree into a parallel MP3
// tree. It exists for collections extracted before conversion was enabled;
// fresh runs convert inline during extraction instead.
package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/spf13/afero"
	"golang.org/x/sync/errgroup"

	"audiosift/internal/ffmpeg"
	"audiosift/internal/logging"
)

// ErrSourceNotFound is returned when the source tree does not exist.
var ErrSourceNotFound = errors.New("convert: source directory not found")

// Result summarizes one batch run.
type Result struct {
	Converted int64
	Failed    int64
	Skipped   int64
}

// Total reports how many files the run considered.
func (r Result) Total() int64 {
	return r.Converted + r.Failed + r.Skipped
}

// Converter walks an extracted tree and produces MP3 copies under a target
// root, preserving the bucket directory layout. Existing targets are kept, so
// re-running after an interruption only converts what is missing.
type Converter struct {
	bridge  *ffmpeg.Bridge
	fs      afero.Fs
	threads int
	logger  *slog.Logger
}

// Option adjusts converter construction.
type Option func(*Converter)

// WithFs substitutes the filesystem used for tree walking and target checks.
// The transcoder itself always operates on real paths.
func WithFs(fs afero.Fs) Option {
	return func(c *Converter) { c.fs = fs }
}

// New builds a Converter running at most threads conversions concurrently.
func New(bridge *ffmpeg.Bridge, threads int, logger *slog.Logger, opts ...Option) *Converter {
	if logger == nil {
		logger = logging.NewNop()
	}
	if threads < 1 {
		threads = 1
	}
	c := &Converter{
		bridge:  bridge,
		fs:      afero.NewOsFs(),
		threads: threads,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run converts every .ogg file under sourceDir into an .mp3 under targetDir.
// The relative path is preserved, so bucket directories carry over. Returns
// the per-file counters and the context error if the run was cut short.
func (c *Converter) Run(ctx context.Context, sourceDir, targetDir string) (Result, error) {
	if c.bridge == nil || !c.bridge.ConvertAvailable() {
		return Result{}, fmt.Errorf("convert: %w", ffmpeg.ErrToolUnavailable)
	}

	info, err := c.fs.Stat(sourceDir)
	if err != nil || !info.IsDir() {
		return Result{}, fmt.Errorf("%w: %s", ErrSourceNotFound, sourceDir)
	}

	sources, err := c.collect(sourceDir, targetDir)
	if err != nil {
		return Result{}, err
	}
	c.logger.Info("conversion run starting",
		logging.String("source", sourceDir),
		logging.String("target", targetDir),
		logging.Int("files", len(sources)),
		logging.Int("threads", c.threads))

	var converted, failed, skipped atomic.Int64

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(c.threads)
	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		src := src
		group.Go(func() error {
			rel, err := filepath.Rel(sourceDir, src)
			if err != nil {
				failed.Add(1)
				return nil
			}
			dst := filepath.Join(targetDir, strings.TrimSuffix(rel, ".ogg")+".mp3")
			if _, err := c.fs.Stat(dst); err == nil {
				skipped.Add(1)
				return nil
			}
			if err := c.fs.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
				failed.Add(1)
				c.logger.Warn("conversion target dir", logging.String("path", dst), logging.Error(err))
				return nil
			}
			if err := c.bridge.Convert(groupCtx, src, dst); err != nil {
				failed.Add(1)
				_ = c.fs.Remove(dst)
				c.logger.Warn("conversion failed", logging.String("source", src), logging.Error(err))
				return nil
			}
			converted.Add(1)
			return nil
		})
	}
	_ = group.Wait()

	result := Result{
		Converted: converted.Load(),
		Failed:    failed.Load(),
		Skipped:   skipped.Load(),
	}
	c.logger.Info("conversion run finished",
		logging.Int64("converted", result.Converted),
		logging.Int64("failed", result.Failed),
		logging.Int64("skipped", result.Skipped))
	return result, ctx.Err()
}

// collect gathers the .ogg sources under root, skipping the target tree when
// it is nested inside the source tree.
func (c *Converter) collect(root, targetDir string) ([]string, error) {
	var sources []string
	err := afero.Walk(c.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if path != root && samePath(path, targetDir) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".ogg") {
			sources = append(sources, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("convert: walk %s: %w", root, err)
	}
	return sources, nil
}

func samePath(a, b string) bool {
	return filepath.Clean(a) == filepath.Clean(b)
}

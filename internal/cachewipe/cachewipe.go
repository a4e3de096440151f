// Package cachewipe removes audio blobs from the application cache so the
// client re-downloads them fresh. Only entries that sniff as audio payloads
// are touched; everything else in the cache stays.
package cachewipe

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/spf13/afero"

	"audiosift/internal/extract"
	"audiosift/internal/logging"
)

// ErrCacheNotFound is returned when the cache directory does not exist.
var ErrCacheNotFound = errors.New("cachewipe: cache directory not found")

// sniffLen bounds how much of each entry is read to decide audio-ness.
const sniffLen = 8 * 1024

var gzipMagic = []byte{0x1f, 0x8b}

// Result summarizes one wipe run.
type Result struct {
	Examined int64
	Removed  int64
	Failed   int64
}

// Wiper scans a cache tree and deletes the entries that contain audio
// payloads. Deletion is per file; the cache directory structure is preserved.
type Wiper struct {
	fs       afero.Fs
	logger   *slog.Logger
	excluded []string
}

// Option adjusts wiper construction.
type Option func(*Wiper)

// WithFs substitutes the filesystem, used by tests.
func WithFs(fs afero.Fs) Option {
	return func(w *Wiper) { w.fs = fs }
}

// WithExcludedDir prunes a directory subtree from the wipe. Used to keep the
// wiper out of the extraction output when it lives under the cache root;
// extracted files open with the signature and would sniff as audio.
func WithExcludedDir(dir string) Option {
	return func(w *Wiper) {
		if strings.TrimSpace(dir) != "" {
			w.excluded = append(w.excluded, filepath.Clean(dir))
		}
	}
}

// New builds a Wiper.
func New(logger *slog.Logger, opts ...Option) *Wiper {
	if logger == nil {
		logger = logging.NewNop()
	}
	w := &Wiper{fs: afero.NewOsFs(), logger: logger}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run wipes audio entries under cacheDir. Cancellation stops the walk at the
// next file boundary; entries already removed stay removed.
func (w *Wiper) Run(ctx context.Context, cacheDir string) (Result, error) {
	info, err := w.fs.Stat(cacheDir)
	if err != nil || !info.IsDir() {
		return Result{}, fmt.Errorf("%w: %s", ErrCacheNotFound, cacheDir)
	}

	var examined, removed, failed atomic.Int64
	_ = afero.Walk(w.fs, cacheDir, func(path string, info os.FileInfo, err error) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			return nil
		}
		if info.IsDir() {
			if w.isExcluded(path) {
				return filepath.SkipDir
			}
			return nil
		}
		examined.Add(1)
		isAudio, err := w.sniff(path, info.Size())
		if err != nil {
			failed.Add(1)
			w.logger.Warn("cache entry unreadable", logging.String("path", path), logging.Error(err))
			return nil
		}
		if !isAudio {
			return nil
		}
		if err := w.fs.Remove(path); err != nil {
			failed.Add(1)
			w.logger.Warn("cache entry removal failed", logging.String("path", path), logging.Error(err))
			return nil
		}
		removed.Add(1)
		return nil
	})

	result := Result{
		Examined: examined.Load(),
		Removed:  removed.Load(),
		Failed:   failed.Load(),
	}
	w.logger.Info("cache wipe finished",
		logging.String("cache", cacheDir),
		logging.Int64("examined", result.Examined),
		logging.Int64("removed", result.Removed),
		logging.Int64("failed", result.Failed))
	if ctx.Err() != nil {
		return result, ctx.Err()
	}
	return result, nil
}

func (w *Wiper) isExcluded(path string) bool {
	for _, ex := range w.excluded {
		if path == ex || strings.HasPrefix(path, ex+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// sniff reads the head of the entry and reports whether it looks like an
// audio blob: a payload signature anywhere in the head, or a gzip envelope.
func (w *Wiper) sniff(path string, size int64) (bool, error) {
	file, err := w.fs.Open(path)
	if err != nil {
		return false, err
	}
	defer file.Close()

	head := make([]byte, min64(size, sniffLen))
	n, err := file.Read(head)
	if n == 0 && err != nil {
		return false, err
	}
	head = head[:n]
	if bytes.Contains(head, extract.Signature) {
		return true, nil
	}
	return bytes.HasPrefix(head, gzipMagic), nil
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

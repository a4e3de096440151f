package scanner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// ErrRootNotFound indicates the input root is missing or unreadable; this is
// the only condition that aborts a run before dispatch.
var ErrRootNotFound = errors.New("cache root not found")

// Entry describes one candidate cache file. Contents are not read here.
type Entry struct {
	Path string
	Size int64
}

// EmitFunc receives scanned entries. Returning false stops the walk.
type EmitFunc func(Entry) bool

// SkipFunc is notified about entries that could not be read or statted.
type SkipFunc func(path string, err error)

// Scanner enumerates candidate cache files beneath a root directory.
type Scanner struct {
	fs       afero.Fs
	root     string
	minSize  int64
	excluded []string
}

// Option configures a Scanner.
type Option func(*Scanner)

// WithFs overrides the filesystem, primarily for tests.
func WithFs(fs afero.Fs) Option {
	return func(s *Scanner) { s.fs = fs }
}

// WithMinSize skips files smaller than the given byte count.
func WithMinSize(size int64) Option {
	return func(s *Scanner) { s.minSize = size }
}

// WithExcludedDir prunes a directory subtree from the walk. Used to keep the
// scanner out of the extraction output when it lives under the cache root.
func WithExcludedDir(dir string) Option {
	return func(s *Scanner) {
		if strings.TrimSpace(dir) != "" {
			s.excluded = append(s.excluded, filepath.Clean(dir))
		}
	}
}

// New constructs a Scanner rooted at dir.
func New(root string, opts ...Option) *Scanner {
	s := &Scanner{
		fs:      afero.NewOsFs(),
		root:    filepath.Clean(root),
		minSize: 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Walk streams candidate entries beneath the root. The walk is lazy: entries
// are emitted as directories are read, and a false return from emit (or a
// cancelled context) ends it early. Unreadable children are reported through
// onSkip and never abort the walk; only a bad root does.
func (s *Scanner) Walk(ctx context.Context, emit EmitFunc, onSkip SkipFunc) error {
	info, err := s.fs.Stat(s.root)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrRootNotFound, s.root)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrRootNotFound, s.root)
	}
	if onSkip == nil {
		onSkip = func(string, error) {}
	}
	_, err = s.walkDir(ctx, s.root, emit, onSkip)
	return err
}

// walkDir returns false when the walk should stop entirely.
func (s *Scanner) walkDir(ctx context.Context, dir string, emit EmitFunc, onSkip SkipFunc) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	entries, err := afero.ReadDir(s.fs, dir)
	if err != nil {
		// Per-directory permission problems are contained, not fatal.
		onSkip(dir, err)
		return true, nil
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		path := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			if s.isExcluded(path) {
				continue
			}
			cont, err := s.walkDir(ctx, path, emit, onSkip)
			if err != nil || !cont {
				return cont, err
			}
			continue
		}
		if !entry.Mode().IsRegular() {
			continue
		}
		if !s.wantFile(entry.Name(), entry.Size()) {
			continue
		}
		if !emit(Entry{Path: path, Size: entry.Size()}) {
			return false, nil
		}
	}
	return true, nil
}

func (s *Scanner) isExcluded(path string) bool {
	for _, ex := range s.excluded {
		if path == ex || strings.HasPrefix(path, ex+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

// wantFile filters by shape only: non-empty, above the floor, and not an
// extraction artifact that found its way into the cache tree.
func (s *Scanner) wantFile(name string, size int64) bool {
	if size < s.minSize || size == 0 {
		return false
	}
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, ".ogg") || strings.HasSuffix(lower, ".mp3") {
		return false
	}
	return true
}

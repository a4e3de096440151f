package output

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"audiosift/internal/classify"
	"audiosift/internal/fileutil"
)

// Writer materializes classified payloads into the destination tree:
// output_root/<bucket_label>/<generated_name>.ogg.
type Writer struct {
	fs   afero.Fs
	root string
	now  func() time.Time
}

// Option configures a Writer.
type Option func(*Writer)

// WithFs overrides the filesystem, primarily for tests.
func WithFs(fs afero.Fs) Option {
	return func(w *Writer) { w.fs = fs }
}

// WithNow overrides the clock used in generated names.
func WithNow(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

// New constructs a Writer rooted at dir.
func New(root string, opts ...Option) *Writer {
	w := &Writer{
		fs:   afero.NewOsFs(),
		root: filepath.Clean(root),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Root returns the output root directory.
func (w *Writer) Root() string {
	return w.root
}

// EnsureLayout creates the bucket directories for the given mode up front so
// a run's output tree is predictable even when some buckets stay empty.
func (w *Writer) EnsureLayout(mode classify.Mode) error {
	if err := w.fs.MkdirAll(w.root, 0o755); err != nil {
		return fmt.Errorf("create output root: %w", err)
	}
	for _, label := range classify.Labels(mode) {
		if err := w.fs.MkdirAll(filepath.Join(w.root, label), 0o755); err != nil {
			return fmt.Errorf("create bucket directory %q: %w", label, err)
		}
	}
	return nil
}

// StageTemp writes the payload to a temp file under the output root. The
// temp file gives the duration prober a real path before the bucket is known.
// Callers must Promote or Discard it.
func (w *Writer) StageTemp(payload []byte, sourcePath string) (string, error) {
	name := fmt.Sprintf(".staging_%s.ogg", uniqueSuffix(w.now()))
	path := filepath.Join(w.root, name)
	if err := fileutil.WriteFileAtomic(w.fs, path, payload, 0o644); err != nil {
		return "", fmt.Errorf("stage payload from %s: %w", sourcePath, err)
	}
	return path, nil
}

// Promote moves a staged payload into its bucket under a generated unique
// name and returns the final path.
func (w *Writer) Promote(tempPath, bucketLabel, sourcePath string) (string, error) {
	name := fmt.Sprintf("%s_%s.ogg", sourceBase(sourcePath), uniqueSuffix(w.now()))
	finalPath := filepath.Join(w.root, bucketLabel, name)
	if err := fileutil.MoveFile(w.fs, tempPath, finalPath); err != nil {
		return "", fmt.Errorf("promote into bucket %q: %w", bucketLabel, err)
	}
	return finalPath, nil
}

// Discard removes a staged temp file after a failed task.
func (w *Writer) Discard(tempPath string) {
	if tempPath != "" {
		_ = w.fs.Remove(tempPath)
	}
}

// uniqueSuffix builds the collision-avoidance tail of generated names:
// a second-resolution timestamp plus a short random component, so two
// payloads extracted in the same second still get distinct names.
func uniqueSuffix(now time.Time) string {
	return fmt.Sprintf("%s_%s", now.Format("20060102_150405"), uuid.NewString()[:8])
}

func sourceBase(sourcePath string) string {
	base := filepath.Base(sourcePath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	if base == "" || base == "." || base == string(filepath.Separator) {
		base = "payload"
	}
	return base
}

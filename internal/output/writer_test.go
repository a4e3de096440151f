package output_test

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"audiosift/internal/classify"
	"audiosift/internal/output"
)

func newWriter(fs afero.Fs) *output.Writer {
	return output.New("/out",
		output.WithFs(fs),
		output.WithNow(func() time.Time {
			return time.Date(2024, 3, 15, 10, 30, 0, 0, time.UTC)
		}),
	)
}

func TestEnsureLayoutCreatesBuckets(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := newWriter(fs)

	if err := w.EnsureLayout(classify.ModeSize); err != nil {
		t.Fatalf("EnsureLayout failed: %v", err)
	}
	for _, label := range classify.Labels(classify.ModeSize) {
		if ok, _ := afero.DirExists(fs, filepath.Join("/out", label)); !ok {
			t.Fatalf("missing bucket directory %q", label)
		}
	}
}

func TestStageAndPromote(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := newWriter(fs)
	if err := w.EnsureLayout(classify.ModeSize); err != nil {
		t.Fatalf("EnsureLayout failed: %v", err)
	}

	payload := []byte("OggS payload bytes")
	temp, err := w.StageTemp(payload, "/cache/deadbeef")
	if err != nil {
		t.Fatalf("StageTemp failed: %v", err)
	}
	if got, _ := afero.ReadFile(fs, temp); string(got) != string(payload) {
		t.Fatal("staged content mismatch")
	}

	final, err := w.Promote(temp, "ultra_small_0-50KB", "/cache/deadbeef")
	if err != nil {
		t.Fatalf("Promote failed: %v", err)
	}
	if !strings.HasPrefix(final, "/out/ultra_small_0-50KB/deadbeef_20240315_103000_") {
		t.Fatalf("unexpected final path %q", final)
	}
	if !strings.HasSuffix(final, ".ogg") {
		t.Fatalf("expected .ogg extension, got %q", final)
	}
	if exists, _ := afero.Exists(fs, temp); exists {
		t.Fatal("temp file should be gone after promote")
	}
}

func TestPromoteNamesAreUnique(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := newWriter(fs)

	seen := map[string]bool{}
	for i := 0; i < 20; i++ {
		temp, err := w.StageTemp([]byte("x"), "/cache/samefile")
		if err != nil {
			t.Fatalf("StageTemp failed: %v", err)
		}
		final, err := w.Promote(temp, "bucket", "/cache/samefile")
		if err != nil {
			t.Fatalf("Promote failed: %v", err)
		}
		if seen[final] {
			t.Fatalf("name collision for %q", final)
		}
		seen[final] = true
	}
}

func TestDiscard(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := newWriter(fs)

	temp, err := w.StageTemp([]byte("x"), "/cache/a")
	if err != nil {
		t.Fatalf("StageTemp failed: %v", err)
	}
	w.Discard(temp)
	if exists, _ := afero.Exists(fs, temp); exists {
		t.Fatal("temp file should be removed by Discard")
	}
}

func TestWriteReadme(t *testing.T) {
	fs := afero.NewMemMapFs()
	w := newWriter(fs)

	if err := w.WriteReadme(classify.ModeDuration); err != nil {
		t.Fatalf("WriteReadme failed: %v", err)
	}
	content, err := afero.ReadFile(fs, "/out/README.txt")
	if err != nil {
		t.Fatalf("read README: %v", err)
	}
	if !strings.Contains(string(content), "ultra_short_0-5s") {
		t.Fatal("README should describe duration buckets")
	}
}

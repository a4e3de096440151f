package testsupport

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/afero"

	"audiosift/internal/extract"
	"audiosift/internal/history"
	"audiosift/internal/logging"
)

// MustOpenStore opens a history store backed by a per-test temp directory.
func MustOpenStore(t testing.TB) *history.Store {
	t.Helper()
	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"), logging.NewNop())
	if err != nil {
		t.Fatalf("open history store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

// Payload builds a deterministic signature-led payload of the given body size.
func Payload(seed int64, size int) []byte {
	body := make([]byte, size)
	rng := rand.New(rand.NewSource(seed))
	rng.Read(body)
	return append(append([]byte{}, extract.Signature...), body...)
}

// Garbage builds bytes guaranteed to contain no payload signature.
func Garbage(seed int64, size int) []byte {
	data := make([]byte, size)
	rng := rand.New(rand.NewSource(seed))
	for i := range data {
		// Stay clear of 'O' so the signature can never assemble.
		data[i] = byte(rng.Intn(250))
		if data[i] == 'O' {
			data[i] = 'x'
		}
	}
	return data
}

// WriteCacheBlob writes an envelope-wrapped payload as one cache entry.
func WriteCacheBlob(t testing.TB, fs afero.Fs, path string, envelopeLen int, payload []byte) {
	t.Helper()
	envelope := make([]byte, envelopeLen)
	for i := range envelope {
		envelope[i] = byte(i%250) + 1
	}
	blob := append(envelope, payload...)
	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := afero.WriteFile(fs, path, blob, 0o644); err != nil {
		t.Fatalf("write cache blob %s: %v", path, err)
	}
}

// StubBinaries writes always-succeeding stub executables for the provided
// names and prepends their directory to PATH for the test's duration.
func StubBinaries(t *testing.T, names ...string) string {
	t.Helper()
	binDir := t.TempDir()
	script := []byte("#!/bin/sh\nexit 0\n")
	for _, name := range names {
		if err := os.WriteFile(filepath.Join(binDir, name), script, 0o755); err != nil {
			t.Fatalf("write stub %s: %v", name, err)
		}
	}
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	return binDir
}

// StubProbe writes an ffprobe stub that always reports the given duration.
func StubProbe(t *testing.T, binDir, duration string) {
	t.Helper()
	script := "#!/bin/sh\necho '{\"format\":{\"duration\":\"" + duration + "\",\"format_name\":\"ogg\"}}'\n"
	if err := os.WriteFile(filepath.Join(binDir, "ffprobe"), []byte(script), 0o755); err != nil {
		t.Fatalf("write ffprobe stub: %v", err)
	}
}

package cachewipe_test

import (
	"context"
	"errors"
	"testing"

	"github.com/spf13/afero"

	"audiosift/internal/cachewipe"
	"audiosift/internal/testsupport"
)

func TestRunRemovesOnlyAudioEntries(t *testing.T) {
	fs := afero.NewMemMapFs()
	testsupport.WriteCacheBlob(t, fs, "/cache/a/audio1", 16, testsupport.Payload(1, 500))
	testsupport.WriteCacheBlob(t, fs, "/cache/b/audio2", 0, testsupport.Payload(2, 500))
	if err := afero.WriteFile(fs, "/cache/a/texture", testsupport.Garbage(3, 400), 0o644); err != nil {
		t.Fatalf("write texture: %v", err)
	}
	if err := afero.WriteFile(fs, "/cache/meta.dat", testsupport.Garbage(4, 100), 0o644); err != nil {
		t.Fatalf("write meta: %v", err)
	}

	result, err := cachewipe.New(nil, cachewipe.WithFs(fs)).Run(context.Background(), "/cache")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Examined != 4 || result.Removed != 2 || result.Failed != 0 {
		t.Fatalf("unexpected counters: %+v", result)
	}
	for _, gone := range []string{"/cache/a/audio1", "/cache/b/audio2"} {
		if _, err := fs.Stat(gone); err == nil {
			t.Fatalf("expected %s to be removed", gone)
		}
	}
	for _, kept := range []string{"/cache/a/texture", "/cache/meta.dat"} {
		if _, err := fs.Stat(kept); err != nil {
			t.Fatalf("expected %s to survive: %v", kept, err)
		}
	}
}

func TestRunSparesExcludedOutputTree(t *testing.T) {
	fs := afero.NewMemMapFs()
	// Extracted files open with the signature and would sniff as audio;
	// the exclusion keeps the wipe away from an output tree nested in the cache.
	extracted := "/cache/extracted/ultra_small_0-50KB/blob_x.ogg"
	if err := afero.WriteFile(fs, extracted, testsupport.Payload(7, 600), 0o644); err != nil {
		t.Fatalf("write extracted file: %v", err)
	}
	testsupport.WriteCacheBlob(t, fs, "/cache/blob", 0, testsupport.Payload(8, 600))

	wiper := cachewipe.New(nil,
		cachewipe.WithFs(fs),
		cachewipe.WithExcludedDir("/cache/extracted"))
	result, err := wiper.Run(context.Background(), "/cache")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Examined != 1 || result.Removed != 1 {
		t.Fatalf("unexpected counters: %+v", result)
	}
	if _, err := fs.Stat(extracted); err != nil {
		t.Fatalf("extracted output must survive the wipe: %v", err)
	}
	if _, err := fs.Stat("/cache/blob"); err == nil {
		t.Fatal("cache blob should have been removed")
	}
}

func TestRunDetectsCompressedEnvelopes(t *testing.T) {
	fs := afero.NewMemMapFs()
	blob := append([]byte{0x1f, 0x8b, 0x08, 0x00}, testsupport.Garbage(5, 200)...)
	if err := afero.WriteFile(fs, "/cache/zipped", blob, 0o644); err != nil {
		t.Fatalf("write zipped: %v", err)
	}

	result, err := cachewipe.New(nil, cachewipe.WithFs(fs)).Run(context.Background(), "/cache")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Removed != 1 {
		t.Fatalf("expected gzip entry removed, got %+v", result)
	}
}

func TestRunSniffsOnlyTheHead(t *testing.T) {
	fs := afero.NewMemMapFs()
	// Signature buried past the sniff window must not trigger removal.
	blob := append(testsupport.Garbage(6, 10*1024), []byte("OggS")...)
	if err := afero.WriteFile(fs, "/cache/deep", blob, 0o644); err != nil {
		t.Fatalf("write deep: %v", err)
	}

	result, err := cachewipe.New(nil, cachewipe.WithFs(fs)).Run(context.Background(), "/cache")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if result.Removed != 0 {
		t.Fatalf("deep signature should not be sniffed, got %+v", result)
	}
}

func TestRunMissingCache(t *testing.T) {
	fs := afero.NewMemMapFs()
	_, err := cachewipe.New(nil, cachewipe.WithFs(fs)).Run(context.Background(), "/absent")
	if !errors.Is(err, cachewipe.ErrCacheNotFound) {
		t.Fatalf("expected ErrCacheNotFound, got %v", err)
	}
}

func TestRunCancellation(t *testing.T) {
	fs := afero.NewMemMapFs()
	for i := int64(0); i < 20; i++ {
		testsupport.WriteCacheBlob(t, fs, "/cache/entry"+string(rune('a'+i)), 0, testsupport.Payload(i, 100))
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := cachewipe.New(nil, cachewipe.WithFs(fs)).Run(ctx, "/cache")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if result.Removed != 0 {
		t.Fatalf("pre-cancelled run must not remove entries, got %+v", result)
	}
}

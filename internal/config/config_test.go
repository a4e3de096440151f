package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"audiosift/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, _, exists, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected exists=false for missing config file")
	}
	if cfg.Extract.Threads != 16 {
		t.Fatalf("expected default threads 16, got %d", cfg.Extract.Threads)
	}
	if cfg.Extract.Classification != config.ClassificationDuration {
		t.Fatalf("expected default classification duration, got %q", cfg.Extract.Classification)
	}
	if !filepath.IsAbs(cfg.Paths.OutputDir) {
		t.Fatalf("expected expanded output dir, got %q", cfg.Paths.OutputDir)
	}
}

func TestLoadParsesAndNormalizes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
cache_dir = "` + dir + `/cache"
output_dir = "` + dir + `/out"

[extract]
threads = 4
classification = "Size"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists || resolved != path {
		t.Fatalf("unexpected resolution: exists=%v path=%q", exists, resolved)
	}
	if cfg.Extract.Threads != 4 {
		t.Fatalf("expected threads 4, got %d", cfg.Extract.Threads)
	}
	if cfg.Extract.Classification != config.ClassificationSize {
		t.Fatalf("expected classification normalized to size, got %q", cfg.Extract.Classification)
	}
}

func TestValidateRejectsThreadBounds(t *testing.T) {
	for _, threads := range []int{-1, 129, 1000} {
		cfg := config.Default()
		cfg.Extract.Threads = threads
		if err := cfg.Validate(); err == nil {
			t.Fatalf("expected validation error for threads=%d", threads)
		}
	}
}

func TestValidateRejectsUnknownClassification(t *testing.T) {
	cfg := config.Default()
	cfg.Extract.Classification = "colour"
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error for unknown classification")
	}
	if !strings.Contains(err.Error(), "classification") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	if _, _, _, err := config.Load(path); err != nil {
		t.Fatalf("sample config does not load: %v", err)
	}
}

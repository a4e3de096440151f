package config

import (
	"errors"
	"fmt"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateExtract(); err != nil {
		return err
	}
	if err := c.validateFFmpeg(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateExtract() error {
	if c.Extract.Threads < MinThreads || c.Extract.Threads > MaxThreads {
		return fmt.Errorf("extract.threads must be between %d and %d, got %d", MinThreads, MaxThreads, c.Extract.Threads)
	}
	switch c.Extract.Classification {
	case ClassificationSize, ClassificationDuration:
	default:
		return fmt.Errorf("extract.classification must be %q or %q, got %q", ClassificationSize, ClassificationDuration, c.Extract.Classification)
	}
	if c.Extract.ScanWindowKiB < 1 {
		return errors.New("extract.scan_window_kib must be positive")
	}
	if c.Extract.MinFileBytes < 1 {
		return errors.New("extract.min_file_bytes must be positive")
	}
	return nil
}

func (c *Config) validateFFmpeg() error {
	if c.FFmpeg.ProbeTimeout < 1 {
		return errors.New("ffmpeg.probe_timeout must be positive")
	}
	if c.FFmpeg.ConvertTimeout < 1 {
		return errors.New("ffmpeg.convert_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be \"console\" or \"json\", got %q", c.Logging.Format)
	}
	return nil
}

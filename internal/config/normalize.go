package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeExtract()
	c.normalizeFFmpeg()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.CacheDir) != "" {
		if c.Paths.CacheDir, err = expandPath(c.Paths.CacheDir); err != nil {
			return fmt.Errorf("paths.cache_dir: %w", err)
		}
	}
	if strings.TrimSpace(c.Paths.OutputDir) == "" {
		c.Paths.OutputDir = defaultOutputDir
	}
	if c.Paths.OutputDir, err = expandPath(c.Paths.OutputDir); err != nil {
		return fmt.Errorf("paths.output_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.HistoryDB) == "" {
		c.Paths.HistoryDB = defaultHistoryDB
	}
	if c.Paths.HistoryDB, err = expandPath(c.Paths.HistoryDB); err != nil {
		return fmt.Errorf("paths.history_db: %w", err)
	}
	return nil
}

func (c *Config) normalizeExtract() {
	if c.Extract.Threads == 0 {
		c.Extract.Threads = defaultThreads
	}
	c.Extract.Classification = strings.ToLower(strings.TrimSpace(c.Extract.Classification))
	if c.Extract.Classification == "" {
		c.Extract.Classification = defaultClassification
	}
	if c.Extract.ScanWindowKiB == 0 {
		c.Extract.ScanWindowKiB = defaultScanWindowKiB
	}
	if c.Extract.MinFileBytes == 0 {
		c.Extract.MinFileBytes = defaultMinFileBytes
	}
}

func (c *Config) normalizeFFmpeg() {
	if strings.TrimSpace(c.FFmpeg.FFmpegBinary) == "" {
		c.FFmpeg.FFmpegBinary = defaultFFmpegBinary
	}
	if strings.TrimSpace(c.FFmpeg.FFprobeBinary) == "" {
		c.FFmpeg.FFprobeBinary = defaultFFprobeBinary
	}
	if c.FFmpeg.ProbeTimeout == 0 {
		c.FFmpeg.ProbeTimeout = defaultProbeTimeout
	}
	if c.FFmpeg.ConvertTimeout == 0 {
		c.FFmpeg.ConvertTimeout = defaultConvertTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

package main

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"audiosift/internal/config"
	"audiosift/internal/ffmpeg"
	"audiosift/internal/history"
	"audiosift/internal/logging"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// openStore opens the history database from the loaded configuration. Callers
// own the returned store and must close it.
func (c *commandContext) openStore(logger *slog.Logger) (*history.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return history.Open(cfg.Paths.HistoryDB, logger)
}

func (c *commandContext) newBridge(logger *slog.Logger) (*ffmpeg.Bridge, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return ffmpeg.New(ffmpeg.Options{
		FFmpegBinary:   cfg.FFmpeg.FFmpegBinary,
		FFprobeBinary:  cfg.FFmpeg.FFprobeBinary,
		ProbeTimeout:   time.Duration(cfg.FFmpeg.ProbeTimeout) * time.Second,
		ConvertTimeout: time.Duration(cfg.FFmpeg.ConvertTimeout) * time.Second,
	}, logger), nil
}

// newLogger builds the configured logger, writing to the run log file and
// any extra destinations such as stdout for non-interactive sessions.
func (c *commandContext) newLogger(outputs ...string) (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Options{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		OutputPaths: outputs,
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}

package ffmpeg

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"audiosift/internal/logging"
)

var commandContext = exec.CommandContext

// Options configures the bridge.
type Options struct {
	FFmpegBinary   string
	FFprobeBinary  string
	ProbeTimeout   time.Duration
	ConvertTimeout time.Duration
}

// Bridge invokes the external transcoder for duration probes and secondary
// format conversion. Both operations run as time-bounded child processes; a
// hung process is killed at the deadline, never waited on indefinitely.
type Bridge struct {
	ffmpeg         string
	ffprobe        string
	probeTimeout   time.Duration
	convertTimeout time.Duration
	logger         *slog.Logger

	probeAvailable   bool
	convertAvailable bool
}

// New constructs a Bridge and resolves tool availability once. Absence
// short-circuits every later request for the run instead of failing per file.
func New(opts Options, logger *slog.Logger) *Bridge {
	if logger == nil {
		logger = logging.NewNop()
	}
	b := &Bridge{
		ffmpeg:         defaultString(opts.FFmpegBinary, "ffmpeg"),
		ffprobe:        defaultString(opts.FFprobeBinary, "ffprobe"),
		probeTimeout:   defaultDuration(opts.ProbeTimeout, 15*time.Second),
		convertTimeout: defaultDuration(opts.ConvertTimeout, 2*time.Minute),
		logger:         logger,
	}

	if _, err := exec.LookPath(b.ffprobe); err == nil {
		b.probeAvailable = true
	}
	if _, err := exec.LookPath(b.ffmpeg); err == nil {
		b.convertAvailable = true
	}
	return b
}

// ProbeAvailable reports whether duration probing can run at all this run.
func (b *Bridge) ProbeAvailable() bool {
	return b.probeAvailable
}

// ConvertAvailable reports whether secondary format conversion can run.
func (b *Bridge) ConvertAvailable() bool {
	return b.convertAvailable
}

// probeResult mirrors the subset of ffprobe's JSON output the bridge reads.
// Unknown fields are ignored, so newer ffprobe versions stay compatible.
type probeResult struct {
	Format struct {
		Duration   string `json:"duration"`
		FormatName string `json:"format_name"`
	} `json:"format"`
}

// ProbeDuration returns the decoded duration in seconds of the media file at
// path. Failures are contained: ErrToolUnavailable when ffprobe is missing,
// ErrTimeout when the probe overran its deadline, otherwise a process error.
func (b *Bridge) ProbeDuration(ctx context.Context, path string) (float64, error) {
	if !b.probeAvailable {
		return 0, fmt.Errorf("probe %s: %w", b.ffprobe, ErrToolUnavailable)
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return 0, errors.New("probe: empty path")
	}

	probeCtx, cancel := context.WithTimeout(ctx, b.probeTimeout)
	defer cancel()

	cmd := commandContext(probeCtx, b.ffprobe,
		"-v", "error", "-hide_banner", "-show_format", "-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		if errors.Is(probeCtx.Err(), context.DeadlineExceeded) {
			return 0, fmt.Errorf("probe %s: %w", path, ErrTimeout)
		}
		return 0, fmt.Errorf("probe %s: %w", path, err)
	}

	var result probeResult
	if err := json.Unmarshal(output, &result); err != nil {
		return 0, fmt.Errorf("probe parse: %w", err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(result.Format.Duration), 64)
	if err != nil {
		return 0, fmt.Errorf("probe %s: no duration in output", path)
	}
	return seconds, nil
}

// Convert transcodes the OGG file at src into an MP3 at dst. The libmp3lame
// settings match what the collection has always shipped: VBR quality 2.
func (b *Bridge) Convert(ctx context.Context, src, dst string) error {
	if !b.convertAvailable {
		return fmt.Errorf("convert %s: %w", b.ffmpeg, ErrToolUnavailable)
	}
	if strings.TrimSpace(src) == "" || strings.TrimSpace(dst) == "" {
		return errors.New("convert: source and destination required")
	}

	convertCtx, cancel := context.WithTimeout(ctx, b.convertTimeout)
	defer cancel()

	cmd := commandContext(convertCtx, b.ffmpeg,
		"-y", "-loglevel", "error",
		"-i", src,
		"-codec:a", "libmp3lame", "-qscale:a", "2",
		dst)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if errors.Is(convertCtx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("convert %s: %w", src, ErrTimeout)
		}
		return fmt.Errorf("convert %s: %w: %s", src, err, strings.TrimSpace(string(output)))
	}
	return nil
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func defaultDuration(value, fallback time.Duration) time.Duration {
	if value <= 0 {
		return fallback
	}
	return value
}

package classify

import (
	"context"
	"log/slog"
	"math"

	"audiosift/internal/logging"
)

// Mode selects the bucket table used for classification.
type Mode string

const (
	ModeSize     Mode = "size"
	ModeDuration Mode = "duration"
)

// Bucket is a half-open classification range [Lower, Upper); the final bucket
// of each table is unbounded above. Units are bytes for the size table and
// seconds for the duration table.
type Bucket struct {
	Label string
	Lower float64
	Upper float64
}

// Contains reports whether value falls in the bucket.
func (b Bucket) Contains(value float64) bool {
	return value >= b.Lower && value < b.Upper
}

var sizeBuckets = []Bucket{
	{Label: "ultra_small_0-50KB", Lower: 0, Upper: 50 * 1024},
	{Label: "small_50-200KB", Lower: 50 * 1024, Upper: 200 * 1024},
	{Label: "medium_200KB-1MB", Lower: 200 * 1024, Upper: 1024 * 1024},
	{Label: "large_1MB-5MB", Lower: 1024 * 1024, Upper: 5 * 1024 * 1024},
	{Label: "ultra_large_5MB+", Lower: 5 * 1024 * 1024, Upper: math.Inf(1)},
}

var durationBuckets = []Bucket{
	{Label: "ultra_short_0-5s", Lower: 0, Upper: 5},
	{Label: "short_5-15s", Lower: 5, Upper: 15},
	{Label: "medium_15-60s", Lower: 15, Upper: 60},
	{Label: "long_60-300s", Lower: 60, Upper: 300},
	{Label: "ultra_long_300s+", Lower: 300, Upper: math.Inf(1)},
}

// Buckets returns the table for a mode. The returned slice must not be mutated.
func Buckets(mode Mode) []Bucket {
	if mode == ModeDuration {
		return durationBuckets
	}
	return sizeBuckets
}

// Labels returns the bucket labels for a mode, in table order.
func Labels(mode Mode) []string {
	buckets := Buckets(mode)
	labels := make([]string, len(buckets))
	for i, b := range buckets {
		labels[i] = b.Label
	}
	return labels
}

// SizeBucket maps a byte length onto the size table. Total: every
// non-negative length lands in exactly one bucket.
func SizeBucket(byteLength int64) Bucket {
	return pick(sizeBuckets, float64(byteLength))
}

// DurationBucket maps a duration in seconds onto the duration table.
func DurationBucket(seconds float64) Bucket {
	return pick(durationBuckets, seconds)
}

func pick(table []Bucket, value float64) Bucket {
	if value < 0 || math.IsNaN(value) {
		value = 0
	}
	for _, b := range table {
		if b.Contains(value) {
			return b
		}
	}
	// Unreachable while the final bucket is unbounded.
	return table[len(table)-1]
}

// DurationProber probes the decoded duration of a media file.
type DurationProber interface {
	ProbeDuration(ctx context.Context, path string) (float64, error)
}

// Result is a classification outcome. Degraded marks a duration-mode item
// that fell back to size bucketing because the probe failed.
type Result struct {
	Bucket   Bucket
	Degraded bool
}

// Classifier assigns extracted payloads to buckets.
type Classifier struct {
	mode   Mode
	prober DurationProber
	logger *slog.Logger
}

// New constructs a Classifier. The prober may be nil in size mode.
func New(mode Mode, prober DurationProber, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Classifier{mode: mode, prober: prober, logger: logger}
}

// Mode returns the configured classification mode.
func (c *Classifier) Mode() Mode {
	return c.mode
}

// Classify assigns the payload at path (already on disk) to a bucket.
// Duration mode degrades to size bucketing when the probe fails for any
// reason; a single file's probe trouble never fails its task.
func (c *Classifier) Classify(ctx context.Context, path string, byteLength int64) Result {
	if c.mode != ModeDuration || c.prober == nil {
		return Result{Bucket: SizeBucket(byteLength)}
	}

	seconds, err := c.prober.ProbeDuration(ctx, path)
	if err != nil {
		c.logger.Debug("duration probe failed; falling back to size bucket",
			logging.String("path", path),
			logging.Error(err),
		)
		return Result{Bucket: SizeBucket(byteLength), Degraded: true}
	}
	return Result{Bucket: DurationBucket(seconds)}
}

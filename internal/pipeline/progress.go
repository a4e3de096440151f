package pipeline

import (
	"sync/atomic"
	"time"
)

// Progress is the shared run accumulator. Workers report terminal outcomes
// through atomic increments; readers take consistent-enough snapshots without
// blocking the pool. One Progress instance exists per run.
type Progress struct {
	startedAt time.Time

	scanned       atomic.Int64
	extracted     atomic.Int64
	duplicates    atomic.Int64
	invalid       atomic.Int64
	failed        atomic.Int64
	degraded      atomic.Int64
	converted     atomic.Int64
	convertFailed atomic.Int64
	bytes         atomic.Int64

	degradedRun atomic.Bool
}

// Snapshot is a read-only view of run progress.
type Snapshot struct {
	Scanned          int64
	Extracted        int64
	SkippedDuplicate int64
	SkippedInvalid   int64
	Failed           int64
	Degraded         int64
	Converted        int64
	ConvertFailed    int64
	BytesProcessed   int64
	DegradedRun      bool
	StartedAt        time.Time
	Elapsed          time.Duration
}

func newProgress() *Progress {
	return &Progress{startedAt: time.Now()}
}

func (p *Progress) addScanned() { p.scanned.Add(1) }

func (p *Progress) addExtracted(bytes int64) {
	p.extracted.Add(1)
	p.bytes.Add(bytes)
}

func (p *Progress) addDuplicate() { p.duplicates.Add(1) }

func (p *Progress) addInvalid() { p.invalid.Add(1) }

func (p *Progress) addFailed() { p.failed.Add(1) }

func (p *Progress) addDegraded() {
	p.degraded.Add(1)
	p.degradedRun.Store(true)
}

func (p *Progress) addConverted() { p.converted.Add(1) }

func (p *Progress) addConvertFailed() { p.convertFailed.Add(1) }

func (p *Progress) markDegradedRun() { p.degradedRun.Store(true) }

// Snapshot returns the current counters. Scanned is monotonically
// non-decreasing, and on completion the four terminal outcomes sum to it.
func (p *Progress) Snapshot() Snapshot {
	return Snapshot{
		Scanned:          p.scanned.Load(),
		Extracted:        p.extracted.Load(),
		SkippedDuplicate: p.duplicates.Load(),
		SkippedInvalid:   p.invalid.Load(),
		Failed:           p.failed.Load(),
		Degraded:         p.degraded.Load(),
		Converted:        p.converted.Load(),
		ConvertFailed:    p.convertFailed.Load(),
		BytesProcessed:   p.bytes.Load(),
		DegradedRun:      p.degradedRun.Load(),
		StartedAt:        p.startedAt,
		Elapsed:          time.Since(p.startedAt),
	}
}

// FilesPerSecond reports processing throughput over the snapshot window.
func (s Snapshot) FilesPerSecond() float64 {
	secs := s.Elapsed.Seconds()
	if secs <= 0 {
		return 0
	}
	return float64(s.Scanned) / secs
}

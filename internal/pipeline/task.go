package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"audiosift/internal/classify"
	"audiosift/internal/ffmpeg"
	"audiosift/internal/history"
	"audiosift/internal/logging"
	"audiosift/internal/scanner"
)

// processEntry runs one cache file through extract → dedup → classify →
// write → commit. Every path through here accounts the entry in exactly one
// terminal counter; nothing propagates to the pool.
func (p *Pipeline) processEntry(ctx context.Context, classifier *classify.Classifier, entry scanner.Entry) {
	p.progress.addScanned()

	raw, err := afero.ReadFile(p.fs, entry.Path)
	if err != nil {
		p.progress.addInvalid()
		p.logger.Debug("cache entry unreadable", logging.String("path", entry.Path), logging.Error(err))
		return
	}

	payload, err := p.extractor.Extract(raw)
	if err != nil {
		// Expected for non-audio cache entries; not a failure.
		p.progress.addInvalid()
		return
	}

	// Atomic check-and-reserve: exactly one worker per content hash gets
	// past this point, within the run and across runs.
	if !p.store.Reserve(payload.Hash) {
		p.progress.addDuplicate()
		return
	}

	temp, err := p.writer.StageTemp(payload.Bytes, entry.Path)
	if err != nil {
		p.store.Release(payload.Hash)
		p.progress.addFailed()
		p.logger.Warn("stage payload failed", logging.String("path", entry.Path), logging.Error(err))
		return
	}

	result := classifier.Classify(ctx, temp, payload.Length)
	if result.Degraded {
		p.progress.addDegraded()
		p.degradedNotice.Do(func() {
			p.logger.Warn("duration probe failing; affected files classified by size")
		})
	}

	finalPath, err := p.writer.Promote(temp, result.Bucket.Label, entry.Path)
	if err != nil {
		p.writer.Discard(temp)
		p.store.Release(payload.Hash)
		p.progress.addFailed()
		p.logger.Warn("write output failed", logging.String("path", entry.Path), logging.Error(err))
		return
	}

	record := history.Record{
		ContentHash: payload.Hash,
		SourcePath:  entry.Path,
		OutputPath:  finalPath,
		Bucket:      result.Bucket.Label,
		ByteLength:  payload.Length,
		ExtractedAt: time.Now().UTC(),
	}
	if err := p.store.Commit(ctx, record); err != nil {
		if errors.Is(err, history.ErrDuplicate) {
			// Lost a cross-run commit race; drop our copy and fold into
			// the duplicate count.
			_ = p.fs.Remove(finalPath)
			p.progress.addDuplicate()
			return
		}
		p.store.Release(payload.Hash)
		p.progress.addFailed()
		p.logger.Warn("history commit failed", logging.String("path", entry.Path), logging.Error(err))
		return
	}

	p.progress.addExtracted(payload.Length)

	if p.opts.ConvertToMP3 {
		p.convertOutput(ctx, finalPath, result.Bucket.Label)
	}
}

// convertOutput produces the secondary MP3 copy next to the OGG tree.
// Failures leave the original in place; the task itself has already
// succeeded.
func (p *Pipeline) convertOutput(ctx context.Context, oggPath, bucket string) {
	if p.bridge == nil || !p.bridge.ConvertAvailable() {
		p.convertNotice.Do(func() {
			p.logger.Warn("ffmpeg unavailable; skipping MP3 conversion for this run")
		})
		return
	}

	base := strings.TrimSuffix(filepath.Base(oggPath), filepath.Ext(oggPath))
	mp3Path := filepath.Join(p.opts.OutputDir, "mp3", bucket, base+".mp3")
	if err := p.fs.MkdirAll(filepath.Dir(mp3Path), 0o755); err != nil {
		p.progress.addConvertFailed()
		return
	}
	if err := p.bridge.Convert(ctx, oggPath, mp3Path); err != nil {
		p.progress.addConvertFailed()
		if errors.Is(err, ffmpeg.ErrTimeout) {
			p.logger.Warn("conversion timed out; keeping original format", logging.String("path", oggPath))
		} else {
			p.logger.Debug("conversion failed", logging.String("path", oggPath), logging.Error(err))
		}
		return
	}
	p.progress.addConverted()
}

package output

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"audiosift/internal/classify"
	"audiosift/internal/fileutil"
)

// WriteReadme drops a README into the output root describing the bucket
// layout of the current classification mode.
func (w *Writer) WriteReadme(mode classify.Mode) error {
	var b strings.Builder
	b.WriteString("Extracted Audio Collection\n")
	b.WriteString(strings.Repeat("=", 60) + "\n\n")

	switch mode {
	case classify.ModeDuration:
		b.WriteString("Files are organized by decoded audio duration:\n\n")
		b.WriteString("  ultra_short_0-5s   (0-5 seconds)   - sound effects, notification sounds\n")
		b.WriteString("  short_5-15s        (5-15 seconds)  - short effects, alerts\n")
		b.WriteString("  medium_15-60s      (15-60 seconds) - loop music, short background tracks\n")
		b.WriteString("  long_60-300s       (1-5 minutes)   - full music, long background tracks\n")
		b.WriteString("  ultra_long_300s+   (5+ minutes)    - long music, voice recordings\n\n")
		b.WriteString("Duration classification requires ffprobe; files probed unsuccessfully\n")
		b.WriteString("are placed by size instead.\n")
	default:
		b.WriteString("Files are organized by payload size:\n\n")
		b.WriteString("  ultra_small_0-50KB  (0-50KB)     - very small audio clips\n")
		b.WriteString("  small_50-200KB      (50KB-200KB) - small audio clips\n")
		b.WriteString("  medium_200KB-1MB    (200KB-1MB)  - medium size audio\n")
		b.WriteString("  large_1MB-5MB       (1MB-5MB)    - large audio files\n")
		b.WriteString("  ultra_large_5MB+    (5MB+)       - very large audio files\n")
	}

	b.WriteString(fmt.Sprintf("\nLast extraction: %s\n", w.now().Format(time.DateTime)))

	path := filepath.Join(w.root, "README.txt")
	return fileutil.WriteFileAtomic(w.fs, path, []byte(b.String()), 0o644)
}

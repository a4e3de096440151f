package ffmpeg

import "errors"

// Sentinel bridge failures. Callers dispatch with errors.Is; both probe and
// convert paths wrap these.
var (
	// ErrToolUnavailable means the external binary was not found at run
	// start. Detected once per run and reported once, not per file.
	ErrToolUnavailable = errors.New("transcoder unavailable")

	// ErrTimeout means a child process exceeded its deadline and was killed.
	ErrTimeout = errors.New("transcoder timed out")
)

// Package ffmpeg is the narrow bridge to the external transcoder: duration
// probes via ffprobe and OGG to MP3 conversion via ffmpeg, both as
// time-bounded child processes that degrade gracefully when the tools are
// absent.
package ffmpeg

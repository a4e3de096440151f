// Package logging builds the slog loggers used across audiosift and holds
// small attribute helpers shared by the CLI and the pipeline.
package logging

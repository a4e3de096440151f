// Package config loads, normalizes, and validates the TOML configuration
// consumed by the audiosift CLI and pipeline.
package config

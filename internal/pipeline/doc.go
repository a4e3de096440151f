// Package pipeline coordinates extraction runs: a bounded worker pool fed by
// the cache scanner, per-file tasks chaining extraction, deduplication,
// classification, and output, with aggregate progress accounting and
// cooperative cancellation.
package pipeline

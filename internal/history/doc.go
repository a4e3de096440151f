// Package history persists the content-hash record of extracted payloads and
// arbitrates concurrent extraction of identical content within a run.
package history

package extract

import (
	"bytes"
	"compress/gzip"
	"errors"
	"fmt"
	"io"

	"github.com/cespare/xxhash/v2"
)

// Signature is the magic header identifying a supported payload stream.
var Signature = []byte("OggS")

// gzipMagic marks a cache envelope that compresses the wrapped payload.
var gzipMagic = []byte{0x1f, 0x8b}

// ErrNoSignature indicates the cache entry does not wrap a payload. This is
// an expected outcome for non-audio cache entries, not a failure.
var ErrNoSignature = errors.New("no payload signature within search window")

const (
	// DefaultWindow bounds the forward signature search. Cache envelopes are
	// variable-length but small; half a megabyte covers every envelope
	// observed in the wild with a wide margin.
	DefaultWindow = 512 * 1024

	// maxDecompressed caps envelope decompression so a hostile cache entry
	// cannot balloon memory.
	maxDecompressed = 256 * 1024 * 1024
)

// Payload is a media stream sliced out of a cache entry. Immutable once
// created; Hash is computed over exactly the Bytes slice.
type Payload struct {
	Bytes  []byte
	Hash   string
	Length int64
}

// Extractor locates payloads inside raw cache bytes.
type Extractor struct {
	window int
}

// New constructs an Extractor with the given search window in bytes.
// A non-positive window falls back to DefaultWindow.
func New(window int) *Extractor {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Extractor{window: window}
}

// Extract slices the payload out of one cache entry's raw bytes. The payload
// runs from the signature position to end of input; trailing protocol bytes
// are tolerated downstream. Returns ErrNoSignature when the entry holds no
// payload within the window, including after envelope decompression.
func (e *Extractor) Extract(raw []byte) (Payload, error) {
	if payload, ok := e.slice(raw); ok {
		return newPayload(payload), nil
	}

	// Some envelopes gzip the wrapped stream. Decompress (bounded) and
	// search again before giving up.
	if bytes.HasPrefix(raw, gzipMagic) {
		decompressed, err := inflate(raw)
		if err == nil {
			if payload, ok := e.slice(decompressed); ok {
				return newPayload(payload), nil
			}
		}
	}

	return Payload{}, ErrNoSignature
}

func (e *Extractor) slice(raw []byte) ([]byte, bool) {
	if bytes.HasPrefix(raw, Signature) {
		return raw, true
	}
	window := raw
	if len(window) > e.window {
		window = window[:e.window]
	}
	idx := bytes.Index(window, Signature)
	if idx < 0 {
		return nil, false
	}
	return raw[idx:], true
}

func newPayload(data []byte) Payload {
	return Payload{
		Bytes:  data,
		Hash:   HashBytes(data),
		Length: int64(len(data)),
	}
}

// HashBytes returns the content hash used as the deduplication key.
func HashBytes(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

func inflate(raw []byte) ([]byte, error) {
	reader, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	data, err := io.ReadAll(io.LimitReader(reader, maxDecompressed))
	if err != nil {
		return nil, err
	}
	return data, nil
}

package extract_test

import (
	"bytes"
	"compress/gzip"
	"errors"
	"math/rand"
	"testing"

	"audiosift/internal/extract"
)

func oggPayload(size int) []byte {
	payload := make([]byte, 0, size+4)
	payload = append(payload, extract.Signature...)
	body := make([]byte, size)
	rng := rand.New(rand.NewSource(7))
	rng.Read(body)
	return append(payload, body...)
}

func TestExtractSignatureAtOffsetZero(t *testing.T) {
	raw := oggPayload(100)
	payload, err := extract.New(0).Extract(raw)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !bytes.Equal(payload.Bytes, raw) {
		t.Fatal("expected full input as payload when signature leads")
	}
	if payload.Length != int64(len(raw)) {
		t.Fatalf("unexpected length %d", payload.Length)
	}
}

func TestExtractDiscardsEnvelope(t *testing.T) {
	envelope := make([]byte, 37)
	for i := range envelope {
		envelope[i] = byte(i + 1)
	}
	inner := oggPayload(2000)
	raw := append(append([]byte{}, envelope...), inner...)

	payload, err := extract.New(0).Extract(raw)
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !bytes.Equal(payload.Bytes, inner) {
		t.Fatal("expected payload sliced from signature to EOF")
	}
	if payload.Hash != extract.HashBytes(inner) {
		t.Fatal("hash must cover the extracted slice only")
	}
}

func TestExtractGzipEnvelope(t *testing.T) {
	inner := oggPayload(500)
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(append(make([]byte, 12), inner...)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}

	payload, err := extract.New(0).Extract(buf.Bytes())
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !bytes.Equal(payload.Bytes, inner) {
		t.Fatal("expected payload recovered from gzip envelope")
	}
}

func TestExtractNoSignature(t *testing.T) {
	raw := make([]byte, 4096)
	rng := rand.New(rand.NewSource(99))
	rng.Read(raw)
	// Scrub any accidental signature occurrence.
	for i := 0; i+len(extract.Signature) <= len(raw); i++ {
		if bytes.Equal(raw[i:i+len(extract.Signature)], extract.Signature) {
			raw[i] ^= 0xff
		}
	}

	_, err := extract.New(0).Extract(raw)
	if !errors.Is(err, extract.ErrNoSignature) {
		t.Fatalf("expected ErrNoSignature, got %v", err)
	}
}

func TestExtractRespectsWindow(t *testing.T) {
	envelope := make([]byte, 1024)
	raw := append(envelope, oggPayload(64)...)

	if _, err := extract.New(256).Extract(raw); !errors.Is(err, extract.ErrNoSignature) {
		t.Fatalf("expected signature beyond window to be ignored, got %v", err)
	}
	if _, err := extract.New(2048).Extract(raw); err != nil {
		t.Fatalf("expected signature inside window to be found: %v", err)
	}
}

func TestHashIsStable(t *testing.T) {
	data := oggPayload(256)
	if extract.HashBytes(data) != extract.HashBytes(append([]byte{}, data...)) {
		t.Fatal("hash must be a pure function of content")
	}
	if extract.HashBytes(data) == extract.HashBytes(data[:len(data)-1]) {
		t.Fatal("distinct content should hash differently")
	}
}

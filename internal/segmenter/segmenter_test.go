package segmenter_test

import (
	"bytes"
	"testing"

	"github.com/dwarfs-go/dwarfs/internal/segmenter"
)

func TestSegmentFindsRepeatedRun(t *testing.T) {
	s := segmenter.New(segmenter.Options{WindowSize: 8, MinMatch: 8, TableBits: 10})

	// Strictly increasing byte values: every 8-byte window within one
	// copy is unique, so the only real back-reference is copy-to-copy.
	payload := make([]byte, 64)
	for i := range payload {
		payload[i] = byte(i)
	}
	data := append(append([]byte{}, payload...), payload...)

	spans := s.Segment(data)

	var gotMatch bool
	var totalLen int
	for _, sp := range spans {
		totalLen += sp.Length
		if sp.IsMatch() && sp.Offset == len(payload) {
			gotMatch = true
			if sp.Length < len(payload) {
				t.Errorf("match length = %d, want >= %d", sp.Length, len(payload))
			}
			if sp.RefOffset != 0 {
				t.Errorf("RefOffset = %d, want 0", sp.RefOffset)
			}
		}
	}
	if !gotMatch {
		t.Fatalf("expected a back-reference span covering the repeated half, got %+v", spans)
	}
	if totalLen != len(data) {
		t.Errorf("spans cover %d bytes, want %d", totalLen, len(data))
	}
}

func TestSegmentNoRepeatsIsAllLiteral(t *testing.T) {
	s := segmenter.New(segmenter.Options{WindowSize: 8, MinMatch: 8, TableBits: 10})

	data := []byte("the quick brown fox jumps over the lazy dog, but never twice alike")
	spans := s.Segment(data)

	for _, sp := range spans {
		if sp.IsMatch() {
			t.Errorf("unexpected match span in non-repeating input: %+v", sp)
		}
	}
	if len(spans) != 1 {
		t.Fatalf("expected a single literal span, got %d: %+v", len(spans), spans)
	}
	if spans[0].Length != len(data) {
		t.Errorf("literal span length = %d, want %d", spans[0].Length, len(data))
	}
}

func TestSegmentAcrossMultipleCalls(t *testing.T) {
	s := segmenter.New(segmenter.Options{WindowSize: 8, MinMatch: 8, TableBits: 10})

	first := bytes.Repeat([]byte("abcdefgh"), 8) // 64 bytes
	s.Segment(first)

	second := append(append([]byte{}, first...), []byte("unique-tail-content")...)
	spans := s.Segment(second)

	var gotMatch bool
	for _, sp := range spans {
		if sp.IsMatch() {
			gotMatch = true
			if sp.RefOffset < 0 || sp.RefOffset >= len(first) {
				t.Errorf("RefOffset = %d, want within first call's range [0,%d)", sp.RefOffset, len(first))
			}
		}
	}
	if !gotMatch {
		t.Fatalf("expected second call to back-reference the first call's history, got %+v", spans)
	}

	full := s.History()
	if len(full) != len(first)+len(second) {
		t.Errorf("History() length = %d, want %d", len(full), len(first)+len(second))
	}
}

func TestCollisionsTracksFalsePositives(t *testing.T) {
	s := segmenter.New(segmenter.Options{WindowSize: 4, MinMatch: 4, TableBits: 2}) // tiny table forces aliasing
	data := bytes.Repeat([]byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}, 16)
	s.Segment(data)
	// Not asserting an exact count (depends on hash distribution), just
	// that the counter is wired and doesn't panic under heavy aliasing.
	_ = s.Collisions()
}

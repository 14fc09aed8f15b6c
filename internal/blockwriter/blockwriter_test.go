package blockwriter_test

import (
	"context"
	"testing"

	"github.com/dwarfs-go/dwarfs/internal/blockwriter"
	"github.com/dwarfs-go/dwarfs/internal/codec"
	"github.com/dwarfs-go/dwarfs/internal/segmenter"
)

func newManager(blockSize int64) *blockwriter.Manager {
	return blockwriter.New(blockwriter.Options{
		BlockSize: blockSize,
		Codec:     codec.None,
		Workers:   2,
		Segmenter: segmenter.Options{WindowSize: 8, MinMatch: 8, TableBits: 10},
	})
}

func TestAddFileSingleBlockRoundTrips(t *testing.T) {
	m := newManager(1 << 20)
	ctx := context.Background()

	data := []byte("the quick brown fox jumps over the lazy dog")
	chunks, err := m.AddFile(ctx, data)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk for a single small file, got %d: %+v", len(chunks), chunks)
	}
	if chunks[0].BlockIndex != 0 || chunks[0].Offset != 0 || int(chunks[0].Size) != len(data) {
		t.Errorf("unexpected chunk: %+v", chunks[0])
	}

	sections, err := m.Finish(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sections) != 1 {
		t.Fatalf("expected 1 flushed block, got %d", len(sections))
	}
	if sections[0].Index != 0 {
		t.Errorf("section index = %d, want 0", sections[0].Index)
	}
}

func TestAddFileSplitsAcrossBlocks(t *testing.T) {
	m := newManager(16)
	ctx := context.Background()

	data := make([]byte, 40)
	for i := range data {
		data[i] = byte(i)
	}
	chunks, err := m.AddFile(ctx, data)
	if err != nil {
		t.Fatal(err)
	}

	var total int
	for _, c := range chunks {
		total += int(c.Size)
	}
	if total != len(data) {
		t.Errorf("chunk sizes sum to %d, want %d", total, len(data))
	}
	if len(chunks) < 3 {
		t.Errorf("expected at least 3 chunks splitting 40 bytes over 16-byte blocks, got %d", len(chunks))
	}

	sections, err := m.Finish(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sections) != 3 {
		t.Fatalf("expected 3 blocks (16+16+8), got %d", len(sections))
	}
}

func TestDuplicateFileDoesNotGrowPhysicalStream(t *testing.T) {
	// 64-byte blocks: the 64 literal bytes fill exactly one block, so a
	// second block would only appear if the duplicate half were stored.
	m := newManager(64)
	ctx := context.Background()

	payload := make([]byte, 64)
	for i := range payload {
		payload[i] = byte(i)
	}
	data := append(append([]byte{}, payload...), payload...)

	chunks, err := m.AddFile(ctx, data)
	if err != nil {
		t.Fatal(err)
	}

	var literalBytes int
	for _, c := range chunks {
		literalBytes += int(c.Size)
	}
	if literalBytes != len(data) {
		t.Errorf("chunk coverage = %d bytes, want %d", literalBytes, len(data))
	}

	sections, err := m.Finish(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(sections) != 1 {
		t.Fatalf("expected the duplicate half to be deduped into a single block, got %d blocks", len(sections))
	}
}

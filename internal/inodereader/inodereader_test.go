package inodereader_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/dwarfs-go/dwarfs/internal/blockcache"
	"github.com/dwarfs-go/dwarfs/internal/codec"
	"github.com/dwarfs-go/dwarfs/internal/inodereader"
	"github.com/dwarfs-go/dwarfs/internal/metadata"
)

type fixedSource struct{ block []byte }

func (s fixedSource) ReadBlock(i int64) (codec.Tag, []byte, int64, error) {
	c, _ := codec.Lookup(codec.None)
	compressed, err := c.Compress(s.block, nil)
	return codec.None, compressed, int64(len(s.block)), err
}

func TestReadAcrossTwoChunks(t *testing.T) {
	block := []byte("hello, world! this is block zero.")
	src := fixedSource{block: block}
	cache := blockcache.New(src, blockcache.Options{MaxBytes: 4096, BlockSize: int64(len(block)), Workers: 2})

	tree := &metadata.Tree{
		ChunkTable: []uint32{0, 2},
		Chunks: []metadata.Chunk{
			{BlockIndex: 0, Offset: 0, Size: 5},  // "hello"
			{BlockIndex: 0, Offset: 7, Size: 5},  // "world"
		},
	}
	r := inodereader.New(tree, cache)

	got, err := r.Read(context.Background(), 0, 0, 10)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := []byte("helloworld")
	if !bytes.Equal(got, want) {
		t.Errorf("Read = %q, want %q", got, want)
	}
}

func TestReadVFillsMultipleSpans(t *testing.T) {
	block := bytes.Repeat([]byte("x"), 16)
	copy(block, "abcdefghij")
	src := fixedSource{block: block}
	cache := blockcache.New(src, blockcache.Options{MaxBytes: 4096, BlockSize: int64(len(block)), Workers: 2})

	tree := &metadata.Tree{
		ChunkTable: []uint32{0, 1},
		Chunks:     []metadata.Chunk{{BlockIndex: 0, Offset: 0, Size: 10}},
	}
	r := inodereader.New(tree, cache)

	a := make([]byte, 4)
	b := make([]byte, 6)
	n, err := r.ReadV(context.Background(), 0, 0, []inodereader.IOVec{{Buf: a}, {Buf: b}})
	if err != nil {
		t.Fatalf("ReadV: %v", err)
	}
	if n != 10 {
		t.Fatalf("n = %d, want 10", n)
	}
	if string(a) != "abcd" || string(b) != "efghij" {
		t.Errorf("got %q %q, want abcd efghij", a, b)
	}
}

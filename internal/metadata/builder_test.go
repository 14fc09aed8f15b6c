package metadata_test

import (
	"errors"
	"testing"

	"github.com/dwarfs-go/dwarfs/internal/metadata"
)

func TestBuildTinyTree(t *testing.T) {
	// root -> a (dir) -> b.txt (file)
	in := metadata.Input{
		BlockSize: 1 << 20,
		Entries: []metadata.RawEntry{
			{Name: "", Parent: 0, Kind: metadata.KindDir},               // 0: root
			{Name: "a", Parent: 0, Kind: metadata.KindDir},              // 1: /a
			{Name: "b.txt", Parent: 1, Kind: metadata.KindFile, UniqueOf: -1, Chunks: []metadata.Chunk{{BlockIndex: 0, Offset: 0, Size: 5}}},
		},
		DirChildren: [][]int{
			{1},
			{2},
		},
	}
	// UniqueOf defaults to 0, must set -1 explicitly for non-dup files.
	in.Entries[2].UniqueOf = -1

	tree, err := metadata.Build(in)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if tree.DirCount != 2 {
		t.Errorf("DirCount = %d, want 2", tree.DirCount)
	}
	if tree.FileCount != 1 {
		t.Errorf("FileCount = %d, want 1", tree.FileCount)
	}
	begin, end, err := tree.ChunkRange(0)
	if err != nil {
		t.Fatalf("ChunkRange: %v", err)
	}
	if end-begin != 1 {
		t.Errorf("chunk range length = %d, want 1", end-begin)
	}
	if tree.Chunks[begin].Size != 5 {
		t.Errorf("chunk size = %d, want 5", tree.Chunks[begin].Size)
	}

	if err := metadata.CheckConsistency(tree); err != nil {
		t.Errorf("CheckConsistency: %v", err)
	}

	encoded, err := metadata.Encode(tree)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := metadata.Decode(encoded, metadata.CurrentSchema())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded.FileCount != tree.FileCount || len(decoded.Chunks) != len(tree.Chunks) {
		t.Errorf("round-trip mismatch: got %+v, want %+v", decoded, tree)
	}
	found := false
	for _, n := range decoded.Names {
		if n == "b.txt" {
			found = true
		}
	}
	if !found {
		t.Errorf("decoded names %v missing b.txt", decoded.Names)
	}
}

func TestCheckConsistencyRejectsBadChunkRange(t *testing.T) {
	tree := &metadata.Tree{
		BlockSize:  1024,
		FileCount:  1,
		ChunkTable: []uint32{0, 1},
		Chunks:     []metadata.Chunk{{BlockIndex: 0, Offset: 1000, Size: 100}},
		Entries:    make([]metadata.Entry, 2),
		OtherCount: 1,
	}
	err := metadata.CheckConsistency(tree)
	if err == nil {
		t.Fatal("expected chunk-range violation to be rejected")
	}
	var inv *metadata.InvariantError
	if !errors.As(err, &inv) || inv.Invariant != "chunk-range" {
		t.Fatalf("expected chunk-range violation, got %v", err)
	}
}

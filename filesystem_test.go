package dwarfs_test

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dwarfs-go/dwarfs"
	"github.com/dwarfs-go/dwarfs/internal/codec"
	"github.com/dwarfs-go/dwarfs/internal/metadata"
	"github.com/dwarfs-go/dwarfs/internal/section"
)

// buildImage assembles a minimal on-disk image: one BLOCK section
// holding fileData, then SCHEMA and METADATA describing a tree with a
// single root directory containing one file named childName.
func buildImage(t *testing.T, childName string, fileData []byte) string {
	t.Helper()

	tree, err := metadata.Build(metadata.Input{
		Entries: []metadata.RawEntry{
			{Name: "", Parent: 0, Kind: metadata.KindDir, Mode: 0o40755},
			{Name: childName, Parent: 0, Kind: metadata.KindFile, Mode: 0o100644, UniqueOf: -1,
				Chunks: []metadata.Chunk{{BlockIndex: 0, Offset: 0, Size: uint32(len(fileData))}}},
		},
		DirChildren: [][]int{{1}},
		BlockSize:   1 << 16,
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, section.WriteFileHeader(&buf))

	_, err = section.Write(&buf, section.TypeBlock, codec.None, fileData, nil)
	require.NoError(t, err)

	schemaPayload, err := metadata.EncodeSchema(metadata.CurrentSchema())
	require.NoError(t, err)
	_, err = section.Write(&buf, section.TypeSchema, codec.None, schemaPayload, nil)
	require.NoError(t, err)

	metaPayload, err := metadata.Encode(tree)
	require.NoError(t, err)
	_, err = section.Write(&buf, section.TypeMetadata, codec.None, metaPayload, nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "test.dwarfs")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestOpenStatReadFile(t *testing.T) {
	path := buildImage(t, "hello.txt", []byte("hello, dwarfs!"))

	fsys, err := dwarfs.Open(path)
	require.NoError(t, err)
	defer fsys.Close()

	fi, err := fsys.Stat("hello.txt")
	require.NoError(t, err)
	require.Equal(t, int64(len("hello, dwarfs!")), fi.Size())
	require.False(t, fi.IsDir())

	data, err := fsys.ReadFile("hello.txt")
	require.NoError(t, err)
	require.Equal(t, "hello, dwarfs!", string(data))
}

func TestReadDirListsChild(t *testing.T) {
	path := buildImage(t, "a.bin", []byte("payload"))

	fsys, err := dwarfs.Open(path)
	require.NoError(t, err)
	defer fsys.Close()

	entries, err := fsys.ReadDir(".")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "a.bin", entries[0].Name())
	require.False(t, entries[0].IsDir())
}

func TestOpenUnknownFileReturnsNotExist(t *testing.T) {
	path := buildImage(t, "present.txt", []byte("x"))

	fsys, err := dwarfs.Open(path)
	require.NoError(t, err)
	defer fsys.Close()

	_, err = fsys.Open("missing.txt")
	require.Error(t, err)
}

func TestReadVScattersAcrossBuffers(t *testing.T) {
	path := buildImage(t, "hello.txt", []byte("hello, dwarfs!"))

	fsys, err := dwarfs.Open(path)
	require.NoError(t, err)
	defer fsys.Close()

	a := make([]byte, 5)
	b := make([]byte, 9)
	n, err := fsys.ReadV(context.Background(), "hello.txt", 0, []dwarfs.IOVec{{Buf: a}, {Buf: b}})
	require.NoError(t, err)
	require.Equal(t, int64(14), n)
	require.Equal(t, "hello", string(a))
	require.Equal(t, ", dwarfs!", string(b))
}

func TestReadVRejectsDirectory(t *testing.T) {
	path := buildImage(t, "hello.txt", []byte("x"))

	fsys, err := dwarfs.Open(path)
	require.NoError(t, err)
	defer fsys.Close()

	_, err = fsys.ReadV(context.Background(), ".", 0, []dwarfs.IOVec{{Buf: make([]byte, 1)}})
	require.Error(t, err)
}

func TestDumpJSONDetailLevels(t *testing.T) {
	path := buildImage(t, "hello.txt", []byte("hello, dwarfs!"))

	fsys, err := dwarfs.Open(path)
	require.NoError(t, err)
	defer fsys.Close()

	basic, err := fsys.DumpJSON(0)
	require.NoError(t, err)
	require.Contains(t, string(basic), `"block_size"`)
	require.NotContains(t, string(basic), `"root"`)

	full, err := fsys.DumpJSON(3)
	require.NoError(t, err)
	require.Contains(t, string(full), `"hello.txt"`)
}

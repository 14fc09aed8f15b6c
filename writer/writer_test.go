package writer_test

import (
	"bytes"
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	dwarfs "github.com/dwarfs-go/dwarfs"
	"github.com/dwarfs-go/dwarfs/internal/codec"
	"github.com/dwarfs-go/dwarfs/writer"
)

func buildImage(t *testing.T, fsys fstest.MapFS, opts ...writer.Option) string {
	t.Helper()
	w, err := writer.NewWriter(append([]writer.Option{writer.WithCompression(codec.None, nil)}, opts...)...)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.AddTree(fsys, "."); err != nil {
		t.Fatalf("AddTree: %v", err)
	}

	var buf bytes.Buffer
	if err := w.Finalize(context.Background(), &buf); err != nil {
		t.Fatalf("Finalize: %v", err)
	}

	path := filepath.Join(t.TempDir(), "image.dwarfs")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write image: %v", err)
	}
	return path
}

func TestFinalizeRoundTripsFileContent(t *testing.T) {
	fsys := fstest.MapFS{
		"a.txt":     {Data: []byte("hello world"), Mode: 0o644},
		"sub/b.txt": {Data: []byte("nested file content"), Mode: 0o644},
	}

	path := buildImage(t, fsys)
	fs, err := dwarfs.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer fs.Close()

	got, err := fs.ReadFile("a.txt")
	if err != nil {
		t.Fatalf("ReadFile a.txt: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("a.txt content = %q", got)
	}

	got, err = fs.ReadFile("sub/b.txt")
	if err != nil {
		t.Fatalf("ReadFile sub/b.txt: %v", err)
	}
	if string(got) != "nested file content" {
		t.Fatalf("sub/b.txt content = %q", got)
	}
}

func TestFinalizeDedupsIdenticalFiles(t *testing.T) {
	payload := bytes.Repeat([]byte("duplicate-me "), 100)
	fsys := fstest.MapFS{
		"one.bin": {Data: payload, Mode: 0o644},
		"two.bin": {Data: append([]byte(nil), payload...), Mode: 0o644},
	}

	path := buildImage(t, fsys)
	fs, err := dwarfs.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer fs.Close()

	a, err := fs.ReadFile("one.bin")
	if err != nil {
		t.Fatalf("ReadFile one.bin: %v", err)
	}
	b, err := fs.ReadFile("two.bin")
	if err != nil {
		t.Fatalf("ReadFile two.bin: %v", err)
	}
	if !bytes.Equal(a, payload) || !bytes.Equal(b, payload) {
		t.Fatalf("dedup round trip produced wrong content")
	}
}

func TestFinalizePreservesDirectoryStructure(t *testing.T) {
	fsys := fstest.MapFS{
		"dir1/file1.txt": {Data: []byte("x"), Mode: 0o644},
		"dir2/file2.txt": {Data: []byte("y"), Mode: 0o644},
	}

	path := buildImage(t, fsys)
	fs, err := dwarfs.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer fs.Close()

	entries, err := fs.ReadDir(".")
	if err != nil {
		t.Fatalf("ReadDir .: %v", err)
	}
	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name()] = true
	}
	if !names["dir1"] || !names["dir2"] {
		t.Fatalf("root listing missing directories: %v", names)
	}

	if _, err := fs.Stat("dir1/file1.txt"); err != nil {
		t.Fatalf("Stat dir1/file1.txt: %v", err)
	}
}

func TestFinalizeWritesSymlinks(t *testing.T) {
	fsys := fstest.MapFS{
		"target.txt": {Data: []byte("target"), Mode: 0o644},
		"link":       {Data: []byte("target.txt"), Mode: 0o777 | os.ModeSymlink},
	}

	path := buildImage(t, fsys)
	fs, err := dwarfs.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer fs.Close()

	target, err := fs.ReadLink("link")
	if err != nil {
		t.Fatalf("ReadLink link: %v", err)
	}
	if target != "target.txt" {
		t.Fatalf("link target = %q, want %q", target, "target.txt")
	}
}

func TestFinalizeWritesHistoryAndIndexByDefault(t *testing.T) {
	fsys := fstest.MapFS{"a.txt": {Data: []byte("hello"), Mode: 0o644}}
	path := buildImage(t, fsys)

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read image: %v", err)
	}
	if !bytes.Contains(raw, []byte(`"block_size"`)) {
		t.Fatalf("expected a HISTORY section with a JSON payload")
	}

	// Open must still succeed with the trailing HISTORY and INDEX
	// sections present after METADATA.
	fsHandle, err := dwarfs.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer fsHandle.Close()
	if _, err := fsHandle.Stat("a.txt"); err != nil {
		t.Fatalf("Stat a.txt: %v", err)
	}
}

func TestFinalizeWithNoHistoryOmitsHistoryPayload(t *testing.T) {
	fsys := fstest.MapFS{"a.txt": {Data: []byte("hello"), Mode: 0o644}}
	path := buildImage(t, fsys, writer.WithNoHistory())

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read image: %v", err)
	}
	if bytes.Contains(raw, []byte(`"block_size"`)) {
		t.Fatalf("WithNoHistory: image still contains a history payload")
	}
}

func TestFinalizeRemoveEmptyDirs(t *testing.T) {
	fsys := fstest.MapFS{
		"keep/file.txt": {Data: []byte("x"), Mode: 0o644},
		"empty":         {Mode: fs.ModeDir | 0o755},
	}
	path := buildImage(t, fsys, writer.WithRemoveEmptyDirs(true))

	fsHandle, err := dwarfs.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer fsHandle.Close()

	entries, err := fsHandle.ReadDir(".")
	if err != nil {
		t.Fatalf("ReadDir .: %v", err)
	}
	for _, e := range entries {
		if e.Name() == "empty" {
			t.Fatalf("WithRemoveEmptyDirs: empty directory still present")
		}
	}
	if _, err := fsHandle.Stat("keep/file.txt"); err != nil {
		t.Fatalf("Stat keep/file.txt: %v", err)
	}
}

func TestFinalizeDevicesExcludedByDefault(t *testing.T) {
	fsys := fstest.MapFS{
		"a.txt": {Data: []byte("x"), Mode: 0o644},
		"dev0":  {Mode: fs.ModeDevice | 0o600},
	}
	path := buildImage(t, fsys)

	fsHandle, err := dwarfs.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer fsHandle.Close()

	if _, err := fsHandle.Stat("dev0"); err == nil {
		t.Fatalf("expected device entry to be excluded by default")
	}
}

func TestFinalizeWithHeaderPrefix(t *testing.T) {
	fsys := fstest.MapFS{"a.txt": {Data: []byte("x"), Mode: 0o644}}
	prefix := []byte("embedding-container-bytes")
	path := buildImage(t, fsys, writer.WithHeader(prefix))

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read image: %v", err)
	}
	if !bytes.HasPrefix(raw, prefix) {
		t.Fatalf("expected image to start with the configured header prefix")
	}

	fsHandle, err := dwarfs.Open(path, dwarfs.WithImageOffset(int64(len(prefix))))
	if err != nil {
		t.Fatalf("Open with image offset: %v", err)
	}
	defer fsHandle.Close()
	if _, err := fsHandle.Stat("a.txt"); err != nil {
		t.Fatalf("Stat a.txt: %v", err)
	}
}

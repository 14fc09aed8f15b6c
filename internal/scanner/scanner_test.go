package scanner_test

import (
	"io/fs"
	"sort"
	"testing"
	"testing/fstest"

	"github.com/dwarfs-go/dwarfs/internal/scanner"
	"github.com/dwarfs-go/dwarfs/internal/scanner/filter"
	"github.com/dwarfs-go/dwarfs/internal/scanner/transform"
)

func testTree() fstest.MapFS {
	return fstest.MapFS{
		"a.txt":       &fstest.MapFile{Data: []byte("hello"), Mode: 0644},
		"sub":         &fstest.MapFile{Mode: fs.ModeDir | 0755},
		"sub/b.txt":   &fstest.MapFile{Data: []byte("world"), Mode: 0644},
		"sub/c.o":     &fstest.MapFile{Data: []byte("obj"), Mode: 0644},
	}
}

func TestScanVisitsEveryEntry(t *testing.T) {
	s := scanner.New(testTree(), scanner.Options{})
	var paths []string
	err := s.Scan(".", func(e scanner.Entry) error {
		paths = append(paths, e.Path)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	sort.Strings(paths)
	want := []string{"a.txt", "sub", "sub/b.txt", "sub/c.o"}
	if len(paths) != len(want) {
		t.Fatalf("got %v, want %v", paths, want)
	}
	for i := range want {
		if paths[i] != want[i] {
			t.Errorf("paths[%d] = %q, want %q", i, paths[i], want[i])
		}
	}
}

func TestScanFilterExcludesObjFiles(t *testing.T) {
	f := filter.New(filter.Rule{Pattern: "*.o", Include: false})
	s := scanner.New(testTree(), scanner.Options{Filter: f})
	var paths []string
	err := s.Scan(".", func(e scanner.Entry) error {
		paths = append(paths, e.Path)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range paths {
		if p == "sub/c.o" {
			t.Errorf("filtered path %q was visited", p)
		}
	}
}

func TestScanChmodAddsExecBit(t *testing.T) {
	c, err := transform.Parse("u+x", 0)
	if err != nil {
		t.Fatal(err)
	}
	s := scanner.New(testTree(), scanner.Options{Chmod: c})
	var gotMode fs.FileMode
	err = s.Scan(".", func(e scanner.Entry) error {
		if e.Path == "a.txt" {
			gotMode = e.Info.Mode()
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if gotMode.Perm() != 0744 {
		t.Errorf("a.txt mode = %v, want perm 0744", gotMode)
	}
}

func TestScanClassifiesDirAndFile(t *testing.T) {
	s := scanner.New(testTree(), scanner.Options{})
	kinds := map[string]scanner.Kind{}
	err := s.Scan(".", func(e scanner.Entry) error {
		kinds[e.Path] = e.Kind
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if kinds["sub"] != scanner.KindDir {
		t.Errorf("sub classified as %v, want KindDir", kinds["sub"])
	}
	if kinds["a.txt"] != scanner.KindFile {
		t.Errorf("a.txt classified as %v, want KindFile", kinds["a.txt"])
	}
}

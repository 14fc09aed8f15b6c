//go:build !unix

package mmap

import (
	"io"
	"os"
)

// fileImage falls back to plain ReadAt on platforms without mmap support.
type fileImage struct {
	f    *os.File
	size int64
}

func Open(f *os.File, lock LockMode) (Image, error) {
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	return &fileImage{f: f, size: st.Size()}, nil
}

func (m *fileImage) Size() int64 { return m.size }

func (m *fileImage) ReadAt(p []byte, off int64) (int, error) {
	return m.f.ReadAt(p, off)
}

func (m *fileImage) Advise(off, n int64, sequential bool) {}

func (m *fileImage) Close() error { return m.f.Close() }

var _ io.ReaderAt = (*fileImage)(nil)

//go:build unix

package mmap

import (
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// unixImage maps a file into the process's address space with
// unix.Mmap and serves reads directly out of the mapping.
type unixImage struct {
	f    *os.File
	data []byte
}

// Open maps all of f, from byte 0, according to lock. f is owned by the returned Image and closed by Close.
func Open(f *os.File, lock LockMode) (Image, error) {
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := st.Size()
	if size == 0 {
		f.Close()
		return nil, errors.New("mmap: empty file")
	}
	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("mmap: %w", err)
	}
	img := &unixImage{f: f, data: data}
	if lock == LockTry || lock == LockMust {
		if err := unix.Mlock(data); err != nil {
			if lock == LockMust {
				unix.Munmap(data)
				f.Close()
				return nil, fmt.Errorf("mmap: mlock: %w", err)
			}
		}
	}
	return img, nil
}

func (m *unixImage) Size() int64 { return int64(len(m.data)) }

func (m *unixImage) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (m *unixImage) Advise(off, n int64, sequential bool) {
	if off < 0 || off >= int64(len(m.data)) {
		return
	}
	end := off + n
	if end > int64(len(m.data)) {
		end = int64(len(m.data))
	}
	advice := unix.MADV_WILLNEED
	if !sequential {
		advice = unix.MADV_DONTNEED
	}
	_ = unix.Madvise(m.data[off:end], advice)
}

func (m *unixImage) Close() error {
	err := unix.Munmap(m.data)
	if cerr := m.f.Close(); err == nil {
		err = cerr
	}
	return err
}

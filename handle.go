package dwarfs

import (
	"io"
	"io/fs"
	"path"
)

// fileHandle is the fs.File returned for a regular file, symlink, or
// device entry. Read/ReadAt are the only ways to pull bytes out; there
// is no write path since the image is read-only.
type fileHandle struct {
	fsys       *Filesystem
	entryIndex uint32
	name       string
	offset     int64
}

var (
	_ fs.File     = (*fileHandle)(nil)
	_ io.ReaderAt = (*fileHandle)(nil)
)

func (h *fileHandle) Stat() (fs.FileInfo, error) {
	return h.fsys.statEntry(h.entryIndex, path.Base(h.name)), nil
}

func (h *fileHandle) Read(p []byte) (int, error) {
	fi, err := h.Stat()
	if err != nil {
		return 0, err
	}
	if h.offset >= fi.Size() {
		return 0, io.EOF
	}
	remaining := fi.Size() - h.offset
	want := int64(len(p))
	if want > remaining {
		want = remaining
	}
	data, err := h.fsys.readAt(h.entryIndex, h.offset, want)
	if err != nil {
		return 0, err
	}
	n := copy(p, data)
	h.offset += int64(n)
	return n, nil
}

func (h *fileHandle) ReadAt(p []byte, off int64) (int, error) {
	fi, err := h.Stat()
	if err != nil {
		return 0, err
	}
	if off >= fi.Size() {
		return 0, io.EOF
	}
	remaining := fi.Size() - off
	want := int64(len(p))
	if want > remaining {
		want = remaining
	}
	data, err := h.fsys.readAt(h.entryIndex, off, want)
	if err != nil {
		return 0, err
	}
	n := copy(p, data)
	if int64(n) < int64(len(p)) {
		return n, io.EOF
	}
	return n, nil
}

func (h *fileHandle) Close() error { return nil }

// dirHandle is the fs.ReadDirFile returned for a directory entry.
type dirHandle struct {
	fsys       *Filesystem
	entryIndex uint32
	name       string
	children   []fs.DirEntry
	pos        int
	loaded     bool
}

var _ fs.ReadDirFile = (*dirHandle)(nil)

func (h *dirHandle) Stat() (fs.FileInfo, error) {
	return h.fsys.statEntry(h.entryIndex, path.Base(h.name)), nil
}

func (h *dirHandle) Read(p []byte) (int, error) {
	return 0, fs.ErrInvalid
}

func (h *dirHandle) Close() error {
	h.children = nil
	return nil
}

func (h *dirHandle) ReadDir(n int) ([]fs.DirEntry, error) {
	if !h.loaded {
		all, err := h.fsys.ReadDir(h.name)
		if err != nil {
			return nil, err
		}
		h.children = all
		h.loaded = true
	}
	remaining := h.children[h.pos:]
	if n <= 0 {
		h.pos = len(h.children)
		return remaining, nil
	}
	if len(remaining) == 0 {
		return nil, io.EOF
	}
	if n > len(remaining) {
		n = len(remaining)
	}
	out := remaining[:n]
	h.pos += n
	return out, nil
}

// Package fuseadapter bridges a read-only *dwarfs.Filesystem onto the
// kernel's FUSE protocol, adapting go-fuse/v2's fs.InodeEmbedder tree the
// same way the on-disk fuse build tag adapts an Inode in the image itself:
// a node here carries just enough state (its resolved path) to answer
// Lookup/Getattr/Readdir/Open/Read/Readlink by delegating straight back to
// the already-decoded metadata tree.
package fuseadapter

import (
	"context"
	"io/fs"
	"path"
	"sync"
	"syscall"

	fusego "github.com/hanwen/go-fuse/v2/fuse"
	hfs "github.com/hanwen/go-fuse/v2/fs"

	"github.com/dwarfs-go/dwarfs"
)

// node is one FUSE inode, identified by its slash-separated path within
// the image (the root node's path is "").
type node struct {
	hfs.Inode

	fsys *dwarfs.Filesystem
	path string
}

var (
	_ hfs.InodeEmbedder  = (*node)(nil)
	_ hfs.NodeLookuper   = (*node)(nil)
	_ hfs.NodeReaddirer  = (*node)(nil)
	_ hfs.NodeOpendirer  = (*node)(nil)
	_ hfs.NodeGetattrer  = (*node)(nil)
	_ hfs.NodeOpener     = (*node)(nil)
	_ hfs.NodeReader     = (*node)(nil)
	_ hfs.NodeReadlinker = (*node)(nil)
)

// Root builds the root node of a read-only FUSE tree over fsys.
func Root(fsys *dwarfs.Filesystem) hfs.InodeEmbedder {
	return &node{fsys: fsys, path: ""}
}

// Mount mounts fsys at mountpoint and returns the running server once the
// mount is up, without blocking; call Unmount on the returned server to
// tear it down. opts may be nil.
func Mount(mountpoint string, fsys *dwarfs.Filesystem, opts *hfs.Options) (*fusego.Server, error) {
	if opts == nil {
		opts = &hfs.Options{}
	}
	opts.MountOptions.Name = "dwarfs"
	opts.MountOptions.Options = append(opts.MountOptions.Options, "ro")
	server, err := hfs.Mount(mountpoint, Root(fsys), opts)
	if err != nil {
		return nil, err
	}
	return server, nil
}

func (n *node) childPath(name string) string {
	if n.path == "" {
		return name
	}
	return path.Join(n.path, name)
}

func toErrno(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case isErr(err, fs.ErrNotExist):
		return syscall.ENOENT
	case isErr(err, fs.ErrInvalid):
		return syscall.EINVAL
	default:
		return syscall.EIO
	}
}

func isErr(err, target error) bool {
	for e := err; e != nil; {
		if e == target {
			return true
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		e = u.Unwrap()
	}
	return false
}

func modeToFuse(m fs.FileMode) uint32 {
	return dwarfs.ModeToUnix(m)
}

func fillAttr(attr *fusego.Attr, ino uint64, fi fs.FileInfo) {
	attr.Ino = ino
	attr.Mode = modeToFuse(fi.Mode())
	attr.Nlink = 1
	if !fi.IsDir() {
		attr.Size = uint64(fi.Size())
	}
	mtime := fi.ModTime()
	attr.SetTimes(&mtime, &mtime, &mtime)
}

// Lookup implements hfs.NodeLookuper.
func (n *node) Lookup(ctx context.Context, name string, out *fusego.EntryOut) (*hfs.Inode, syscall.Errno) {
	childPath := n.childPath(name)
	fi, err := n.fsys.Stat(childPath)
	if err != nil {
		return nil, toErrno(err)
	}

	mode := modeToFuse(fi.Mode())
	child := &node{fsys: n.fsys, path: childPath}
	stable := hfs.StableAttr{Mode: mode & syscall.S_IFMT}
	inode := n.NewInode(ctx, child, stable)
	fillAttr(&out.Attr, inode.StableAttr().Ino, fi)
	return inode, 0
}

// dirStream is a static, pre-fetched directory listing.
type dirStream struct {
	mu      sync.Mutex
	entries []fusego.DirEntry
	pos     int
}

func (s *dirStream) HasNext() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pos < len(s.entries)
}

func (s *dirStream) Next() (fusego.DirEntry, syscall.Errno) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos >= len(s.entries) {
		return fusego.DirEntry{}, syscall.ENOENT
	}
	e := s.entries[s.pos]
	s.pos++
	return e, 0
}

func (s *dirStream) Close() {}

// Opendir implements hfs.NodeOpendirer.
func (n *node) Opendir(ctx context.Context) syscall.Errno {
	if _, err := n.fsys.ReadDir(n.pathOrDot()); err != nil {
		return toErrno(err)
	}
	return 0
}

// Readdir implements hfs.NodeReaddirer.
func (n *node) Readdir(ctx context.Context) (hfs.DirStream, syscall.Errno) {
	children, err := n.fsys.ReadDir(n.pathOrDot())
	if err != nil {
		return nil, toErrno(err)
	}
	entries := make([]fusego.DirEntry, 0, len(children))
	for _, c := range children {
		info, err := c.Info()
		if err != nil {
			continue
		}
		entries = append(entries, fusego.DirEntry{
			Name: c.Name(),
			Mode: modeToFuse(info.Mode()),
		})
	}
	return &dirStream{entries: entries}, 0
}

func (n *node) pathOrDot() string {
	if n.path == "" {
		return "."
	}
	return n.path
}

// Getattr implements hfs.NodeGetattrer.
func (n *node) Getattr(ctx context.Context, f hfs.FileHandle, out *fusego.AttrOut) syscall.Errno {
	fi, err := n.fsys.Stat(n.pathOrDot())
	if err != nil {
		return toErrno(err)
	}
	fillAttr(&out.Attr, n.StableAttr().Ino, fi)
	return 0
}

// Open implements hfs.NodeOpener. The image is immutable once opened, so
// every handle can share the same read path and there's nothing to track
// per-open beyond the kernel's own page cache.
func (n *node) Open(ctx context.Context, flags uint32) (hfs.FileHandle, uint32, syscall.Errno) {
	return nil, fusego.FOPEN_KEEP_CACHE, 0
}

// Read implements hfs.NodeReader, scattering straight into dest via the
// block cache without an intermediate ReadFile copy.
func (n *node) Read(ctx context.Context, f hfs.FileHandle, dest []byte, off int64) (fusego.ReadResult, syscall.Errno) {
	nRead, err := n.fsys.ReadV(ctx, n.path, off, []dwarfs.IOVec{{Buf: dest}})
	if err != nil {
		return nil, toErrno(err)
	}
	return fusego.ReadResultData(dest[:nRead]), 0
}

// Readlink implements hfs.NodeReadlinker.
func (n *node) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	target, err := n.fsys.ReadLink(n.path)
	if err != nil {
		return nil, toErrno(err)
	}
	return []byte(target), 0
}

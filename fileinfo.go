package dwarfs

import (
	"io/fs"
	"time"

	"github.com/dwarfs-go/dwarfs/internal/metadata"
)

// fileInfo implements fs.FileInfo over one resolved directory entry.
type fileInfo struct {
	name  string
	size  int64
	mode  fs.FileMode
	mtime time.Time
	nlink int
	uid   uint32
	gid   uint32
}

var _ fs.FileInfo = (*fileInfo)(nil)

func (fi *fileInfo) Name() string       { return fi.name }
func (fi *fileInfo) Size() int64        { return fi.size }
func (fi *fileInfo) Mode() fs.FileMode  { return fi.mode }
func (fi *fileInfo) ModTime() time.Time { return fi.mtime }
func (fi *fileInfo) IsDir() bool        { return fi.mode.IsDir() }
func (fi *fileInfo) Sys() any           { return extraStat{Nlink: fi.nlink, Uid: fi.uid, Gid: fi.gid} }

// extraStat carries the fields io/fs.FileInfo has no room for; callers
// that need them type-assert FileInfo.Sys().
type extraStat struct {
	Nlink int
	Uid   uint32
	Gid   uint32
}

// dirent implements fs.DirEntry over one directory child, deferring the
// full Stat cost until Info is actually called.
type dirent struct {
	fsys       *Filesystem
	entryIndex uint32
}

var _ fs.DirEntry = dirent{}

func (d dirent) Name() string { return d.fsys.nameOf(d.entryIndex) }

func (d dirent) IsDir() bool {
	return d.fsys.entryKind(d.entryIndex) == metadata.KindDir
}

func (d dirent) Type() fs.FileMode {
	return d.fsys.statEntry(d.entryIndex, d.Name()).Mode().Type()
}

func (d dirent) Info() (fs.FileInfo, error) {
	return d.fsys.statEntry(d.entryIndex, d.Name()), nil
}

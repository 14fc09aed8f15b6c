// Package dwarfs implements a read-only, deduplicating, compressed
// archive filesystem: Open parses an image built by the writer package
// and returns a Filesystem satisfying io/fs.FS (plus Stat/ReadDir/
// Readlink) over its directory tree.
package dwarfs

import (
	"context"
	"io/fs"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/dwarfs-go/dwarfs/internal/blockcache"
	"github.com/dwarfs-go/dwarfs/internal/codec"
	"github.com/dwarfs-go/dwarfs/internal/inodereader"
	"github.com/dwarfs-go/dwarfs/internal/metadata"
	"github.com/dwarfs-go/dwarfs/internal/mmap"
	"github.com/dwarfs-go/dwarfs/internal/section"
)

// Filesystem is a read-only view over one opened image.
type Filesystem struct {
	img   mmap.Image
	tree  *metadata.Tree
	cache *blockcache.Cache
	rdr   *inodereader.Reader

	blockOffsets []int64 // byte offset of each BLOCK section's header in img
	enableNlink  bool
	noCheck      bool

	index        []section.IndexEntry // from the optional trailing INDEX section, if present
	historyBytes []byte                // raw HISTORY section payload, if present
}

var (
	_ fs.FS         = (*Filesystem)(nil)
	_ fs.StatFS     = (*Filesystem)(nil)
	_ fs.ReadDirFS  = (*Filesystem)(nil)
	_ fs.ReadLinkFS = (*Filesystem)(nil)
)

// blockSourceAdapter lets Filesystem satisfy blockcache.BlockSource
// without exposing image/section internals on Filesystem itself.
type blockSourceAdapter struct {
	fsys *Filesystem
}

func (a blockSourceAdapter) ReadBlock(blockIndex int64) (codec.Tag, []byte, int64, error) {
	if blockIndex < 0 || int(blockIndex) >= len(a.fsys.blockOffsets) {
		return 0, nil, 0, &RangeError{Kind: "block", Index: blockIndex, Limit: int64(len(a.fsys.blockOffsets))}
	}
	hdr, payload, _, err := section.Read(a.fsys.img, a.fsys.blockOffsets[blockIndex], a.fsys.noCheck)
	if err != nil {
		return 0, nil, 0, &DecodeError{Block: blockIndex, Err: err}
	}
	return hdr.Codec, payload, int64(hdr.UncompressedSize), nil
}

// entryPath resolves an unrooted, slash-separated io/fs path (no leading
// "/") to its entry index, walking dir_entries with a binary search per
// component.
func (f *Filesystem) entryPath(name string) (uint32, error) {
	if name == "." || name == "" {
		return f.rootEntry(), nil
	}
	if !fs.ValidPath(name) {
		return 0, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}

	cur := metadata.RootDirInode
	curEntry := f.rootEntry()
	for _, part := range strings.Split(name, "/") {
		dirEnt, err := f.lookupChild(cur, part)
		if err != nil {
			return 0, &fs.PathError{Op: "open", Path: name, Err: err}
		}
		curEntry = dirEnt.EntryIndex
		kind := f.entryKind(curEntry)
		if kind == metadata.KindDir {
			cur = f.dirInodeOf(curEntry)
		} else {
			cur = -1
		}
	}
	return curEntry, nil
}

// rootEntry returns the root directory's own entry index. Entry index
// and inode number coincide throughout Tree (entries are built in rank
// order), so the root directory's entry is always at RootDirInode.
func (f *Filesystem) rootEntry() uint32 {
	return metadata.RootDirInode
}

// dirInodeOf returns the directory-rank inode index for an entry known
// to be a directory; rank ordering puts directories in [0, DirCount) in
// entry order, matching InodeNum on the Entry record.
func (f *Filesystem) dirInodeOf(entryIndex uint32) int {
	return int(f.tree.Entries[entryIndex].InodeNum)
}

func (f *Filesystem) entryKind(entryIndex uint32) metadata.InodeKind {
	return f.tree.InodeKindOf(int(f.tree.Entries[entryIndex].InodeNum))
}

// lookupChild binary-searches directory d's sorted child range for name.
func (f *Filesystem) lookupChild(d int, name string) (metadata.DirEntry, error) {
	if d < 0 || d+1 >= len(f.tree.Directories) {
		return metadata.DirEntry{}, fs.ErrNotExist
	}
	begin := f.tree.Directories[d].FirstEntry
	end := f.tree.Directories[d+1].FirstEntry
	children := f.tree.DirEntries[begin:end]
	i := sort.Search(len(children), func(i int) bool {
		return f.nameOf(children[i].EntryIndex) >= name
	})
	if i >= len(children) || f.nameOf(children[i].EntryIndex) != name {
		return metadata.DirEntry{}, fs.ErrNotExist
	}
	return children[i], nil
}

func (f *Filesystem) nameOf(entryIndex uint32) string {
	return f.tree.Names[f.tree.Entries[entryIndex].NameIndex]
}

// Open implements fs.FS.
func (f *Filesystem) Open(name string) (fs.File, error) {
	entryIndex, err := f.entryPath(name)
	if err != nil {
		return nil, err
	}
	kind := f.entryKind(entryIndex)
	if kind == metadata.KindDir {
		return &dirHandle{fsys: f, entryIndex: entryIndex, name: name}, nil
	}
	return &fileHandle{fsys: f, entryIndex: entryIndex, name: name}, nil
}

// Stat implements fs.StatFS.
func (f *Filesystem) Stat(name string) (fs.FileInfo, error) {
	entryIndex, err := f.entryPath(name)
	if err != nil {
		return nil, err
	}
	return f.statEntry(entryIndex, path.Base(name)), nil
}

// ReadDir implements fs.ReadDirFS.
func (f *Filesystem) ReadDir(name string) ([]fs.DirEntry, error) {
	entryIndex, err := f.entryPath(name)
	if err != nil {
		return nil, err
	}
	if f.entryKind(entryIndex) != metadata.KindDir {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrInvalid}
	}
	d := f.dirInodeOf(entryIndex)
	begin := f.tree.Directories[d].FirstEntry
	end := f.tree.Directories[d+1].FirstEntry
	out := make([]fs.DirEntry, 0, end-begin)
	for _, de := range f.tree.DirEntries[begin:end] {
		out = append(out, dirent{fsys: f, entryIndex: de.EntryIndex})
	}
	return out, nil
}

// ReadLink implements fs.ReadLinkFS.
func (f *Filesystem) ReadLink(name string) (string, error) {
	entryIndex, err := f.entryPath(name)
	if err != nil {
		return "", err
	}
	if f.entryKind(entryIndex) != metadata.KindSymlink {
		return "", &fs.PathError{Op: "readlink", Path: name, Err: fs.ErrInvalid}
	}
	return f.symlinkTarget(entryIndex), nil
}

func (f *Filesystem) symlinkTarget(entryIndex uint32) string {
	inode := f.tree.Entries[entryIndex].InodeNum
	rel := int(inode) - f.tree.DirCount
	idx := f.tree.SymlinkTable[rel]
	return f.tree.Symlinks[idx]
}

// Lstat implements fs.ReadLinkFS's stat-without-following requirement;
// since symlinks are never transparently followed by this Filesystem,
// Stat already behaves like Lstat.
func (f *Filesystem) Lstat(name string) (fs.FileInfo, error) { return f.Stat(name) }

func (f *Filesystem) statEntry(entryIndex uint32, base string) fs.FileInfo {
	e := f.tree.Entries[entryIndex]
	nlink := 1
	if f.enableNlink && f.entryKind(entryIndex) == metadata.KindFile {
		nlink = f.tree.Nlink(entryIndex)
	}
	size := int64(0)
	if f.entryKind(entryIndex) == metadata.KindFile {
		rel := int(e.InodeNum) - f.tree.DirCount - f.tree.SymlinkCount
		unique := f.tree.ResolveUniqueFileInode(rel)
		if begin, end, err := f.tree.ChunkRange(unique); err == nil {
			for _, c := range f.tree.Chunks[begin:end] {
				size += int64(c.Size)
			}
		}
	}
	return &fileInfo{
		name:  base,
		size:  size,
		mode:  UnixToMode(f.tree.Modes[e.Mode]),
		mtime: time.Unix(int64(f.tree.TimestampBase+e.MtimeOffset), 0),
		nlink: nlink,
		uid:   f.tree.Uids[e.OwnerIndex],
		gid:   f.tree.Gids[e.GroupIndex],
	}
}

// ReadFile reads a file inode's entire contents.
func (f *Filesystem) ReadFile(name string) ([]byte, error) {
	entryIndex, err := f.entryPath(name)
	if err != nil {
		return nil, err
	}
	if f.entryKind(entryIndex) != metadata.KindFile {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrInvalid}
	}
	fi := f.statEntry(entryIndex, "")
	return f.readAt(entryIndex, 0, fi.Size())
}

func (f *Filesystem) fileRelInode(entryIndex uint32) int {
	e := f.tree.Entries[entryIndex]
	rel := int(e.InodeNum) - f.tree.DirCount - f.tree.SymlinkCount
	return f.tree.ResolveUniqueFileInode(rel)
}

func (f *Filesystem) readAt(entryIndex uint32, offset, size int64) ([]byte, error) {
	return f.rdr.Read(context.Background(), f.fileRelInode(entryIndex), offset, size)
}

// IOVec is one destination span for ReadV, mirroring a POSIX iovec.
type IOVec = inodereader.IOVec

// ReadV fills iov's spans from name's content starting at offset,
// scattering the read across the destination buffers without an
// intermediate contiguous copy. It returns the total number of bytes
// written across all spans.
func (f *Filesystem) ReadV(ctx context.Context, name string, offset int64, iov []IOVec) (int64, error) {
	entryIndex, err := f.entryPath(name)
	if err != nil {
		return 0, err
	}
	if f.entryKind(entryIndex) != metadata.KindFile {
		return 0, &fs.PathError{Op: "readv", Path: name, Err: fs.ErrInvalid}
	}
	return f.rdr.ReadV(ctx, f.fileRelInode(entryIndex), offset, iov)
}

// Close releases the underlying image mapping.
func (f *Filesystem) Close() error {
	return f.img.Close()
}

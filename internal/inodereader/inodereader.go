// Package inodereader translates (inode, offset, size) read requests
// into the ordered block-range requests the block cache serves.
package inodereader

import (
	"context"
	"fmt"
	"sort"

	"github.com/dwarfs-go/dwarfs/internal/blockcache"
	"github.com/dwarfs-go/dwarfs/internal/metadata"
)

// Reader answers byte-range reads against one file inode's chunk list.
type Reader struct {
	tree  *metadata.Tree
	cache *blockcache.Cache
}

// New creates a Reader over tree's chunk tables, fetching block bytes
// from cache.
func New(tree *metadata.Tree, cache *blockcache.Cache) *Reader {
	return &Reader{tree: tree, cache: cache}
}

// subRequest is one block-range slice needed to satisfy part of a read.
type subRequest struct {
	blockIndex int64
	blockBegin int64
	blockEnd   int64
	destOffset int
}

// plan binary-searches the file's chunk range for the first chunk
// containing offset, then walks forward emitting block-range requests
// until size bytes are covered.
func (r *Reader) plan(fileRelInode int, offset, size int64) ([]subRequest, error) {
	begin, end, err := r.tree.ChunkRange(fileRelInode)
	if err != nil {
		return nil, err
	}
	chunks := r.tree.Chunks[begin:end]

	// cumulative[i] is the file-relative byte offset where chunks[i] starts.
	cumulative := make([]int64, len(chunks)+1)
	for i, c := range chunks {
		cumulative[i+1] = cumulative[i] + int64(c.Size)
	}
	total := cumulative[len(chunks)]
	if offset < 0 || offset > total {
		return nil, fmt.Errorf("inodereader: offset %d out of range (size %d)", offset, total)
	}
	if offset+size > total {
		size = total - offset
	}
	if size <= 0 {
		return nil, nil
	}

	startIdx := sort.Search(len(chunks), func(i int) bool { return cumulative[i+1] > offset })

	var reqs []subRequest
	remaining := size
	pos := offset
	destOffset := 0
	for i := startIdx; i < len(chunks) && remaining > 0; i++ {
		c := chunks[i]
		chunkStart := cumulative[i]
		withinChunk := pos - chunkStart
		avail := int64(c.Size) - withinChunk
		take := remaining
		if take > avail {
			take = avail
		}
		reqs = append(reqs, subRequest{
			blockIndex: int64(c.BlockIndex),
			blockBegin: int64(c.Offset) + withinChunk,
			blockEnd:   int64(c.Offset) + withinChunk + take,
			destOffset: destOffset,
		})
		pos += take
		remaining -= take
		destOffset += int(take)
	}
	return reqs, nil
}

// Read fills and returns a byte slice of at most size bytes starting at
// offset within the file, memcpy'ing cache slices into a single
// contiguous buffer.
func (r *Reader) Read(ctx context.Context, fileRelInode int, offset, size int64) ([]byte, error) {
	reqs, err := r.plan(fileRelInode, offset, size)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, nil
	}
	total := 0
	for _, sr := range reqs {
		total += int(sr.blockEnd - sr.blockBegin)
	}
	out := make([]byte, total)
	for _, sr := range reqs {
		data, err := r.cache.Read(ctx, sr.blockIndex, sr.blockBegin, sr.blockEnd)
		if err != nil {
			return nil, err
		}
		copy(out[sr.destOffset:], data)
	}
	return out, nil
}

// IOVec is one destination span for ReadV, mirroring a POSIX iovec.
type IOVec struct {
	Buf []byte
}

// ReadV fills a list of IOVec spans from [offset, offset+totalSize)
// without an intermediate contiguous copy: each cache slice is copied
// directly into the iovec span(s) it overlaps. This is the one place
// bytes are still copied rather than handed out zero-copy, since the
// destination spans are caller-owned buffers, not slices backed by the
// block cache's own arrays.
func (r *Reader) ReadV(ctx context.Context, fileRelInode int, offset int64, iov []IOVec) (int64, error) {
	var totalSize int64
	for _, v := range iov {
		totalSize += int64(len(v.Buf))
	}
	reqs, err := r.plan(fileRelInode, offset, totalSize)
	if err != nil {
		return 0, err
	}

	var written int64
	iovIdx, iovPos := 0, 0
	for _, sr := range reqs {
		data, err := r.cache.Read(ctx, sr.blockIndex, sr.blockBegin, sr.blockEnd)
		if err != nil {
			return written, err
		}
		for len(data) > 0 {
			if iovIdx >= len(iov) {
				return written, fmt.Errorf("inodereader: iovec capacity exhausted")
			}
			space := iov[iovIdx].Buf[iovPos:]
			n := copy(space, data)
			data = data[n:]
			iovPos += n
			written += int64(n)
			if iovPos == len(iov[iovIdx].Buf) {
				iovIdx++
				iovPos = 0
			}
		}
	}
	return written, nil
}

// Package dedup finds whole-file duplicates so the writer only segments
// and stores one physical copy of content that appears more than once
// in the source tree. Candidates are grouped by size first, since two
// files of different size can never be byte-identical; within a size
// bucket, a content hash decides real duplicates from hash collisions.
package dedup

import (
	"io"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Deduper tracks, per file size, the content hash of each unique file
// seen so far. It is safe for concurrent use by multiple scanner
// workers hashing different files at once.
type Deduper struct {
	mu      sync.Mutex
	buckets map[int64]*sizeBucket
}

// sizeBucket serializes resolution for every file sharing one size:
// the first file of a given size to reach Resolve commits its hash
// before any later file of that size can be compared against it, which
// is the "barrier" spec.md describes — without it, two files being
// hashed concurrently could both decide they are the unique copy.
type sizeBucket struct {
	mu     sync.Mutex
	byHash map[uint64]int // content hash -> index of the first (unique) file with it
}

// New creates an empty Deduper.
func New() *Deduper {
	return &Deduper{buckets: make(map[int64]*sizeBucket)}
}

func (d *Deduper) bucket(size int64) *sizeBucket {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buckets[size]
	if !ok {
		b = &sizeBucket{byHash: make(map[uint64]int)}
		d.buckets[size] = b
	}
	return b
}

// Resolve registers file index as having content hash for a file of the
// given size, and reports whether it duplicates an already-registered
// file. The first caller for any (size, hash) pair always gets
// isDuplicate=false; every later caller with the same (size, hash) gets
// isDuplicate=true and the original's index.
func (d *Deduper) Resolve(size int64, index int, hash uint64) (uniqueIndex int, isDuplicate bool) {
	b := d.bucket(size)
	b.mu.Lock()
	defer b.mu.Unlock()
	if existing, ok := b.byHash[hash]; ok {
		return existing, true
	}
	b.byHash[hash] = index
	return index, false
}

// HasCandidate reports whether any other file of this size has already
// been registered, letting a caller skip hashing files whose size is
// unique in the tree (they cannot be duplicates of anything).
func (d *Deduper) HasCandidate(size int64) bool {
	d.mu.Lock()
	b, ok := d.buckets[size]
	d.mu.Unlock()
	if !ok {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.byHash) > 0
}

// HashFile computes the content hash used for dedup comparisons.
func HashFile(r io.Reader) (uint64, error) {
	h := xxhash.New()
	if _, err := io.Copy(h, r); err != nil {
		return 0, err
	}
	return h.Sum64(), nil
}

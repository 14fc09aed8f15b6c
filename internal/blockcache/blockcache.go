// Package blockcache implements a concurrent LRU cache of partially
// decompressed blocks with request coalescing: many overlapping reads
// against the same block share one decompression pass, and a read that
// needs only an already-decoded prefix never blocks on decoding the rest.
package blockcache

import (
	"container/list"
	"context"
	"fmt"
	"sync"

	"github.com/dwarfs-go/dwarfs/internal/codec"
	"github.com/dwarfs-go/dwarfs/internal/workerpool"
)

// BlockSource resolves a block index to its codec tag and compressed
// bytes; the cache calls this exactly once per decompression attempt.
type BlockSource interface {
	ReadBlock(blockIndex int64) (tag codec.Tag, compressed []byte, uncompressedSize int64, err error)
}

// Options configures a Cache.
type Options struct {
	MaxBytes                    int64
	BlockSize                   int64
	Workers                     int
	DecompressRatio             float64 // round the tail up to full decode past this fraction
	SequentialPrefetchThreshold int
	PrefetchDepth               int
}

// entry tracks one cached block (decoded at least as far as its requests
// needed, not necessarily to the end) and its position in the LRU list.
type entry struct {
	block *SharedBlock
	elem  *list.Element
}

// Cache is the concurrent, partially-decompressing block LRU. Every
// reachable RequestSet lives behind a mutex-guarded map rather than a
// detached weak pointer, so there is nothing to expire: a lookup either
// finds the live set under the lock or it doesn't exist.
type Cache struct {
	src  BlockSource
	opt  Options
	pool *workerpool.Pool

	mu      sync.Mutex // guards lru, lruList, active
	lru     map[int64]*entry
	lruList *list.List
	active  map[int64]*RequestSet

	muDec         sync.Mutex // guards decompressing; acquired after mu, never before
	decompressing map[int64]*RequestSet

	seqMu   sync.Mutex
	seqLast int64
	seqRun  int
}

// New creates a Cache backed by src.
func New(src BlockSource, opt Options) *Cache {
	if opt.BlockSize <= 0 {
		opt.BlockSize = 1 << 20
	}
	if opt.SequentialPrefetchThreshold <= 0 {
		opt.SequentialPrefetchThreshold = 2
	}
	if opt.PrefetchDepth <= 0 {
		opt.PrefetchDepth = 4
	}
	return &Cache{
		src:           src,
		opt:           opt,
		pool:          workerpool.New(opt.Workers),
		lru:           make(map[int64]*entry),
		lruList:       list.New(),
		active:        make(map[int64]*RequestSet),
		decompressing: make(map[int64]*RequestSet),
	}
}

// maxEntries is the cache's block-count capacity, clamped to at least 1.
func (c *Cache) maxEntries() int64 {
	n := c.opt.MaxBytes / c.opt.BlockSize
	if n < 1 {
		return 1
	}
	return n
}

// Read returns the decompressed bytes [begin, end) of block blockIndex,
// blocking until that much has been decoded.
func (c *Cache) Read(ctx context.Context, blockIndex, begin, end int64) ([]byte, error) {
	c.noteSequentialAccess(blockIndex)

	result := make(chan rangeResult, 1)
	if data, done := c.fastPath(blockIndex, begin, end, result); done {
		return data, nil
	}

	select {
	case r := <-result:
		return r.data, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fastPath attempts to satisfy the request without waiting on a worker.
// It returns done=true with the data when it can; otherwise it has
// arranged for result to receive the answer once a worker produces it.
func (c *Cache) fastPath(blockIndex, begin, end int64, result chan rangeResult) ([]byte, bool) {
	c.mu.Lock()

	if e, ok := c.lru[blockIndex]; ok && e.block.DecodedEnd() >= end {
		c.lruList.MoveToFront(e.elem)
		c.mu.Unlock()
		return e.block.Slice(begin, end), true
	}

	if rs, ok := c.active[blockIndex]; ok {
		if rs.block.DecodedEnd() >= end {
			c.mu.Unlock()
			return rs.block.Slice(begin, end), true
		}
		rs.add(begin, end, result)
		c.mu.Unlock()
		return nil, false
	}

	if e, ok := c.lru[blockIndex]; ok {
		// In cache but decoded short of `end`: a block enters the LRU
		// decoded only as far as its largest request needed. Re-open it
		// as an active set around the same SharedBlock so a worker
		// decodes further; a range past the block's true size fails in
		// DecompressUntil and reaches the caller through the normal path.
		rs := newRequestSet(e.block, blockIndex)
		rs.add(begin, end, result)
		delete(c.lru, blockIndex)
		c.lruList.Remove(e.elem)
		c.active[blockIndex] = rs
		c.mu.Unlock()
		c.submit(rs)
		return nil, false
	}

	tag, compressed, uncompressedSize, err := c.src.ReadBlock(blockIndex)
	if err != nil {
		c.mu.Unlock()
		result <- rangeResult{err: err}
		return nil, false
	}
	cd, ok := codec.Lookup(tag)
	if !ok {
		c.mu.Unlock()
		result <- rangeResult{err: fmt.Errorf("blockcache: unsupported codec %s", tag)}
		return nil, false
	}
	dec, err := cd.NewDecoder(compressed)
	if err != nil {
		c.mu.Unlock()
		result <- rangeResult{err: err}
		return nil, false
	}
	block := NewSharedBlock(dec, uncompressedSize)
	rs := newRequestSet(block, blockIndex)
	rs.add(begin, end, result)
	c.active[blockIndex] = rs
	c.mu.Unlock()
	c.submit(rs)
	return nil, false
}

// submit hands a RequestSet to the worker pool, merging with an
// in-flight set for the same block if one already owns decompression.
func (c *Cache) submit(rs *RequestSet) {
	c.muDec.Lock()
	if owner, ok := c.decompressing[rs.blockNo]; ok {
		owner.merge(rs)
		c.muDec.Unlock()
		return
	}
	c.decompressing[rs.blockNo] = rs
	c.muDec.Unlock()

	_ = c.pool.Submit(context.Background(), func(ctx context.Context) error {
		c.runWorker(rs)
		return nil
	})
}

// runWorker drains rs, decompressing just enough to satisfy each
// pending request in smallest-end-first order, then publishes the
// finished SharedBlock into the LRU.
func (c *Cache) runWorker(rs *RequestSet) {
	for {
		c.mu.Lock()
		c.muDec.Lock()
		if rs.empty() {
			delete(c.decompressing, rs.blockNo)
			delete(c.active, rs.blockNo)
			c.insertLRU(rs.blockNo, rs.block)
			c.muDec.Unlock()
			c.mu.Unlock()
			break
		}
		req := rs.pop()
		last := rs.empty()
		c.muDec.Unlock()
		c.mu.Unlock()

		end := req.end
		if last && rs.block.UncompressedSize() > 0 && c.opt.DecompressRatio > 0 {
			if ratio := float64(end) / float64(rs.block.UncompressedSize()); ratio > c.opt.DecompressRatio {
				end = rs.block.UncompressedSize()
			}
		}

		if err := rs.block.DecompressUntil(end); err != nil {
			req.result <- rangeResult{err: err}
			c.failAll(rs, err)
			return
		}
		req.result <- rangeResult{data: rs.block.Slice(req.begin, req.end)}
	}

	c.maybePrefetch(rs.blockNo)
}

// failAll routes a decode failure to every request still queued in rs
// and drops the block without caching it.
func (c *Cache) failAll(rs *RequestSet, err error) {
	c.muDec.Lock()
	delete(c.decompressing, rs.blockNo)
	c.muDec.Unlock()
	c.mu.Lock()
	delete(c.active, rs.blockNo)
	c.mu.Unlock()

	for !rs.empty() {
		req := rs.pop()
		req.result <- rangeResult{err: err}
	}
}

// insertLRU must be called with c.mu held.
func (c *Cache) insertLRU(blockIndex int64, block *SharedBlock) {
	elem := c.lruList.PushFront(blockIndex)
	c.lru[blockIndex] = &entry{block: block, elem: elem}
	for int64(len(c.lru)) > c.maxEntries() {
		oldest := c.lruList.Back()
		if oldest == nil {
			break
		}
		idx := oldest.Value.(int64)
		c.lruList.Remove(oldest)
		delete(c.lru, idx)
	}
}

// noteSequentialAccess feeds the sequential-prefetch detector.
func (c *Cache) noteSequentialAccess(blockIndex int64) {
	c.seqMu.Lock()
	defer c.seqMu.Unlock()
	if blockIndex == c.seqLast+1 {
		c.seqRun++
	} else if blockIndex != c.seqLast {
		c.seqRun = 0
	}
	c.seqLast = blockIndex
}

// maybePrefetch submits decompression jobs for the next few blocks once
// sustained sequential access is observed, bounded by free cache slots.
func (c *Cache) maybePrefetch(justFinished int64) {
	c.seqMu.Lock()
	run, last := c.seqRun, c.seqLast
	c.seqMu.Unlock()
	if run < c.opt.SequentialPrefetchThreshold || last != justFinished {
		return
	}

	c.mu.Lock()
	free := c.maxEntries() - int64(len(c.lru)) - int64(len(c.active))
	c.mu.Unlock()
	if free <= 0 {
		return
	}
	depth := int64(c.opt.PrefetchDepth)
	if free < depth {
		depth = free
	}
	for k := int64(1); k <= depth; k++ {
		result := make(chan rangeResult, 1)
		c.fastPath(justFinished+k, 0, 1, result)
		go func() { <-result }() // drain; prefetch is best-effort
	}
}

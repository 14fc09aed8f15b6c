// Package progress exposes atomic counters an external UI (a CLI
// progress bar, a status endpoint) can poll without synchronizing with
// the writer pipeline that updates them.
package progress

import "sync/atomic"

// Counters tracks one writer run's headline numbers. All fields are
// safe for concurrent use from any worker goroutine.
type Counters struct {
	filesScanned    atomic.Int64
	bytesScanned    atomic.Int64
	filesDeduped    atomic.Int64
	segmentsFound   atomic.Int64
	segmentCollided atomic.Int64
	blocksWritten   atomic.Int64
	bytesCompressed atomic.Int64
	errors          atomic.Int64
}

// New returns a ready-to-use Counters (the zero value already works;
// New exists so callers can write progress.New() symmetrically with the
// rest of the writer pipeline's constructors).
func New() *Counters { return &Counters{} }

func (c *Counters) AddFilesScanned(n int64)    { c.filesScanned.Add(n) }
func (c *Counters) AddBytesScanned(n int64)    { c.bytesScanned.Add(n) }
func (c *Counters) AddFilesDeduped(n int64)    { c.filesDeduped.Add(n) }
func (c *Counters) AddSegmentsFound(n int64)   { c.segmentsFound.Add(n) }
func (c *Counters) AddSegmentCollision(n int64) { c.segmentCollided.Add(n) }
func (c *Counters) AddBlocksWritten(n int64)   { c.blocksWritten.Add(n) }
func (c *Counters) AddBytesCompressed(n int64) { c.bytesCompressed.Add(n) }
func (c *Counters) AddError(n int64)           { c.errors.Add(n) }

// Snapshot is a consistent-enough-for-display point-in-time read; it is
// not a single atomic transaction across fields, since the progress hook
// it feeds is informational, not a consistency-sensitive API.
type Snapshot struct {
	FilesScanned    int64
	BytesScanned    int64
	FilesDeduped    int64
	SegmentsFound   int64
	SegmentCollided int64
	BlocksWritten   int64
	BytesCompressed int64
	Errors          int64
}

func (c *Counters) Snapshot() Snapshot {
	return Snapshot{
		FilesScanned:    c.filesScanned.Load(),
		BytesScanned:    c.bytesScanned.Load(),
		FilesDeduped:    c.filesDeduped.Load(),
		SegmentsFound:   c.segmentsFound.Load(),
		SegmentCollided: c.segmentCollided.Load(),
		BlocksWritten:   c.blocksWritten.Load(),
		BytesCompressed: c.bytesCompressed.Load(),
		Errors:          c.errors.Load(),
	}
}

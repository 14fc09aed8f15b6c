package blockcache

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dwarfs-go/dwarfs/internal/codec"
)

// SharedBlock owns one block's growing decompressed buffer and the
// decoder producing it. Its backing array is allocated once at the full
// uncompressed size (known from the section header), so frames appended
// by DecompressUntil never reallocate; a byte slice handed out by
// Slice stays valid for the SharedBlock's entire lifetime.
type SharedBlock struct {
	uncompressedSize int64

	mu      sync.Mutex // guards dec and data's slice header during growth
	dec     codec.Decoder
	data    []byte
	decoded atomic.Int64 // mirrors len(data); readable without mu
}

// NewSharedBlock wraps a freshly constructed decoder for one block.
func NewSharedBlock(dec codec.Decoder, uncompressedSize int64) *SharedBlock {
	b := &SharedBlock{
		uncompressedSize: uncompressedSize,
		dec:              dec,
		data:             make([]byte, 0, uncompressedSize),
	}
	return b
}

// DecodedEnd returns the number of decompressed bytes available so far.
// It may be called from any goroutine and observes a monotonically
// non-decreasing sequence of values for the lifetime of the SharedBlock.
func (b *SharedBlock) DecodedEnd() int64 { return b.decoded.Load() }

// UncompressedSize returns the block's total decompressed size.
func (b *SharedBlock) UncompressedSize() int64 { return b.uncompressedSize }

// DecompressUntil drives the decoder forward until at least `end` bytes
// are available, and returns an error if the decoder is exhausted first.
// Only the worker that owns this SharedBlock's RequestSet may call this.
func (b *SharedBlock) DecompressUntil(end int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for int64(len(b.data)) < end {
		if b.dec == nil {
			// Exhausted short of `end`: caller asked for more than the
			// codec ever produces, which is a framing bug upstream, not
			// a partial-read condition to paper over.
			return fmt.Errorf("blockcache: decoder exhausted at %d bytes, short of %d", len(b.data), end)
		}
		out, more, err := b.dec.DecompressFrame(b.data)
		if err != nil {
			return err
		}
		b.data = out
		b.decoded.Store(int64(len(b.data)))
		if !more {
			b.dec = nil
		}
	}
	return nil
}

// Slice returns the decompressed bytes in [begin, end) without copying.
// Callers must only request a range already covered by DecodedEnd().
func (b *SharedBlock) Slice(begin, end int64) []byte {
	b.mu.Lock()
	d := b.data
	b.mu.Unlock()
	return d[begin:end]
}

// Done reports whether decompression has produced every byte.
func (b *SharedBlock) Done() bool { return b.decoded.Load() == b.uncompressedSize }

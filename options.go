package dwarfs

import (
	"github.com/dwarfs-go/dwarfs/internal/logging"
	"github.com/dwarfs-go/dwarfs/internal/mmap"
)

// options collects the tunables Open accepts as functional Option
// arguments; zero values mean "let the package choose a default".
type options struct {
	lockMode    mmap.LockMode
	cacheBytes  int64
	workers     int
	imageOffset int64
	enableNlink bool
	noCheck     bool
	log         logging.Logger
}

func defaultOptions() options {
	return options{
		lockMode:   mmap.LockNone,
		cacheBytes: 256 << 20,
		log:        logging.Nop,
	}
}

// Option configures Open.
type Option func(*options)

// WithLockMode controls how aggressively the image mapping is pinned
// into memory via mlock.
func WithLockMode(m mmap.LockMode) Option {
	return func(o *options) { o.lockMode = m }
}

// WithCacheBytes bounds the block cache's resident decompressed bytes.
func WithCacheBytes(n int64) Option {
	return func(o *options) { o.cacheBytes = n }
}

// WithWorkers bounds the number of concurrent decompression workers; a
// value <= 0 leaves the block cache's own default (GOMAXPROCS) in place.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithImageOffset sets the byte offset within the opened file where the
// dwarfs image signature begins, for images embedded inside another
// file format.
func WithImageOffset(n int64) Option {
	return func(o *options) { o.imageOffset = n }
}

// WithNlink enables reconstructing accurate hardlink counts by scanning
// dir_entries on each Stat of a regular file; left off by default since
// it is an O(n) pass most callers don't need.
func WithNlink(enable bool) Option {
	return func(o *options) { o.enableNlink = enable }
}

// WithNoCheck disables failing Open on a section checksum mismatch,
// instead surfacing it as a logged warning (mirrors a "no-check" CLI
// flag for recovering readable data from a partially corrupt image).
func WithNoCheck(enable bool) Option {
	return func(o *options) { o.noCheck = enable }
}

// WithLogger attaches a Logger; components log under it via
// logging.With(l, "<component>").
func WithLogger(l logging.Logger) Option {
	return func(o *options) { o.log = l }
}

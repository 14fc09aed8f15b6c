// Package blockwriter assembles file content into fixed-size blocks,
// ships full blocks off for parallel compression, and resolves content-
// defined matches from internal/segmenter into chunk lists that point at
// the physical (block, offset) location bytes actually live at — even
// when a match's history offset falls in the middle of an earlier
// literal run. Directly generalizes the teacher's Writer.writeFileData
// block-splitting loop to accept segmenter output instead of always
// storing every byte.
package blockwriter

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/dwarfs-go/dwarfs/internal/codec"
	"github.com/dwarfs-go/dwarfs/internal/metadata"
	"github.com/dwarfs-go/dwarfs/internal/progress"
	"github.com/dwarfs-go/dwarfs/internal/segmenter"
	"github.com/dwarfs-go/dwarfs/internal/section"
	"github.com/dwarfs-go/dwarfs/internal/workerpool"
)

// literalRegion records where one contiguous run of history bytes
// (content never seen before) physically landed in the block stream.
type literalRegion struct {
	histStart, histEnd int64
	physStart          int64
}

// Section is one finished, already-framed on-disk section (header plus
// compressed payload) ready to be appended to the image in index order.
type Section struct {
	Index int
	Bytes []byte
}

// Manager owns one open block buffer per image, accepting file data in
// submission order and handing back each file's Chunk list.
type Manager struct {
	blockSize   int64
	codecTag    codec.Tag
	codecParams map[string]string
	pool        *workerpool.Pool
	prog        *progress.Counters
	seg         *segmenter.Segmenter

	mu       sync.Mutex
	open     []byte // bytes accumulated for the not-yet-full current block
	physLen  int64  // total physical bytes ever handed to a block (open + flushed)
	regions  []literalRegion
	sections []*Section // one slot per flushed block index, filled in by workers
	wg       sync.WaitGroup
	werr     error
	werrOnce sync.Once
}

// Options configures a Manager.
type Options struct {
	BlockSize   int64
	Codec       codec.Tag
	CodecParams map[string]string
	Workers     int
	Segmenter   segmenter.Options
	Progress    *progress.Counters
}

// New creates a Manager ready to accept file data.
func New(opt Options) *Manager {
	if opt.Progress == nil {
		opt.Progress = progress.New()
	}
	return &Manager{
		blockSize:   opt.BlockSize,
		codecTag:    opt.Codec,
		codecParams: opt.CodecParams,
		pool:        workerpool.New(opt.Workers),
		prog:        opt.Progress,
		seg:         segmenter.New(opt.Segmenter),
	}
}

// AddFile segments data and returns the Chunk list describing how to
// reconstruct it, scheduling any newly-seen bytes for compression.
func (m *Manager) AddFile(ctx context.Context, data []byte) ([]metadata.Chunk, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(data) == 0 {
		return nil, nil
	}

	collisionsBefore := m.seg.Collisions()
	spans := m.seg.Segment(data)
	m.prog.AddSegmentCollision(m.seg.Collisions() - collisionsBefore)
	chunks := make([]metadata.Chunk, 0, len(spans))

	for _, sp := range spans {
		if sp.Length == 0 {
			continue
		}
		if sp.IsMatch() {
			m.prog.AddSegmentsFound(1)
			cks, err := m.chunksForRange(int64(sp.RefOffset), int64(sp.Length))
			if err != nil {
				return nil, err
			}
			chunks = append(chunks, cks...)
			continue
		}

		histBytes := m.seg.History()[sp.Offset : sp.Offset+sp.Length]
		physStart := m.physLen
		m.regions = append(m.regions, literalRegion{
			histStart: int64(sp.Offset),
			histEnd:   int64(sp.Offset + sp.Length),
			physStart: physStart,
		})
		m.physLen += int64(sp.Length)

		if err := m.appendPhysical(ctx, histBytes); err != nil {
			return nil, err
		}
		cks, err := m.chunksForPhysicalRange(physStart, int64(sp.Length))
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, cks...)
	}
	return chunks, nil
}

// chunksForRange resolves a segmenter match's (RefOffset, Length) history
// range to its physical location and splits it into block-bounded chunks.
func (m *Manager) chunksForRange(histOffset, length int64) ([]metadata.Chunk, error) {
	i := sort.Search(len(m.regions), func(i int) bool { return m.regions[i].histEnd > histOffset })
	if i == len(m.regions) {
		return nil, fmt.Errorf("blockwriter: back-reference at %d has no literal region", histOffset)
	}
	r := m.regions[i]
	if histOffset < r.histStart {
		return nil, fmt.Errorf("blockwriter: back-reference at %d falls before any stored region", histOffset)
	}
	physStart := r.physStart + (histOffset - r.histStart)
	return m.chunksForPhysicalRange(physStart, length)
}

// chunksForPhysicalRange splits [physStart, physStart+length) across
// whatever blocks it spans, since a flushed block's size is fixed.
func (m *Manager) chunksForPhysicalRange(physStart, length int64) ([]metadata.Chunk, error) {
	if m.blockSize <= 0 {
		return nil, fmt.Errorf("blockwriter: block size must be positive")
	}
	var out []metadata.Chunk
	remaining := length
	pos := physStart
	for remaining > 0 {
		blockIndex := pos / m.blockSize
		inBlockOffset := pos % m.blockSize
		avail := m.blockSize - inBlockOffset
		take := remaining
		if take > avail {
			take = avail
		}
		out = append(out, metadata.Chunk{
			BlockIndex: uint32(blockIndex),
			Offset:     uint32(inBlockOffset),
			Size:       uint32(take),
		})
		pos += take
		remaining -= take
	}
	return out, nil
}

// appendPhysical appends newly-seen bytes to the open block buffer,
// flushing and scheduling compression for every block that fills.
func (m *Manager) appendPhysical(ctx context.Context, data []byte) error {
	for len(data) > 0 {
		room := m.blockSize - int64(len(m.open))
		take := int64(len(data))
		if take > room {
			take = room
		}
		m.open = append(m.open, data[:take]...)
		data = data[take:]

		if int64(len(m.open)) == m.blockSize {
			if err := m.flushBlock(ctx, m.open); err != nil {
				return err
			}
			m.open = nil
		}
	}
	return nil
}

// flushBlock schedules the given full (or final, via Finish) block for
// compression on the worker pool, reserving its index immediately so
// Finish can return blocks in submission order regardless of which
// worker finishes first.
func (m *Manager) flushBlock(ctx context.Context, block []byte) error {
	idx := len(m.sections)
	slot := &Section{Index: idx}
	m.sections = append(m.sections, slot)

	data := append([]byte(nil), block...)
	tag, params := m.codecTag, m.codecParams

	m.wg.Add(1)
	err := m.pool.Submit(ctx, func(ctx context.Context) error {
		defer m.wg.Done()
		var buf bytes.Buffer
		if _, err := section.Write(&buf, section.TypeBlock, tag, data, params); err != nil {
			m.werrOnce.Do(func() { m.werr = err })
			return err
		}
		m.prog.AddBlocksWritten(1)
		m.prog.AddBytesCompressed(int64(buf.Len()))
		slot.Bytes = buf.Bytes()
		return nil
	})
	if err != nil {
		m.wg.Done()
		return err
	}
	return nil
}

// Finish flushes any partially-filled trailing block, waits for every
// scheduled compression job, and returns the completed sections in
// block-index order.
func (m *Manager) Finish(ctx context.Context) ([]Section, error) {
	m.mu.Lock()
	if len(m.open) > 0 {
		if err := m.flushBlock(ctx, m.open); err != nil {
			m.mu.Unlock()
			return nil, err
		}
		m.open = nil
	}
	m.mu.Unlock()

	m.wg.Wait()
	if err := m.pool.Wait(); err != nil {
		return nil, err
	}
	if m.werr != nil {
		return nil, m.werr
	}

	out := make([]Section, len(m.sections))
	for i, s := range m.sections {
		out[i] = *s
	}
	return out, nil
}

// Collisions reports the segmenter's false-positive hash-table hit count.
func (m *Manager) Collisions() int64 { return m.seg.Collisions() }

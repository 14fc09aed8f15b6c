// Package segmenter implements content-defined chunking: a rolling hash
// over a fixed window finds candidate repeats of earlier-seen bytes
// (within one file or across files already passed to the same
// Segmenter), verifies them byte-for-byte, and greedily extends a
// verified match forward before emitting it as a back-reference instead
// of literal bytes. Matches are not extended backward: bytes before the
// matching window are not re-examined.
package segmenter

// Span is either a literal run of new bytes or a back-reference to
// bytes already emitted earlier in the same logical stream.
type Span struct {
	// Literal spans have RefOffset == -1; Offset/Length index into the
	// segmenter's own input stream either way.
	Offset    int
	Length    int
	RefOffset int
}

func (s Span) IsMatch() bool { return s.RefOffset >= 0 }

// Options configures a Segmenter.
type Options struct {
	WindowSize int // rolling-hash window width in bytes
	MinMatch   int // shortest back-reference worth emitting
	TableBits  int // open-addressing table size, as a power of two
}

func (o Options) withDefaults() Options {
	if o.WindowSize <= 0 {
		o.WindowSize = 32
	}
	if o.MinMatch <= 0 {
		o.MinMatch = o.WindowSize
	}
	if o.TableBits <= 0 {
		o.TableBits = 16
	}
	return o
}

// Segmenter finds repeated byte runs across successive calls to
// Segment, indexing the windows of literal (unmatched) input so later
// input can reference them. It is not safe for concurrent use. The block
// writer keeps one Segmenter per Manager for its whole lifetime, so the
// history and table span every block written so far and are never reset
// at a block boundary.
type Segmenter struct {
	opt Options

	table      []int32 // hash & mask -> position in history, or -1 if empty
	mask       uint32
	history    []byte // all bytes ever passed to Segment, kept for back-reference verification
	collisions int64
}

// New creates a Segmenter with opt (zero-valued fields take defaults).
func New(opt Options) *Segmenter {
	opt = opt.withDefaults()
	size := 1 << uint(opt.TableBits)
	t := make([]int32, size)
	for i := range t {
		t[i] = -1
	}
	return &Segmenter{opt: opt, table: t, mask: uint32(size - 1)}
}

// Collisions returns the number of hash-table slots found occupied by a
// position whose bytes didn't actually match (distinct from a genuine
// back-reference miss), for internal/progress to report.
func (s *Segmenter) Collisions() int64 { return s.collisions }

// Segment appends data to the segmenter's history and returns the spans
// (literal or back-reference) that cover it. Offsets in returned spans
// are absolute positions into the full history across all Segment calls
// made on this Segmenter.
func (s *Segmenter) Segment(data []byte) []Span {
	base := len(s.history)
	s.history = append(s.history, data...)

	var spans []Span
	litStart := base
	i := base
	end := len(s.history)
	w := s.opt.WindowSize

	var h rollingHash
	windowStart := i
	filled := 0

	flushLiteral := func(upTo int) {
		if upTo > litStart {
			spans = append(spans, Span{Offset: litStart, Length: upTo - litStart, RefOffset: -1})
		}
	}

	for i <= end {
		if filled < w {
			if i == end {
				break
			}
			h.Update(s.history[i])
			filled++
			i++
			continue
		}

		hv := h.Value()
		slot := hv & s.mask
		cand := s.table[slot]

		if cand >= 0 && int(cand) != windowStart {
			if matchLen, ok := s.verifyAndExtend(int(cand), windowStart, end); ok && matchLen >= s.opt.MinMatch {
				flushLiteral(windowStart)
				spans = append(spans, Span{Offset: windowStart, Length: matchLen, RefOffset: int(cand)})
				// Re-seed the rolling hash over the next full window
				// starting right after the match. Bytes consumed by the
				// match are never indexed: every table entry must name a
				// position within literal (physically stored) history,
				// so a later match can always resolve back to real bytes.
				newStart := windowStart + matchLen
				i = newStart
				litStart = newStart
				windowStart = newStart
				h.Reset()
				filled = 0
				continue
			}
			s.collisions++
		}
		// windowStart is about to slide past and become literal history;
		// index it now that it's confirmed not to be a match's first byte.
		s.table[slot] = int32(windowStart)

		// Slide the window forward by one byte.
		if i < end {
			h.Slide(s.history[windowStart], s.history[i])
			windowStart++
			i++
		} else {
			break
		}
	}

	flushLiteral(end)
	return spans
}

// verifyAndExtend byte-compares the candidate window against the
// current one and, on a match, greedily extends forward as far as
// bytes keep matching (bounded by end), returning the match length.
func (s *Segmenter) verifyAndExtend(candStart, curStart, end int) (int, bool) {
	w := s.opt.WindowSize
	if candStart+w > curStart || curStart+w > end {
		return 0, false
	}
	for k := 0; k < w; k++ {
		if s.history[candStart+k] != s.history[curStart+k] {
			return 0, false
		}
	}
	length := w
	for curStart+length < end && candStart+length < curStart && s.history[candStart+length] == s.history[curStart+length] {
		length++
	}
	return length, true
}

// History returns the full byte stream accumulated across all Segment
// calls; callers resolving a Span's RefOffset index into this slice.
func (s *Segmenter) History() []byte { return s.history }

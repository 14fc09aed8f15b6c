package segmenter

// rollingHash is a two-sum Adler-like rolling hash over a fixed-size
// sliding window, ported from the upstream dwarfs rsync_hash
// construction: two 16-bit halves (a, b) packed into one uint32, where
// a is a running sum of window bytes and b is a running sum of a,
// letting both be updated in O(1) as the window slides one byte.
type rollingHash struct {
	a, b uint16
	len  int32
}

// Value returns the current window's hash.
func (h *rollingHash) Value() uint32 {
	return uint32(h.a) | uint32(h.b)<<16
}

// Update feeds one byte into a not-yet-full window (initial fill).
func (h *rollingHash) Update(in byte) {
	h.a += uint16(in)
	h.b += h.a
	h.len++
}

// Slide retires outbyte from the trailing edge of the window and
// admits inbyte at the leading edge, keeping the window length fixed.
func (h *rollingHash) Slide(outbyte, inbyte byte) {
	h.a = h.a - uint16(outbyte) + uint16(inbyte)
	h.b -= uint16(h.len) * uint16(outbyte)
	h.b += h.a
}

// Reset clears the hash back to empty.
func (h *rollingHash) Reset() {
	h.a, h.b, h.len = 0, 0, 0
}

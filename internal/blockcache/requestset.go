package blockcache

import "container/heap"

// request is one pending read against a block, waiting on result.
type request struct {
	begin, end int64
	result     chan rangeResult
}

type rangeResult struct {
	data []byte
	err  error
}

// requestHeap is a min-heap of *request ordered by end ascending, so the
// request that can be satisfied soonest is served first.
type requestHeap []*request

func (h requestHeap) Len() int            { return len(h) }
func (h requestHeap) Less(i, j int) bool  { return h[i].end < h[j].end }
func (h requestHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *requestHeap) Push(x any) { *h = append(*h, x.(*request)) }
func (h *requestHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// RequestSet batches pending requests against one SharedBlock so a
// single worker can serve them all with minimal redundant decompression.
type RequestSet struct {
	block    *SharedBlock
	blockNo  int64
	queue    requestHeap
	rangeEnd int64
}

func newRequestSet(block *SharedBlock, blockNo int64) *RequestSet {
	return &RequestSet{block: block, blockNo: blockNo}
}

// add enqueues one pending request and grows rangeEnd if needed.
func (s *RequestSet) add(begin, end int64, result chan rangeResult) {
	if end > s.rangeEnd {
		s.rangeEnd = end
	}
	heap.Push(&s.queue, &request{begin: begin, end: end, result: result})
}

// merge absorbs another set's queue (used when two goroutines race to
// create a RequestSet for the same block and lose to the same worker).
func (s *RequestSet) merge(other *RequestSet) {
	for _, r := range other.queue {
		heap.Push(&s.queue, r)
	}
	other.queue = nil
	if other.rangeEnd > s.rangeEnd {
		s.rangeEnd = other.rangeEnd
	}
}

func (s *RequestSet) empty() bool { return s.queue.Len() == 0 }

// pop returns the request with the smallest requested end.
func (s *RequestSet) pop() *request {
	return heap.Pop(&s.queue).(*request)
}

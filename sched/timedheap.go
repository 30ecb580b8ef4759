package sched

// timedHeap orders filterStates awaiting a timed reschedule
// (filter_ask_rt_reschedule, §4.6) by ascending deadline. Grounded on
// transport/collect.go's container/heap-based stream collector: same
// index-tracked-on-swap shape, here keyed on a nanosecond deadline
// instead of an idle-tick counter.
type timedHeap []*filterState

func (h timedHeap) Len() int           { return len(h) }
func (h timedHeap) Less(i, j int) bool { return h[i].timedAt < h[j].timedAt }
func (h timedHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIdx, h[j].heapIdx = i, j
}

func (h *timedHeap) Push(x any) {
	fs := x.(*filterState)
	fs.heapIdx = len(*h)
	*h = append(*h, fs)
}

func (h *timedHeap) Pop() any {
	old := *h
	n := len(old)
	fs := old[n-1]
	*h = old[:n-1]
	fs.heapIdx = -1
	return fs
}

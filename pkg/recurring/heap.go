package recurring

import "time"

// heapItem is one scheduling entry: job_id due at nextRun, tagged with the
// version it was scheduled under. A version mismatch against the engine's
// current versions map means the entry is stale and must be discarded
// rather than fired.
type heapItem struct {
	nextRun time.Time
	jobID   string
	version int
}

// jobHeap is a container/heap.Interface ordered by soonest nextRun first.
type jobHeap []heapItem

func (h jobHeap) Len() int { return len(h) }

func (h jobHeap) Less(i, j int) bool { return h[i].nextRun.Before(h[j].nextRun) }

func (h jobHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *jobHeap) Push(x any) {
	*h = append(*h, x.(heapItem))
}

func (h *jobHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

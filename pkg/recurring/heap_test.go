package recurring

import (
	"container/heap"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestJobHeapOrdersBySoonestFirst(t *testing.T) {
	now := time.Now()
	h := &jobHeap{}
	heap.Init(h)
	heap.Push(h, heapItem{nextRun: now.Add(3 * time.Minute), jobID: "c", version: 1})
	heap.Push(h, heapItem{nextRun: now.Add(1 * time.Minute), jobID: "a", version: 1})
	heap.Push(h, heapItem{nextRun: now.Add(2 * time.Minute), jobID: "b", version: 1})

	var order []string
	for h.Len() > 0 {
		item := heap.Pop(h).(heapItem)
		order = append(order, item.jobID)
	}
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestJobHeapLenAfterPop(t *testing.T) {
	h := &jobHeap{}
	heap.Init(h)
	heap.Push(h, heapItem{nextRun: time.Now(), jobID: "x", version: 1})
	assert.Equal(t, 1, h.Len())
	heap.Pop(h)
	assert.Equal(t, 0, h.Len())
}

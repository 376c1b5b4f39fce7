package scheduler

import (
	"container/heap"
	"time"
)

// dueEntry is one job tracked by the scheduler: its next activation time,
// tie-break priority, and the runner used to compute the activation after
// this one.
type dueEntry struct {
	jobID    string
	priority int
	nextRun  time.Time
	runner   nextRunner
	index    int // maintained by container/heap
}

// dueHeap is a min-heap ordered by (nextRun, priority, jobID), giving
// O(log n) insert/remove/reschedule instead of chrono's O(n) entry scan
// (see DESIGN.md for why this one piece departs from a straight port).
// Lower nextRun sorts first; ties break toward higher priority, then
// lexically smaller jobID for determinism.
type dueHeap []*dueEntry

func (h dueHeap) Len() int { return len(h) }

func (h dueHeap) Less(i, j int) bool {
	if !h[i].nextRun.Equal(h[j].nextRun) {
		return h[i].nextRun.Before(h[j].nextRun)
	}
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].jobID < h[j].jobID
}

func (h dueHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *dueHeap) Push(x any) {
	e := x.(*dueEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *dueHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

var _ heap.Interface = (*dueHeap)(nil)

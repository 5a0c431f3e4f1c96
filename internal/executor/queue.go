// Package executor implements the weighted priority queue, bounded
// worker pool, subprocess lifecycle, and cancellation semantics
// described in spec §4.6, driving a buildgraph.Graph to completion
// while honoring the state machine in spec §4.7.
package executor

import (
	"container/heap"

	"github.com/fluidbuild/fbx/internal/buildgraph"
)

// readyItem is one ready-to-run task waiting for a worker slot.
// Priority equals the task's weight (higher scheduled earlier); ties
// are broken by insertion order (spec §4.6 "Scheduling rules").
type readyItem struct {
	task  *buildgraph.Task
	seq   int64
	index int
}

// readyQueue is a max-heap on (weight desc, seq asc) -- exactly the
// priority + FIFO tie-break spec §4.6 calls for.
type readyQueue []*readyItem

func (q readyQueue) Len() int { return len(q) }

func (q readyQueue) Less(i, j int) bool {
	if q[i].task.Weight != q[j].task.Weight {
		return q[i].task.Weight > q[j].task.Weight
	}
	return q[i].seq < q[j].seq
}

func (q readyQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index, q[j].index = i, j
}

func (q *readyQueue) Push(x interface{}) {
	item := x.(*readyItem)
	item.index = len(*q)
	*q = append(*q, item)
}

func (q *readyQueue) Pop() interface{} {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

var _ heap.Interface = (*readyQueue)(nil)

package scheduler

import (
	"context"
	"time"
)

// item is a queued request.
type item struct {
	id         uint64 // arrival order, also the tie-breaker
	entity     string
	priority   int
	work       Work
	ctx        context.Context
	outcome    *Outcome
	enqueuedAt time.Time
}

// itemQueue implements heap.Interface: highest priority first, then earliest
// arrival.
type itemQueue []*item

func (q itemQueue) Len() int { return len(q) }

func (q itemQueue) Less(i, j int) bool {
	if q[i].priority != q[j].priority {
		return q[i].priority > q[j].priority
	}
	return q[i].id < q[j].id
}

func (q itemQueue) Swap(i, j int) { q[i], q[j] = q[j], q[i] }

func (q *itemQueue) Push(x any) { *q = append(*q, x.(*item)) }

func (q *itemQueue) Pop() any {
	old := *q
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return it
}

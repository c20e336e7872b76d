// Package schedule holds comments pending delivery in a priority queue and
// dispatches them through the rate limiter with retry handling.
package schedule

import (
	"container/heap"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrQueueFull is returned by enqueue when the queue is at capacity.
	ErrQueueFull = errors.New("schedule: queue is full")

	// ErrDuplicateID is returned by enqueue when the id is already queued.
	ErrDuplicateID = errors.New("schedule: duplicate comment id")
)

// Comment is one queued chat comment.
type Comment struct {
	// ID is unique within the queue.
	ID string

	Text string

	// Priority orders dispatch; higher dispatches earlier.
	Priority int

	// EnqueuedAt breaks priority ties, oldest first.
	EnqueuedAt time.Time

	RetryCount int
}

// commentHeap implements heap.Interface ordered by descending priority, then
// ascending enqueue time.
type commentHeap []Comment

func (h commentHeap) Len() int { return len(h) }

func (h commentHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].EnqueuedAt.Before(h[j].EnqueuedAt)
}

func (h commentHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *commentHeap) Push(x any) { *h = append(*h, x.(Comment)) }

func (h *commentHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}

// queue is a bounded priority queue with unique ids. Not safe for concurrent
// use; the Scheduler serializes access under its own mutex.
type queue struct {
	heap    commentHeap
	ids     map[string]bool
	maxSize int
}

func newQueue(maxSize int) *queue {
	return &queue{ids: make(map[string]bool), maxSize: maxSize}
}

func (q *queue) enqueue(c Comment) error {
	if q.ids[c.ID] {
		return fmt.Errorf("%w: %s", ErrDuplicateID, c.ID)
	}
	if q.maxSize > 0 && len(q.heap) >= q.maxSize {
		return ErrQueueFull
	}
	heap.Push(&q.heap, c)
	q.ids[c.ID] = true
	return nil
}

func (q *queue) dequeue() (Comment, bool) {
	if len(q.heap) == 0 {
		return Comment{}, false
	}
	c := heap.Pop(&q.heap).(Comment)
	delete(q.ids, c.ID)
	return c, true
}

func (q *queue) len() int { return len(q.heap) }

func (q *queue) clear() {
	q.heap = nil
	q.ids = make(map[string]bool)
}

package schedule

import (
	"errors"
	"testing"
	"time"
)

func TestQueueOrdering(t *testing.T) {
	q := newQueue(10)
	base := time.Now()

	comments := []Comment{
		{ID: "low", Priority: 1, EnqueuedAt: base},
		{ID: "high", Priority: 5, EnqueuedAt: base.Add(time.Second)},
		{ID: "mid-old", Priority: 3, EnqueuedAt: base},
		{ID: "mid-new", Priority: 3, EnqueuedAt: base.Add(2 * time.Second)},
	}
	for _, c := range comments {
		if err := q.enqueue(c); err != nil {
			t.Fatalf("enqueue(%s) error = %v", c.ID, err)
		}
	}

	want := []string{"high", "mid-old", "mid-new", "low"}
	for _, id := range want {
		c, ok := q.dequeue()
		if !ok {
			t.Fatalf("queue empty, want %s", id)
		}
		if c.ID != id {
			t.Errorf("dequeued %s, want %s", c.ID, id)
		}
	}
	if _, ok := q.dequeue(); ok {
		t.Error("queue should be empty")
	}
}

func TestQueueDuplicateID(t *testing.T) {
	q := newQueue(10)
	if err := q.enqueue(Comment{ID: "a"}); err != nil {
		t.Fatalf("enqueue error = %v", err)
	}
	if err := q.enqueue(Comment{ID: "a"}); !errors.Is(err, ErrDuplicateID) {
		t.Errorf("enqueue error = %v, want ErrDuplicateID", err)
	}

	// The id is free again after dequeue.
	q.dequeue()
	if err := q.enqueue(Comment{ID: "a"}); err != nil {
		t.Errorf("enqueue after dequeue error = %v", err)
	}
}

func TestQueueFull(t *testing.T) {
	q := newQueue(2)
	q.enqueue(Comment{ID: "a"})
	q.enqueue(Comment{ID: "b"})
	if err := q.enqueue(Comment{ID: "c"}); !errors.Is(err, ErrQueueFull) {
		t.Errorf("enqueue error = %v, want ErrQueueFull", err)
	}
}

func TestQueueClear(t *testing.T) {
	q := newQueue(10)
	q.enqueue(Comment{ID: "a"})
	q.enqueue(Comment{ID: "b"})
	q.clear()
	if q.len() != 0 {
		t.Errorf("len = %d after clear, want 0", q.len())
	}
	if err := q.enqueue(Comment{ID: "a"}); err != nil {
		t.Errorf("enqueue after clear error = %v", err)
	}
}

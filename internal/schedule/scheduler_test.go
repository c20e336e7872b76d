package schedule

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/aizuchi/internal/ratelimit"
)

// stubGate returns canned results in order, then repeats the last one.
type stubGate struct {
	mu      sync.Mutex
	results []ratelimit.Result
	calls   []string
}

func (g *stubGate) Check(text string) ratelimit.Result {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, text)
	res := g.results[0]
	if len(g.results) > 1 {
		g.results = g.results[1:]
	}
	return res
}

func allowAll() *stubGate {
	return &stubGate{results: []ratelimit.Result{{Allowed: true}}}
}

func waitEvent(t *testing.T, s *Scheduler) Event {
	t.Helper()
	select {
	case ev := <-s.Events():
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a scheduler event")
		return Event{}
	}
}

func TestSchedulerProcessesByPriority(t *testing.T) {
	gate := allowAll()
	s := New(gate, Config{Interval: time.Hour})
	s.Start(context.Background())
	defer s.Stop()
	s.Enqueue(Comment{ID: "low", Text: "low", Priority: 1})
	s.Enqueue(Comment{ID: "high", Text: "high", Priority: 9})

	s.tick()
	s.tick()

	if ev := waitEvent(t, s); ev.Kind != EventProcessed || ev.Comment.ID != "high" {
		t.Errorf("first event = %+v, want processed high", ev)
	}
	if ev := waitEvent(t, s); ev.Kind != EventProcessed || ev.Comment.ID != "low" {
		t.Errorf("second event = %+v, want processed low", ev)
	}
}

func TestSchedulerDuplicateDropsWithoutRetry(t *testing.T) {
	gate := &stubGate{results: []ratelimit.Result{
		{Reason: ratelimit.ReasonDuplicate},
	}}
	s := New(gate, Config{Interval: time.Hour})
	s.Start(context.Background())
	defer s.Stop()
	s.Enqueue(Comment{ID: "a", Text: "dup"})

	s.tick()

	ev := waitEvent(t, s)
	if ev.Kind != EventFailed || ev.Reason != "duplicate" {
		t.Errorf("event = %+v, want failed duplicate", ev)
	}
	if s.Len() != 0 {
		t.Error("duplicate must not be requeued")
	}
}

func TestSchedulerRetriesThenFails(t *testing.T) {
	gate := &stubGate{results: []ratelimit.Result{
		{Reason: ratelimit.ReasonRateLimit, RetryAfter: time.Millisecond},
	}}
	s := New(gate, Config{Interval: time.Hour, MaxRetries: 2, RetryDelay: 5 * time.Millisecond})
	s.Start(context.Background())
	defer s.Stop()
	s.Enqueue(Comment{ID: "a", Text: "x"})

	// Attempt 1 and 2 requeue after the retry delay; attempt 3 exhausts.
	for range 2 {
		s.tick()
		deadline := time.Now().Add(time.Second)
		for s.Len() == 0 {
			if time.Now().After(deadline) {
				t.Fatal("retry was not requeued")
			}
			time.Sleep(time.Millisecond)
		}
	}
	s.tick()

	ev := waitEvent(t, s)
	if ev.Kind != EventFailed || ev.Reason != "max_retries" {
		t.Errorf("event = %+v, want failed max_retries", ev)
	}
	if ev.Comment.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", ev.Comment.RetryCount)
	}
}

func TestSchedulerLifecycle(t *testing.T) {
	s := New(allowAll(), Config{Interval: 5 * time.Millisecond})
	if s.State() != StateStopped {
		t.Fatalf("initial state = %s, want stopped", s.State())
	}

	s.Start(context.Background())
	if s.State() != StateRunning {
		t.Fatalf("state = %s after Start, want running", s.State())
	}

	s.Pause()
	if s.State() != StatePaused {
		t.Fatalf("state = %s after Pause, want paused", s.State())
	}

	// No dispatch while paused.
	s.Enqueue(Comment{ID: "a", Text: "x"})
	time.Sleep(30 * time.Millisecond)
	if s.Len() != 1 {
		t.Error("paused scheduler must not dequeue")
	}

	s.Resume()
	if ev := waitEvent(t, s); ev.Kind != EventProcessed {
		t.Errorf("event = %+v, want processed after Resume", ev)
	}

	s.Stop()
	if s.State() != StateStopped {
		t.Fatalf("state = %s after Stop, want stopped", s.State())
	}
	if s.Len() != 0 {
		t.Error("Stop must clear the queue")
	}
}

func TestSchedulerStopCancelsRetryTimers(t *testing.T) {
	gate := &stubGate{results: []ratelimit.Result{
		{Reason: ratelimit.ReasonMinInterval, RetryAfter: time.Millisecond},
	}}
	s := New(gate, Config{Interval: time.Hour, RetryDelay: 10 * time.Millisecond})
	s.Start(context.Background())
	s.Enqueue(Comment{ID: "a", Text: "x"})
	s.tick()
	s.Stop()

	time.Sleep(30 * time.Millisecond)
	if s.Len() != 0 {
		t.Error("retry timer fired after Stop")
	}
}

func TestSchedulerEnqueueStampsTime(t *testing.T) {
	s := New(allowAll(), Config{})
	s.Enqueue(Comment{ID: "a", Text: "x"})

	s.mu.Lock()
	c, ok := s.queue.dequeue()
	s.mu.Unlock()
	if !ok || c.EnqueuedAt.IsZero() {
		t.Error("Enqueue should stamp EnqueuedAt")
	}
}

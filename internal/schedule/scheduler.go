package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/aizuchi/internal/ratelimit"
)

// State is the scheduler lifecycle state.
type State string

const (
	StateStopped State = "stopped"
	StateRunning State = "running"
	StatePaused  State = "paused"
)

// Gate is the rate-limiter view the scheduler dispatches through.
type Gate interface {
	Check(text string) ratelimit.Result
}

// EventKind classifies scheduler events.
type EventKind string

const (
	// EventProcessed carries a comment that passed the gate and is ready to
	// post.
	EventProcessed EventKind = "processed"

	// EventFailed carries a comment given up on, with a reason.
	EventFailed EventKind = "failed"

	// EventError reports an internal dispatch error.
	EventError EventKind = "error"
)

// Event is emitted on the Events channel for every dispatch outcome.
type Event struct {
	Kind    EventKind
	Comment Comment

	// Reason is set for failed events: "duplicate" or "max_retries".
	Reason string

	Err error
}

// Config tunes the scheduler.
type Config struct {
	// Interval is the dispatch tick period. Default: 1s.
	Interval time.Duration

	// MaxQueue bounds the queue. Default: 100.
	MaxQueue int

	// MaxRetries bounds per-comment retries on rate-limit rejection.
	// Default: 3.
	MaxRetries int

	// RetryDelay is how long a rejected comment waits before re-entering the
	// queue. Default: 5s.
	RetryDelay time.Duration
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.MaxQueue <= 0 {
		c.MaxQueue = 100
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 5 * time.Second
	}
	return c
}

// Scheduler dispatches queued comments through the rate limiter on a fixed
// tick. Safe for concurrent use.
type Scheduler struct {
	cfg    Config
	gate   Gate
	events chan Event

	mu      sync.Mutex
	queue   *queue
	state   State
	timers  map[string]*time.Timer
	cancel  context.CancelFunc
	done    chan struct{}
	nowFunc func() time.Time
}

// New creates a stopped Scheduler dispatching through gate.
func New(gate Gate, cfg Config) *Scheduler {
	cfg = cfg.withDefaults()
	return &Scheduler{
		cfg:     cfg,
		gate:    gate,
		events:  make(chan Event, 64),
		queue:   newQueue(cfg.MaxQueue),
		state:   StateStopped,
		timers:  make(map[string]*time.Timer),
		nowFunc: time.Now,
	}
}

// Events is the stream of dispatch outcomes. The channel is buffered; a slow
// consumer eventually drops events.
func (s *Scheduler) Events() <-chan Event { return s.events }

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Len returns the number of queued comments.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.len()
}

// Enqueue adds a comment to the queue. The enqueue timestamp is stamped here
// when unset. Rejects duplicate ids and a full queue.
func (s *Scheduler) Enqueue(c Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.EnqueuedAt.IsZero() {
		c.EnqueuedAt = s.nowFunc()
	}
	return s.queue.enqueue(c)
}

// Start transitions stopped → running and begins ticking. Starting a scheduler
// that is not stopped is a no-op for paused (use Resume) and running.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateStopped {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.state = StateRunning
	go s.loop(runCtx, s.done)
	slog.Info("scheduler started", "interval", s.cfg.Interval)
}

// Pause suspends dispatch; queued comments stay put.
func (s *Scheduler) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		s.state = StatePaused
	}
}

// Resume continues dispatch after Pause.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StatePaused {
		s.state = StateRunning
	}
}

// Stop cancels the tick loop and every pending retry timer, clears the queue,
// and transitions to stopped. Blocks until the loop has exited.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return
	}
	cancel, done := s.cancel, s.done
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
	s.queue.clear()
	s.state = StateStopped
	s.mu.Unlock()

	cancel()
	<-done
	slog.Info("scheduler stopped")
}

// loop ticks until ctx is cancelled.
func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick dispatches at most one comment.
func (s *Scheduler) tick() {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	c, ok := s.queue.dequeue()
	s.mu.Unlock()
	if !ok {
		return
	}

	res := s.gate.Check(c.Text)
	switch {
	case res.Allowed:
		s.emit(Event{Kind: EventProcessed, Comment: c})

	case res.Reason == ratelimit.ReasonDuplicate:
		s.emit(Event{Kind: EventFailed, Comment: c, Reason: string(res.Reason)})

	case c.RetryCount < s.cfg.MaxRetries:
		s.scheduleRetry(c, res.RetryAfter)

	default:
		s.emit(Event{Kind: EventFailed, Comment: c, Reason: "max_retries"})
	}
}

// scheduleRetry re-enqueues c after the retry delay, keeping its original
// enqueue timestamp so it returns to the head of its priority class.
func (s *Scheduler) scheduleRetry(c Comment, retryAfter time.Duration) {
	c.RetryCount++
	delay := s.cfg.RetryDelay
	if retryAfter > delay {
		delay = retryAfter
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopped {
		return
	}
	s.timers[c.ID] = time.AfterFunc(delay, func() {
		s.mu.Lock()
		delete(s.timers, c.ID)
		if s.state == StateStopped {
			s.mu.Unlock()
			return
		}
		err := s.queue.enqueue(c)
		s.mu.Unlock()
		if err != nil {
			s.emit(Event{Kind: EventError, Comment: c, Err: err})
		}
	})
}

// emit sends an event without blocking; a full buffer drops the event.
func (s *Scheduler) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		slog.Warn("scheduler event dropped",
			"kind", ev.Kind, "comment_id", ev.Comment.ID)
	}
}

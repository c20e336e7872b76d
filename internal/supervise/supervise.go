// Package supervise owns process lifecycle: a registry of named cleanup
// hooks, signal handling, and bounded teardown with conventional exit codes.
//
// Cleanup hooks are registered during startup (sockets, timers, open files,
// websocket sessions) and executed in reverse registration order on shutdown.
// Teardown is bounded; hooks still pending when the deadline passes are
// abandoned and the supervisor reports a forced exit.
package supervise

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
)

// DefaultTeardownTimeout bounds the total time spent running cleanup hooks.
const DefaultTeardownTimeout = 30 * time.Second

// Exit codes follow shell convention: 128 + signal number for signal-driven
// exits, 1 for a teardown that had to be abandoned.
const (
	ExitOK        = 0
	ExitForced    = 1
	ExitInterrupt = 130
	ExitTerminate = 143
)

// ErrTeardownTimeout is returned by Teardown when hooks were abandoned.
var ErrTeardownTimeout = errors.New("supervise: teardown deadline exceeded")

// Hook is a named cleanup function. Close must be idempotent; the supervisor
// calls each hook at most once but callers may also close resources directly.
type Hook struct {
	Name  string
	Close func() error
}

// Supervisor collects cleanup hooks and turns OS signals into orderly
// shutdown. Safe for concurrent registration.
type Supervisor struct {
	mu      sync.Mutex
	hooks   []Hook
	timeout time.Duration
	done    bool
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithTeardownTimeout overrides [DefaultTeardownTimeout].
func WithTeardownTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// New creates a Supervisor.
func New(opts ...Option) *Supervisor {
	s := &Supervisor{timeout: DefaultTeardownTimeout}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Register adds a cleanup hook. Hooks run in reverse registration order, so
// register foundational resources (log files, sockets) first.
func (s *Supervisor) Register(name string, close func() error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, Hook{Name: name, Close: close})
}

// HookNames returns the registered hook names in registration order.
func (s *Supervisor) HookNames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, len(s.hooks))
	for i, h := range s.hooks {
		names[i] = h.Name
	}
	return names
}

// NotifyContext returns a context cancelled on SIGINT or SIGTERM, plus a
// function reporting the exit code owed to the signal received (ExitOK when
// no signal arrived).
func (s *Supervisor) NotifyContext(parent context.Context) (context.Context, func() int) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(parent)
	var mu sync.Mutex
	code := ExitOK

	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			mu.Lock()
			switch sig {
			case syscall.SIGTERM:
				code = ExitTerminate
			default:
				code = ExitInterrupt
			}
			mu.Unlock()
			slog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-parent.Done():
			cancel()
		}
	}()

	return ctx, func() int {
		mu.Lock()
		defer mu.Unlock()
		return code
	}
}

// Teardown runs all hooks in reverse registration order, bounded by the
// configured timeout. Hook errors are logged and do not stop later hooks.
// Returns [ErrTeardownTimeout] if the deadline passed with hooks pending.
// Calling Teardown more than once is a no-op.
func (s *Supervisor) Teardown() error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil
	}
	s.done = true
	hooks := make([]Hook, len(s.hooks))
	copy(hooks, s.hooks)
	timeout := s.timeout
	s.mu.Unlock()

	slog.Info("teardown started", "hooks", len(hooks), "timeout", timeout)
	deadline := time.After(timeout)

	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]

		errCh := make(chan error, 1)
		go func() { errCh <- h.Close() }()

		select {
		case err := <-errCh:
			if err != nil {
				slog.Warn("cleanup hook failed", "hook", h.Name, "err", err)
			} else {
				slog.Debug("cleanup hook done", "hook", h.Name)
			}
		case <-deadline:
			slog.Error("teardown deadline exceeded, abandoning remaining hooks",
				"pending", h.Name, "remaining", i+1)
			return ErrTeardownTimeout
		}
	}

	slog.Info("teardown complete")
	return nil
}

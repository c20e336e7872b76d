// Package resilience routes provider calls across an ordered list of
// homogeneous backends with per-backend health tracking and circuit breakers.
//
// The central type is [Controller], a generic failover controller: the first
// healthy backend serves each call, retryable failures mark a backend
// unhealthy and advance to the next one, and fatal failures abort the whole
// call. A periodic probe resets the health flag of recovered backends.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/aizuchi/pkg/provider"
)

// ErrAllFailed is returned when every backend in a [Controller] failed or was
// skipped as unhealthy.
var ErrAllFailed = errors.New("all providers failed")

// ErrNoProviders is returned by Execute on a controller without entries.
var ErrNoProviders = errors.New("no providers registered")

// Config tunes a [Controller].
type Config struct {
	// CircuitBreaker configures the per-backend breaker.
	CircuitBreaker CircuitBreakerConfig

	// ProbeInterval is the health reprobe period used by RunProbes.
	// Default: 30s.
	ProbeInterval time.Duration
}

// Status is one backend's view in the health table.
type Status struct {
	Name        string
	Healthy     bool
	LastChecked time.Time
}

type entry[T any] struct {
	name    string
	value   T
	breaker *CircuitBreaker

	mu          sync.Mutex
	healthy     bool
	lastChecked time.Time
}

func (e *entry[T]) isHealthy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.healthy
}

func (e *entry[T]) setHealthy(healthy bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.healthy = healthy
	e.lastChecked = time.Now()
}

// Controller fails over across an ordered list of backends of one provider
// type. Entries are tried in registration order; the health table is shared
// by concurrent executions but executions do not serialize on it.
type Controller[T any] struct {
	cfg     Config
	entries []*entry[T]
}

// NewController creates an empty Controller. Register backends with Add
// before the first Execute.
func NewController[T any](cfg Config) *Controller[T] {
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = 30 * time.Second
	}
	return &Controller[T]{cfg: cfg}
}

// Add appends a backend. Backends are tried in the order added and start out
// healthy. Not safe to call concurrently with Execute.
func (c *Controller[T]) Add(name string, value T) {
	cbCfg := c.cfg.CircuitBreaker
	cbCfg.Name = name
	c.entries = append(c.entries, &entry[T]{
		name:    name,
		value:   value,
		breaker: NewCircuitBreaker(cbCfg),
		healthy: true,
	})
}

// Execute runs fn against backends in order until one succeeds. Each backend
// is called at most once per invocation. A non-retryable error aborts
// immediately without trying further backends; a retryable error marks the
// backend unhealthy and advances. Returns [ErrAllFailed] wrapped with the last
// error when no backend succeeds.
func (c *Controller[T]) Execute(fn func(T) error) error {
	_, err := ExecuteWith(c, func(v T) (struct{}, error) {
		return struct{}{}, fn(v)
	})
	return err
}

// ExecuteWith is [Controller.Execute] with a result value. Package-level
// because Go does not support method-level type parameters.
func ExecuteWith[T any, R any](c *Controller[T], fn func(T) (R, error)) (R, error) {
	var zero R
	if len(c.entries) == 0 {
		return zero, ErrNoProviders
	}

	var lastErr error
	for _, e := range c.entries {
		if !e.isHealthy() {
			slog.Debug("skipping unhealthy provider", "provider", e.name)
			continue
		}

		var result R
		err := e.breaker.Execute(func() error {
			var innerErr error
			result, innerErr = fn(e.value)
			return innerErr
		})
		if err == nil {
			return result, nil
		}
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("skipping provider (circuit open)", "provider", e.name)
			lastErr = err
			continue
		}

		e.setHealthy(false)
		if !provider.IsRetryable(err) {
			slog.Error("provider failed with non-retryable error",
				"provider", e.name, "error", err)
			return zero, err
		}
		slog.Warn("provider failed, trying next",
			"provider", e.name, "error", err)
		lastErr = err
	}
	return zero, fmt.Errorf("%w: %v", ErrAllFailed, lastErr)
}

// Probe reprobes every backend once via healthFn and updates the health
// table. A backend answering the probe resets its flag and its breaker.
func (c *Controller[T]) Probe(ctx context.Context, healthFn func(context.Context, T) error) {
	for _, e := range c.entries {
		err := healthFn(ctx, e.value)
		wasHealthy := e.isHealthy()
		e.setHealthy(err == nil)
		switch {
		case err == nil && !wasHealthy:
			e.breaker.Reset()
			slog.Info("provider recovered", "provider", e.name)
		case err != nil && wasHealthy:
			slog.Warn("provider probe failed",
				"provider", e.name, "error", err)
		}
	}
}

// RunProbes reprobes on the configured interval until ctx is cancelled.
func (c *Controller[T]) RunProbes(ctx context.Context, healthFn func(context.Context, T) error) {
	ticker := time.NewTicker(c.cfg.ProbeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Probe(ctx, healthFn)
		}
	}
}

// Health returns the current health table in registration order.
func (c *Controller[T]) Health() []Status {
	out := make([]Status, 0, len(c.entries))
	for _, e := range c.entries {
		e.mu.Lock()
		out = append(out, Status{
			Name:        e.name,
			Healthy:     e.healthy,
			LastChecked: e.lastChecked,
		})
		e.mu.Unlock()
	}
	return out
}

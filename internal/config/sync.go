package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MrWong99/aizuchi/pkg/provider/configstore"
)

// ErrSyncInProgress is returned by Sync when another sync is still running.
var ErrSyncInProgress = errors.New("sync already in progress")

// ErrSyncDisabled is returned by Sync when remote sync is turned off.
var ErrSyncDisabled = errors.New("config: sync disabled")

// Sync failure classifications reported through the SyncError hook.
const (
	SyncErrorFetch      = "fetch"
	SyncErrorMerge      = "merge"
	SyncErrorValidation = "validation"
)

// SyncHooks are optional callbacks around a sync cycle. All of them are
// invoked on the syncing goroutine; keep them fast.
type SyncHooks struct {
	// BeforeSync runs once the sync slot is acquired, before the fetch.
	BeforeSync func()

	// AfterSync runs after a successful sync with the changed field paths.
	// An empty slice means the remote document matched the local config.
	AfterSync func(updatedFields []string)

	// SyncError runs when a cycle fails. kind is one of the SyncError*
	// constants.
	SyncError func(kind string, err error)
}

// SyncEngine pulls a remote config document, merges it into the current
// config under the configured strategy, validates the result, and hands the
// merged config to the OnApply callback. One sync runs at a time; an auto
// loop keeps ticking through failures.
type SyncEngine struct {
	store configstore.Store
	hooks SyncHooks

	// OnApply receives the merged config after validation. It runs outside
	// the engine's lock, once per applied change.
	onApply func(old, merged *Config, diff ConfigDiff)

	mu      sync.Mutex
	current *Config

	syncing atomic.Bool
}

// NewSyncEngine creates a sync engine seeded with the current config.
// onApply may be nil when the caller only needs Current.
func NewSyncEngine(store configstore.Store, initial *Config, hooks SyncHooks, onApply func(old, merged *Config, diff ConfigDiff)) *SyncEngine {
	return &SyncEngine{
		store:   store,
		hooks:   hooks,
		onApply: onApply,
		current: initial,
	}
}

// Current returns the most recently applied config.
func (e *SyncEngine) Current() *Config {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.current
}

// Fetch pulls the configured remote document and parses it. Returns
// [ErrSyncDisabled] when sync is off, so callers can treat it as a no-op.
func (e *SyncEngine) Fetch(ctx context.Context) (*Config, error) {
	local := e.Current()
	if !local.Sync.Enabled {
		return nil, ErrSyncDisabled
	}

	data, err := e.store.Get(ctx, local.Sync.Document)
	if err != nil {
		return nil, fmt.Errorf("config: fetch %q: %w", local.Sync.Document, err)
	}
	remote, err := decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: remote document %q: %w", local.Sync.Document, err)
	}
	return remote, nil
}

// Sync runs one fetch → merge → validate → apply cycle. Concurrent calls are
// rejected with [ErrSyncInProgress]. A validation failure keeps the previous
// config.
func (e *SyncEngine) Sync(ctx context.Context) error {
	if !e.syncing.CompareAndSwap(false, true) {
		return ErrSyncInProgress
	}
	defer e.syncing.Store(false)

	if e.hooks.BeforeSync != nil {
		e.hooks.BeforeSync()
	}

	remote, err := e.Fetch(ctx)
	if err != nil {
		if errors.Is(err, ErrSyncDisabled) {
			return err
		}
		return e.fail(SyncErrorFetch, err)
	}

	local := e.Current()
	merged := Merge(local, remote, local.Sync.Strategy)

	if err := Validate(merged); err != nil {
		return e.fail(SyncErrorValidation, fmt.Errorf("config: merged document invalid: %w", err))
	}

	diff := Diff(local, merged)
	if diff.Empty() {
		if e.hooks.AfterSync != nil {
			e.hooks.AfterSync(nil)
		}
		return nil
	}

	e.mu.Lock()
	e.current = merged
	e.mu.Unlock()

	slog.Info("remote config applied", "strategy", local.Sync.Strategy, "diff", diff)
	if e.onApply != nil {
		e.onApply(local, merged, diff)
	}
	if e.hooks.AfterSync != nil {
		e.hooks.AfterSync(diff.UpdatedFields)
	}
	return nil
}

// fail reports a sync failure through the hook and returns the error.
func (e *SyncEngine) fail(kind string, err error) error {
	slog.Warn("config sync failed", "type", kind, "err", err)
	if e.hooks.SyncError != nil {
		e.hooks.SyncError(kind, err)
	}
	return err
}

// Run ticks Sync every sync.interval_seconds until ctx is cancelled. Cycle
// failures are reported through the hooks and do not stop the loop.
func (e *SyncEngine) Run(ctx context.Context) {
	interval := time.Duration(e.Current().Sync.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.Sync(ctx); err != nil && !errors.Is(err, ErrSyncDisabled) {
				slog.Debug("auto sync cycle failed", "err", err)
			}
		}
	}
}

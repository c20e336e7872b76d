// Package ratelimit gates outgoing comments with a minimum interval, a
// sliding-window cap, a burst cooldown, and normalized content deduplication.
package ratelimit

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/aizuchi/internal/textnorm"
)

// Reason explains why a check rejected a comment.
type Reason string

const (
	ReasonInvalid     Reason = "invalid"
	ReasonDuplicate   Reason = "duplicate"
	ReasonCooldown    Reason = "cooldown"
	ReasonMinInterval Reason = "min_interval"
	ReasonRateLimit   Reason = "rate_limit"
)

// burstWindow is the lookback used to detect a posting burst that triggers the
// cooldown: 3 or more allowed posts within it.
const burstWindow = 60 * time.Second

// burstCount is the number of allowed posts within burstWindow that starts a
// cooldown.
const burstCount = 3

// Config carries the limiter tuning. Zero values fall back to defaults where
// noted; a zero Cooldown disables the burst cooldown.
type Config struct {
	// MinInterval is the minimum gap between two allowed posts.
	MinInterval time.Duration

	// WindowCap is the maximum number of allowed posts per Window.
	// Default: 20.
	WindowCap int

	// Window is the sliding-window span. Default: 10 minutes.
	Window time.Duration

	// Cooldown is how long posting pauses after a burst. Zero disables.
	Cooldown time.Duration

	// DedupeWindow is how long a posted text blocks normalized duplicates.
	DedupeWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.WindowCap <= 0 {
		c.WindowCap = 20
	}
	if c.Window <= 0 {
		c.Window = 10 * time.Minute
	}
	return c
}

// Result is the outcome of a single check.
type Result struct {
	Allowed bool

	// Reason is set on rejection.
	Reason Reason

	// RetryAfter is how long until the failing rule would pass, when that is
	// knowable (cooldown, min_interval, rate_limit).
	RetryAfter time.Duration
}

type record struct {
	norm string
	at   time.Time
}

// Limiter applies the posting rules. Safe for concurrent use.
type Limiter struct {
	mu            sync.Mutex
	cfg           Config
	history       []record
	lastPost      time.Time
	cooldownUntil time.Time

	now func() time.Time // test hook
}

// New creates a Limiter from cfg.
func New(cfg Config) *Limiter {
	return &Limiter{cfg: cfg.withDefaults(), now: time.Now}
}

// Update atomically replaces the limiter configuration. History, last-post,
// and cooldown state are kept.
func (l *Limiter) Update(cfg Config) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.cfg = cfg.withDefaults()
}

// Check decides whether text may be posted now. Rules are evaluated in a fixed
// order and the first failing one wins: invalid, duplicate, cooldown,
// min_interval, rate_limit. On allow, the post is recorded immediately.
func (l *Limiter) Check(text string) Result {
	if strings.TrimSpace(text) == "" {
		return Result{Reason: ReasonInvalid}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	norm := textnorm.Dedupe(text)

	for _, rec := range l.history {
		if rec.norm == norm && now.Sub(rec.at) < l.cfg.DedupeWindow {
			return Result{Reason: ReasonDuplicate}
		}
	}

	if now.Before(l.cooldownUntil) {
		return Result{Reason: ReasonCooldown, RetryAfter: l.cooldownUntil.Sub(now)}
	}

	if !l.lastPost.IsZero() {
		if elapsed := now.Sub(l.lastPost); elapsed < l.cfg.MinInterval {
			return Result{Reason: ReasonMinInterval, RetryAfter: l.cfg.MinInterval - elapsed}
		}
	}

	if oldest, n := l.windowState(now); n >= l.cfg.WindowCap {
		return Result{Reason: ReasonRateLimit, RetryAfter: oldest.Add(l.cfg.Window).Sub(now)}
	}

	l.history = append(l.history, record{norm: norm, at: now})
	l.lastPost = now

	if l.cfg.Cooldown > 0 && l.countSince(now.Add(-burstWindow)) >= burstCount {
		l.cooldownUntil = now.Add(l.cfg.Cooldown)
		slog.Info("posting burst detected, entering cooldown",
			"cooldown", l.cfg.Cooldown)
	}
	return Result{Allowed: true}
}

// windowState returns the timestamp of the oldest record inside the sliding
// window and the number of records in it. Must be called with l.mu held.
func (l *Limiter) windowState(now time.Time) (time.Time, int) {
	cutoff := now.Add(-l.cfg.Window)
	var oldest time.Time
	n := 0
	for _, rec := range l.history {
		if rec.at.After(cutoff) {
			if n == 0 {
				oldest = rec.at
			}
			n++
		}
	}
	return oldest, n
}

// countSince counts records at or after cutoff. Must be called with l.mu held.
func (l *Limiter) countSince(cutoff time.Time) int {
	n := 0
	for _, rec := range l.history {
		if !rec.at.Before(cutoff) {
			n++
		}
	}
	return n
}

// Cleanup discards records too old to influence any rule.
func (l *Limiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	horizon := max(l.cfg.Window, l.cfg.DedupeWindow, burstWindow)
	cutoff := l.now().Add(-horizon)
	i := 0
	for ; i < len(l.history); i++ {
		if l.history[i].at.After(cutoff) {
			break
		}
	}
	l.history = l.history[i:]
}

// Run cleans up periodically until ctx is cancelled.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
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
			l.Cleanup()
		}
	}
}

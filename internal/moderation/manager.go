// Package moderation evaluates generated comments against the configured
// safety policy. It drives a primary moderation backend with a fallback,
// applies the per-level category threshold table to the raw scores, and runs
// the single-attempt rewrite loop for flagged text.
package moderation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	modprov "github.com/MrWong99/aizuchi/pkg/provider/moderation"
)

// opTimeout bounds every single backend call made by the manager.
const opTimeout = 10 * time.Second

// Config carries the safety policy applied by a [Manager].
type Config struct {
	// Enabled gates moderation entirely. When false, Moderate returns an
	// approving verdict without calling any backend.
	Enabled bool

	// Level selects the threshold table.
	Level Level

	// BlockOnUncertainty decides the synthetic verdict when both backends
	// fail: true blocks, false approves.
	BlockOnUncertainty bool

	// Overrides replaces individual category thresholds on top of the table
	// selected by Level.
	Overrides map[modprov.Category]float64
}

// Stats are the cumulative counters of a [Manager].
type Stats struct {
	TotalRequests   int64
	FlaggedCount    int64
	PrimaryFailures int64
	FallbackUsages  int64
	AvgLatency      time.Duration
}

// ProviderHealth is the last probe result for one backend.
type ProviderHealth struct {
	Name        string
	Healthy     bool
	LastChecked time.Time
	Error       string
}

// RewriteResult is the outcome of the moderate-and-rewrite loop.
type RewriteResult struct {
	// Text is the final text: the rewrite when one happened, the input
	// otherwise.
	Text string

	// WasRewritten is true when the backend produced a replacement that was
	// accepted by re-moderation.
	WasRewritten bool

	// First is the verdict on the input, Final the verdict on Text. Without a
	// rewrite the two are identical.
	First modprov.Verdict
	Final modprov.Verdict
}

// Manager moderates text through a primary backend with fallback and applies
// the configured thresholds. Safe for concurrent use.
type Manager struct {
	primary  modprov.Provider
	fallback modprov.Provider // may be nil

	mu         sync.RWMutex
	cfg        Config
	thresholds map[modprov.Category]float64

	statsMu sync.Mutex
	stats   Stats
}

// NewManager creates a Manager over primary with an optional fallback backend.
func NewManager(primary, fallback modprov.Provider, cfg Config) *Manager {
	m := &Manager{primary: primary, fallback: fallback}
	m.Update(cfg)
	return m
}

// Update atomically replaces the safety configuration. In-flight moderations
// finish under the table they started with.
func (m *Manager) Update(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
	m.thresholds = Thresholds(cfg.Level, cfg.Overrides)
}

// Moderate scores text and applies the threshold table. Backend failures fall
// through primary → fallback; if both fail, the verdict is synthetic and
// follows BlockOnUncertainty. Moderate itself never returns an error for
// backend failures, only a degraded verdict.
func (m *Manager) Moderate(ctx context.Context, text string) modprov.Verdict {
	m.mu.RLock()
	cfg := m.cfg
	thresholds := m.thresholds
	m.mu.RUnlock()

	if !cfg.Enabled {
		return modprov.Verdict{SuggestedAction: modprov.ActionApprove}
	}

	start := time.Now()
	verdict, err := m.callBackends(ctx, text)
	latency := time.Since(start)

	if err != nil {
		verdict = m.syntheticVerdict(cfg, err)
	} else {
		verdict = applyThresholds(verdict, thresholds)
	}

	m.recordStats(verdict, latency)
	return verdict
}

// callBackends tries the primary and then the fallback.
func (m *Manager) callBackends(ctx context.Context, text string) (modprov.Verdict, error) {
	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()

	verdict, err := m.primary.Moderate(opCtx, text)
	if err == nil {
		return verdict, nil
	}

	m.statsMu.Lock()
	m.stats.PrimaryFailures++
	m.statsMu.Unlock()
	slog.Warn("primary moderation failed",
		"provider", m.primary.Name(), "error", err)

	if m.fallback == nil {
		return modprov.Verdict{}, err
	}

	m.statsMu.Lock()
	m.stats.FallbackUsages++
	m.statsMu.Unlock()

	fbCtx, fbCancel := context.WithTimeout(ctx, opTimeout)
	defer fbCancel()
	verdict, fbErr := m.fallback.Moderate(fbCtx, text)
	if fbErr != nil {
		return modprov.Verdict{}, fmt.Errorf("fallback after %v: %w", err, fbErr)
	}
	return verdict, nil
}

// syntheticVerdict is returned when every backend failed.
func (m *Manager) syntheticVerdict(cfg Config, err error) modprov.Verdict {
	v := modprov.Verdict{
		Flagged:  cfg.BlockOnUncertainty,
		ErrorTag: err.Error(),
	}
	if cfg.BlockOnUncertainty {
		v.SuggestedAction = modprov.ActionBlock
	} else {
		v.SuggestedAction = modprov.ActionApprove
	}
	slog.Error("all moderation providers failed",
		"block_on_uncertainty", cfg.BlockOnUncertainty, "error", err)
	return v
}

// applyThresholds flags every category whose score meets its threshold and
// derives the suggested action from the maximum score.
func applyThresholds(v modprov.Verdict, thresholds map[modprov.Category]float64) modprov.Verdict {
	v.Flagged = false
	v.FlaggedCategories = nil
	for _, cat := range modprov.Categories {
		score, ok := v.Scores[cat]
		if !ok {
			continue
		}
		if threshold, ok := thresholds[cat]; ok && score >= threshold {
			v.Flagged = true
			v.FlaggedCategories = append(v.FlaggedCategories, cat)
		}
	}

	max := v.MaxScore()
	switch {
	case max >= 0.8:
		v.SuggestedAction = modprov.ActionBlock
	case max >= 0.6:
		v.SuggestedAction = modprov.ActionRewrite
	case v.Flagged:
		v.SuggestedAction = modprov.ActionReview
	default:
		v.SuggestedAction = modprov.ActionApprove
	}
	return v
}

// ModerateAndRewrite moderates text and, when flagged, makes a single rewrite
// attempt through the primary backend followed by re-moderation. There is no
// inner retry loop: one rewrite, one re-check.
func (m *Manager) ModerateAndRewrite(ctx context.Context, text, guidelines string) (RewriteResult, error) {
	first := m.Moderate(ctx, text)
	res := RewriteResult{Text: text, First: first, Final: first}
	if !first.Flagged {
		return res, nil
	}

	opCtx, cancel := context.WithTimeout(ctx, opTimeout)
	defer cancel()
	outcome, err := m.primary.Rewrite(opCtx, text, guidelines)
	if err != nil && m.fallback != nil {
		slog.Warn("primary rewrite failed, trying fallback",
			"provider", m.primary.Name(), "error", err)
		fbCtx, fbCancel := context.WithTimeout(ctx, opTimeout)
		defer fbCancel()
		outcome, err = m.fallback.Rewrite(fbCtx, text, guidelines)
	}
	if err != nil {
		return res, fmt.Errorf("rewrite: %w", err)
	}
	if !outcome.WasRewritten || outcome.Rewritten == "" {
		return res, nil
	}

	final := m.Moderate(ctx, outcome.Rewritten)
	res.Final = final
	if final.Flagged {
		// The rewrite is no better than the original; keep the original
		// verdict so the caller blocks it.
		return res, nil
	}

	res.Text = outcome.Rewritten
	res.WasRewritten = true
	return res, nil
}

// Stats returns a copy of the cumulative counters.
func (m *Manager) Stats() Stats {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	return m.stats
}

// recordStats updates counters and the running latency average.
func (m *Manager) recordStats(v modprov.Verdict, latency time.Duration) {
	m.statsMu.Lock()
	defer m.statsMu.Unlock()
	m.stats.TotalRequests++
	if v.Flagged {
		m.stats.FlaggedCount++
	}
	n := m.stats.TotalRequests
	m.stats.AvgLatency += (latency - m.stats.AvgLatency) / time.Duration(n)
}

// Health probes both backends independently.
func (m *Manager) Health(ctx context.Context) []ProviderHealth {
	providers := []modprov.Provider{m.primary}
	if m.fallback != nil {
		providers = append(providers, m.fallback)
	}

	out := make([]ProviderHealth, 0, len(providers))
	for _, p := range providers {
		probeCtx, cancel := context.WithTimeout(ctx, opTimeout)
		err := p.Healthy(probeCtx)
		cancel()
		h := ProviderHealth{
			Name:        p.Name(),
			Healthy:     err == nil,
			LastChecked: time.Now(),
		}
		if err != nil {
			h.Error = err.Error()
		}
		out = append(out, h)
	}
	return out
}

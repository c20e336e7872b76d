package health

import (
	"context"
	"log/slog"
	"time"
)

// DefaultProbeInterval is the wait between periodic provider probes.
const DefaultProbeInterval = 30 * time.Second

// Probeable is anything that can re-check the health of its members, such as
// a failover controller over a provider chain.
type Probeable interface {
	Name() string
	RunProbes(ctx context.Context)
}

// Prober periodically invokes RunProbes on each registered target so that
// providers marked unhealthy by a failover controller get a chance to recover
// without waiting for live traffic.
type Prober struct {
	targets  []Probeable
	interval time.Duration
}

// NewProber creates a Prober over targets. A non-positive interval selects
// [DefaultProbeInterval].
func NewProber(interval time.Duration, targets ...Probeable) *Prober {
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	return &Prober{targets: targets, interval: interval}
}

// Run probes all targets once immediately, then on every tick until ctx is
// cancelled. It always returns nil so it can sit in an errgroup without
// tearing the group down.
func (p *Prober) Run(ctx context.Context) error {
	p.probeAll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.probeAll(ctx)
		}
	}
}

func (p *Prober) probeAll(ctx context.Context) {
	for _, t := range p.targets {
		t.RunProbes(ctx)
		slog.Debug("health probe completed", "target", t.Name())
	}
}

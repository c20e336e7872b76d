package resilience

import (
	"context"

	"github.com/MrWong99/aizuchi/pkg/provider/stt"
	"github.com/MrWong99/aizuchi/pkg/types"
)

// STTFailover implements [stt.Provider] with health-aware failover across
// multiple STT backends.
type STTFailover struct {
	ctrl *Controller[stt.Provider]
}

// Compile-time interface assertion.
var _ stt.Provider = (*STTFailover)(nil)

// NewSTTFailover creates an [STTFailover] with primary as the preferred
// backend. Additional backends are registered via Add.
func NewSTTFailover(primary stt.Provider, cfg Config) *STTFailover {
	f := &STTFailover{ctrl: NewController[stt.Provider](cfg)}
	f.ctrl.Add(primary.Name(), primary)
	return f
}

// Add registers an additional STT backend as a fallback.
func (f *STTFailover) Add(p stt.Provider) {
	f.ctrl.Add(p.Name(), p)
}

// Name identifies the composite provider.
func (f *STTFailover) Name() string { return "stt-failover" }

// Transcribe runs batch recognition against the first healthy backend.
func (f *STTFailover) Transcribe(ctx context.Context, audio []byte, opts stt.TranscribeOptions) (types.Transcript, error) {
	return ExecuteWith(f.ctrl, func(p stt.Provider) (types.Transcript, error) {
		return p.Transcribe(ctx, audio, opts)
	})
}

// StartStream opens a streaming session against the first healthy backend.
// Failover covers session establishment only; mid-stream errors surface
// through the session handle.
func (f *STTFailover) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return ExecuteWith(f.ctrl, func(p stt.Provider) (stt.SessionHandle, error) {
		return p.StartStream(ctx, cfg)
	})
}

// Healthy reports nil when at least one backend answers its probe.
func (f *STTFailover) Healthy(ctx context.Context) error {
	return f.ctrl.Execute(func(p stt.Provider) error {
		return p.Healthy(ctx)
	})
}

// RunProbes reprobes backend health until ctx is cancelled.
func (f *STTFailover) RunProbes(ctx context.Context) {
	f.ctrl.RunProbes(ctx, func(ctx context.Context, p stt.Provider) error {
		return p.Healthy(ctx)
	})
}

// Health returns the backend health table.
func (f *STTFailover) Health() []Status { return f.ctrl.Health() }

package resilience

import (
	"context"

	"github.com/MrWong99/aizuchi/pkg/provider/llm"
	"github.com/MrWong99/aizuchi/pkg/types"
)

// LLMFailover implements [llm.Provider] with health-aware failover across
// multiple LLM backends.
type LLMFailover struct {
	ctrl *Controller[llm.Provider]
}

// Compile-time interface assertion.
var _ llm.Provider = (*LLMFailover)(nil)

// NewLLMFailover creates an [LLMFailover] with primary as the preferred
// backend.
func NewLLMFailover(primary llm.Provider, cfg Config) *LLMFailover {
	f := &LLMFailover{ctrl: NewController[llm.Provider](cfg)}
	f.ctrl.Add(primary.Name(), primary)
	return f
}

// Add registers an additional LLM backend as a fallback.
func (f *LLMFailover) Add(p llm.Provider) {
	f.ctrl.Add(p.Name(), p)
}

// Name identifies the composite provider.
func (f *LLMFailover) Name() string { return "llm-failover" }

// GenerateComment asks the first healthy backend for a comment.
func (f *LLMFailover) GenerateComment(ctx context.Context, req llm.CommentRequest) (llm.CommentResult, error) {
	return ExecuteWith(f.ctrl, func(p llm.Provider) (llm.CommentResult, error) {
		return p.GenerateComment(ctx, req)
	})
}

// ClassifyOpportunity asks the first healthy backend for a label.
func (f *LLMFailover) ClassifyOpportunity(ctx context.Context, req llm.ClassifyRequest) (types.Opportunity, error) {
	return ExecuteWith(f.ctrl, func(p llm.Provider) (types.Opportunity, error) {
		return p.ClassifyOpportunity(ctx, req)
	})
}

// Chat runs a raw completion against the first healthy backend.
func (f *LLMFailover) Chat(ctx context.Context, messages []types.Message, opts llm.ChatOptions) (llm.ChatResponse, error) {
	return ExecuteWith(f.ctrl, func(p llm.Provider) (llm.ChatResponse, error) {
		return p.Chat(ctx, messages, opts)
	})
}

// Healthy reports nil when at least one backend answers its probe.
func (f *LLMFailover) Healthy(ctx context.Context) error {
	return f.ctrl.Execute(func(p llm.Provider) error {
		return p.Healthy(ctx)
	})
}

// RunProbes reprobes backend health until ctx is cancelled.
func (f *LLMFailover) RunProbes(ctx context.Context) {
	f.ctrl.RunProbes(ctx, func(ctx context.Context, p llm.Provider) error {
		return p.Healthy(ctx)
	})
}

// Health returns the backend health table.
func (f *LLMFailover) Health() []Status { return f.ctrl.Health() }

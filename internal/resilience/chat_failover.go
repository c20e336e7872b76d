package resilience

import (
	"context"

	"github.com/MrWong99/aizuchi/pkg/provider/chat"
)

// ChatFailover implements [chat.Provider] with health-aware failover across
// multiple live-chat backends.
type ChatFailover struct {
	ctrl *Controller[chat.Provider]
}

// Compile-time interface assertion.
var _ chat.Provider = (*ChatFailover)(nil)

// NewChatFailover creates a [ChatFailover] with primary as the preferred
// backend.
func NewChatFailover(primary chat.Provider, cfg Config) *ChatFailover {
	f := &ChatFailover{ctrl: NewController[chat.Provider](cfg)}
	f.ctrl.Add(primary.Name(), primary)
	return f
}

// Add registers an additional chat backend as a fallback.
func (f *ChatFailover) Add(p chat.Provider) {
	f.ctrl.Add(p.Name(), p)
}

// Name identifies the composite provider.
func (f *ChatFailover) Name() string { return "chat-failover" }

// Post publishes text through the first healthy backend.
func (f *ChatFailover) Post(ctx context.Context, chatID, text string) (chat.Receipt, error) {
	return ExecuteWith(f.ctrl, func(p chat.Provider) (chat.Receipt, error) {
		return p.Post(ctx, chatID, text)
	})
}

// LiveChatID resolves the chat identifier through the first healthy backend.
func (f *ChatFailover) LiveChatID(ctx context.Context, broadcastID string) (string, error) {
	return ExecuteWith(f.ctrl, func(p chat.Provider) (string, error) {
		return p.LiveChatID(ctx, broadcastID)
	})
}

// RateLimitInfo reports the quota of the first healthy backend.
func (f *ChatFailover) RateLimitInfo(ctx context.Context) (chat.RateLimitInfo, error) {
	return ExecuteWith(f.ctrl, func(p chat.Provider) (chat.RateLimitInfo, error) {
		return p.RateLimitInfo(ctx)
	})
}

// Healthy reports nil when at least one backend answers its probe.
func (f *ChatFailover) Healthy(ctx context.Context) error {
	return f.ctrl.Execute(func(p chat.Provider) error {
		return p.Healthy(ctx)
	})
}

// RunProbes reprobes backend health until ctx is cancelled.
func (f *ChatFailover) RunProbes(ctx context.Context) {
	f.ctrl.RunProbes(ctx, func(ctx context.Context, p chat.Provider) error {
		return p.Healthy(ctx)
	})
}

// Health returns the backend health table.
func (f *ChatFailover) Health() []Status { return f.ctrl.Health() }

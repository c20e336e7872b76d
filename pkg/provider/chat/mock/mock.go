// Package mock provides a test double for the chat package interfaces.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/aizuchi/pkg/provider/chat"
)

// PostCall records a single invocation of Provider.Post.
type PostCall struct {
	ChatID string
	Text   string
}

// Provider is a mock implementation of chat.Provider.
type Provider struct {
	mu sync.Mutex

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// PostErr, if non-nil, is returned by every Post call.
	PostErr error

	// ChatID is returned by LiveChatID when LiveChatIDErr is nil.
	// Defaults to "chat-" + broadcastID.
	ChatID string

	// LiveChatIDErr, if non-nil, is returned by LiveChatID.
	LiveChatIDErr error

	// RateLimit is returned by RateLimitInfo. The zero value reports an
	// unlimited quota (Remaining defaults to Limit when both are zero).
	RateLimit chat.RateLimitInfo

	// HealthyErr, if non-nil, is returned by Healthy.
	HealthyErr error

	// PostCalls records every call to Post in order.
	PostCalls []PostCall
}

// Name returns ProviderName, or "mock" when unset.
func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

// Post records the call and returns a receipt with a fresh UUID.
func (p *Provider) Post(_ context.Context, chatID, text string) (chat.Receipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.PostCalls = append(p.PostCalls, PostCall{ChatID: chatID, Text: text})
	if p.PostErr != nil {
		return chat.Receipt{}, p.PostErr
	}
	return chat.Receipt{ID: uuid.NewString(), Timestamp: time.Now()}, nil
}

// LiveChatID returns ChatID, or "chat-" + broadcastID when unset.
func (p *Provider) LiveChatID(_ context.Context, broadcastID string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.LiveChatIDErr != nil {
		return "", p.LiveChatIDErr
	}
	if p.ChatID != "" {
		return p.ChatID, nil
	}
	return "chat-" + broadcastID, nil
}

// RateLimitInfo returns the configured RateLimit. When both Limit and
// Remaining are zero an effectively unlimited quota is reported.
func (p *Provider) RateLimitInfo(context.Context) (chat.RateLimitInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	rl := p.RateLimit
	if rl.Limit == 0 && rl.Remaining == 0 {
		rl.Limit = 1 << 30
		rl.Remaining = 1 << 30
	}
	return rl, nil
}

// Healthy returns HealthyErr.
func (p *Provider) Healthy(context.Context) error { return p.HealthyErr }

// PostCount returns the number of Post calls. Thread-safe.
func (p *Provider) PostCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.PostCalls)
}

var _ chat.Provider = (*Provider)(nil)

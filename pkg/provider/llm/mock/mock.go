// Package mock provides a test double for the llm package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/aizuchi/pkg/provider/llm"
	"github.com/MrWong99/aizuchi/pkg/types"
)

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// GenerateResult is returned by GenerateComment when GenerateErr is nil.
	GenerateResult llm.CommentResult

	// GenerateErr, if non-nil, is returned by every GenerateComment call.
	GenerateErr error

	// ClassifyResult is returned by ClassifyOpportunity when ClassifyErr is nil.
	ClassifyResult types.Opportunity

	// ClassifyErr, if non-nil, is returned by every ClassifyOpportunity call.
	ClassifyErr error

	// ChatResult is returned by Chat when ChatErr is nil.
	ChatResult llm.ChatResponse

	// ChatErr, if non-nil, is returned by every Chat call.
	ChatErr error

	// HealthyErr, if non-nil, is returned by Healthy.
	HealthyErr error

	// GenerateCalls records every CommentRequest passed to GenerateComment.
	GenerateCalls []llm.CommentRequest

	// ClassifyCalls records every ClassifyRequest passed to ClassifyOpportunity.
	ClassifyCalls []llm.ClassifyRequest

	// ChatCalls records every message list passed to Chat.
	ChatCalls [][]types.Message
}

// Name returns ProviderName, or "mock" when unset.
func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

// GenerateComment records the call and returns GenerateResult, GenerateErr.
func (p *Provider) GenerateComment(_ context.Context, req llm.CommentRequest) (llm.CommentResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.GenerateCalls = append(p.GenerateCalls, req)
	if p.GenerateErr != nil {
		return llm.CommentResult{}, p.GenerateErr
	}
	return p.GenerateResult, nil
}

// ClassifyOpportunity records the call and returns ClassifyResult, ClassifyErr.
func (p *Provider) ClassifyOpportunity(_ context.Context, req llm.ClassifyRequest) (types.Opportunity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ClassifyCalls = append(p.ClassifyCalls, req)
	if p.ClassifyErr != nil {
		return types.Opportunity{}, p.ClassifyErr
	}
	return p.ClassifyResult, nil
}

// Chat records the call and returns ChatResult, ChatErr.
func (p *Provider) Chat(_ context.Context, messages []types.Message, _ llm.ChatOptions) (llm.ChatResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	msgs := make([]types.Message, len(messages))
	copy(msgs, messages)
	p.ChatCalls = append(p.ChatCalls, msgs)
	if p.ChatErr != nil {
		return llm.ChatResponse{}, p.ChatErr
	}
	return p.ChatResult, nil
}

// Healthy returns HealthyErr.
func (p *Provider) Healthy(context.Context) error { return p.HealthyErr }

var _ llm.Provider = (*Provider)(nil)

// Package mock provides a test double for the moderation package interfaces.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/aizuchi/pkg/provider/moderation"
)

// Provider is a mock implementation of moderation.Provider.
//
// ModerateFn, when set, takes precedence over ModerateResult/ModerateErr and
// lets tests vary the verdict per input text (e.g., approve the rewritten
// text while flagging the original).
type Provider struct {
	mu sync.Mutex

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// ModerateFn, if non-nil, handles every Moderate call.
	ModerateFn func(text string) (moderation.Verdict, error)

	// ModerateResult is returned by Moderate when ModerateFn is nil and
	// ModerateErr is nil.
	ModerateResult moderation.Verdict

	// ModerateErr, if non-nil, is returned by every Moderate call.
	ModerateErr error

	// RewriteResult is returned by Rewrite when RewriteErr is nil.
	RewriteResult moderation.RewriteOutcome

	// RewriteErr, if non-nil, is returned by every Rewrite call.
	RewriteErr error

	// HealthyErr, if non-nil, is returned by Healthy.
	HealthyErr error

	// ModerateCalls records every text passed to Moderate.
	ModerateCalls []string

	// RewriteCalls records every text passed to Rewrite.
	RewriteCalls []string
}

// Name returns ProviderName, or "mock" when unset.
func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

// Moderate records the call and dispatches to ModerateFn or the fixed result.
func (p *Provider) Moderate(_ context.Context, text string) (moderation.Verdict, error) {
	p.mu.Lock()
	p.ModerateCalls = append(p.ModerateCalls, text)
	fn := p.ModerateFn
	p.mu.Unlock()

	if fn != nil {
		return fn(text)
	}
	if p.ModerateErr != nil {
		return moderation.Verdict{}, p.ModerateErr
	}
	return p.ModerateResult, nil
}

// ModerateBatch applies Moderate to each text in order.
func (p *Provider) ModerateBatch(ctx context.Context, texts []string) ([]moderation.Verdict, error) {
	out := make([]moderation.Verdict, 0, len(texts))
	for _, t := range texts {
		v, err := p.Moderate(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Rewrite records the call and returns RewriteResult, RewriteErr.
func (p *Provider) Rewrite(_ context.Context, text, _ string) (moderation.RewriteOutcome, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.RewriteCalls = append(p.RewriteCalls, text)
	if p.RewriteErr != nil {
		return moderation.RewriteOutcome{}, p.RewriteErr
	}
	return p.RewriteResult, nil
}

// Healthy returns HealthyErr.
func (p *Provider) Healthy(context.Context) error { return p.HealthyErr }

var _ moderation.Provider = (*Provider)(nil)

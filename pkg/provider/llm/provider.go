// Package llm defines the Provider interface for large language model
// backends used by the commentator: comment generation, opportunity
// classification, and a raw chat operation for rewrites and summaries.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly.
package llm

import (
	"context"

	"github.com/MrWong99/aizuchi/pkg/types"
)

// CommentRequest carries the persona and conversational context needed to
// synthesize one chat comment.
type CommentRequest struct {
	// Persona is the character description injected into the system prompt.
	Persona string

	// Tone is the requested register (e.g., "friendly", "excited").
	Tone string

	// EncouragedExpressions lists phrases the persona favours.
	EncouragedExpressions []string

	// RecentTranscripts is the rolling window of finalized broadcast speech,
	// oldest first.
	RecentTranscripts []string

	// RecentComments lists comments already posted, oldest first, so the
	// model can avoid repeating itself.
	RecentComments []string

	// Topics is the ordered list of currently active topics.
	Topics []string

	// TargetLengthMin and TargetLengthMax bound the desired comment length in
	// code points. Advisory for the model; enforced downstream by the policy
	// engine.
	TargetLengthMin int
	TargetLengthMax int
}

// CommentResult is the outcome of comment generation.
type CommentResult struct {
	Comment    string
	Confidence float64
}

// ClassifyRequest asks the model whether now is a good moment to comment.
type ClassifyRequest struct {
	// Transcript is the current utterance text.
	Transcript string

	// RecentTranscripts is the rolling context window, oldest first.
	RecentTranscripts []string

	// Engagement is the current engagement estimate in [0, 1].
	Engagement float64
}

// ChatOptions tunes a raw chat completion.
type ChatOptions struct {
	// Temperature controls randomness in [0.0, 2.0].
	Temperature float64

	// MaxTokens caps completion length. Zero means provider default.
	MaxTokens int
}

// ChatResponse is the result of a raw chat completion.
type ChatResponse struct {
	Message types.Message
	Usage   types.Usage
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Name returns the provider tag used in error wrapping.
	Name() string

	// GenerateComment produces one chat comment fitting the persona and
	// context in req.
	GenerateComment(ctx context.Context, req CommentRequest) (CommentResult, error)

	// ClassifyOpportunity labels the current moment as necessary,
	// unnecessary, or hold.
	ClassifyOpportunity(ctx context.Context, req ClassifyRequest) (types.Opportunity, error)

	// Chat performs a raw completion over messages.
	Chat(ctx context.Context, messages []types.Message, opts ChatOptions) (ChatResponse, error)

	// Healthy probes the backend. A nil return means the provider is usable.
	Healthy(ctx context.Context) error
}

// Package chat defines the Provider interface for live-chat backends that
// accept posted comments for a broadcast.
package chat

import (
	"context"
	"time"
)

// MaxMessageLength is the hard upper bound on posted comment length in code
// points. Providers reject longer texts with a non-retryable error.
const MaxMessageLength = 200

// Receipt confirms a successfully posted comment.
type Receipt struct {
	// ID is the provider-assigned message identifier.
	ID string

	// Timestamp is when the provider accepted the post.
	Timestamp time.Time
}

// RateLimitInfo reports the provider-side posting quota.
type RateLimitInfo struct {
	// Limit is the total quota for the current window.
	Limit int

	// Remaining is the number of posts left in the current window.
	Remaining int

	// ResetAt is when the quota window resets.
	ResetAt time.Time

	// RetryAfter is the provider-suggested wait before the next attempt.
	// Zero when posting is currently allowed.
	RetryAfter time.Duration
}

// Provider is the abstraction over any live-chat backend.
//
// Implementations must be safe for concurrent use. Posts of empty text, text
// over [MaxMessageLength] code points, or duplicates within the provider's
// configured window are rejected with non-retryable errors.
type Provider interface {
	// Name returns the provider tag used in error wrapping.
	Name() string

	// Post publishes text to the live chat identified by chatID.
	Post(ctx context.Context, chatID, text string) (Receipt, error)

	// LiveChatID resolves the chat identifier for a broadcast.
	LiveChatID(ctx context.Context, broadcastID string) (string, error)

	// RateLimitInfo reports the current provider-side posting quota.
	RateLimitInfo(ctx context.Context) (RateLimitInfo, error)

	// Healthy probes the backend. A nil return means the provider is usable.
	Healthy(ctx context.Context) error
}

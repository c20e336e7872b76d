// Package policy enforces the comment policy before anything reaches
// moderation or the chat provider: forbidden-term redaction under the
// canonical normalization map, length adjustment into the configured
// code-point range, and emoji allow-listing with anti-repetition.
//
// The sub-policies are applied in a fixed order: forbidden terms first, then
// emoji sanitization, then length adjustment. Length runs last so that the
// final text is always inside the configured range even after redaction or
// emoji removal shortened it.
//
// Engine is safe for concurrent use.
package policy

import (
	"errors"
	"sync"
	"time"
)

// ErrEmojiRepetition is returned by Apply when the comment's emoji set
// overlaps a recently posted comment.
var ErrEmojiRepetition = errors.New("policy: emoji set repeats a recent comment")

// Config carries the tunable parts of the comment policy.
type Config struct {
	// Tone is the requested register, forwarded to generation prompts.
	Tone string

	// Persona is the character description, forwarded to generation prompts.
	Persona string

	// EncouragedExpressions are persona phrases; they double as length
	// fillers.
	EncouragedExpressions []string

	// ForbiddenTerms seeds the forbidden-term set.
	ForbiddenTerms []string

	// LengthMin and LengthMax bound comment length in code points.
	LengthMin int
	LengthMax int

	// EmojiEnabled, EmojiMaxCount, and AllowedEmojis configure the emoji
	// policy.
	EmojiEnabled  bool
	EmojiMaxCount int
	AllowedEmojis []string

	// RepetitionWindow is how long emoji sets are remembered. Zero means 60s.
	RepetitionWindow time.Duration
}

// Engine applies the full comment policy.
type Engine struct {
	mu        sync.RWMutex
	forbidden *ForbiddenTerms
	length    LengthPolicy
	emoji     EmojiPolicy
	guard     *RepetitionGuard
}

// NewEngine creates an Engine from cfg.
func NewEngine(cfg Config) *Engine {
	e := &Engine{guard: NewRepetitionGuard(cfg.RepetitionWindow)}
	e.configure(cfg)
	return e
}

// configure rebuilds the sub-policies from cfg. The repetition guard keeps
// its history across reconfiguration; only its window is updated.
func (e *Engine) configure(cfg Config) {
	e.guard.SetWindow(cfg.RepetitionWindow)

	e.mu.Lock()
	defer e.mu.Unlock()

	e.forbidden = NewForbiddenTerms(cfg.ForbiddenTerms)
	e.length = LengthPolicy{
		Min:     cfg.LengthMin,
		Max:     cfg.LengthMax,
		Fillers: cfg.EncouragedExpressions,
	}
	e.emoji = EmojiPolicy{
		Enabled:  cfg.EmojiEnabled,
		MaxCount: cfg.EmojiMaxCount,
		Allowed:  cfg.AllowedEmojis,
	}
}

// Update atomically replaces the policy configuration.
func (e *Engine) Update(cfg Config) {
	e.configure(cfg)
}

// Apply enforces the policy on text and returns the compliant rendering:
// forbidden terms redacted, length within bounds, emojis sanitized. It
// returns [ErrEmojiRepetition] when the sanitized comment's emoji set
// overlaps a recent comment.
func (e *Engine) Apply(text string) (string, error) {
	e.mu.RLock()
	forbidden, length, emoji := e.forbidden, e.length, e.emoji
	e.mu.RUnlock()

	out, _ := forbidden.Redact(text)
	out = emoji.Sanitize(out)
	out = length.Adjust(out)

	if !e.guard.Check(out) {
		return "", ErrEmojiRepetition
	}
	return out, nil
}

// CommitComment records a posted comment with the repetition guard. Call
// after a successful post so rejected or unposted comments do not poison the
// window.
func (e *Engine) CommitComment(text string) {
	e.guard.Record(text)
}

// ContainsForbidden reports whether text matches a forbidden term under
// normalization.
func (e *Engine) ContainsForbidden(text string) bool {
	e.mu.RLock()
	f := e.forbidden
	e.mu.RUnlock()
	return f.Contains(text)
}

// AddForbiddenTerm inserts a term (and its katakana variant for kana input)
// into the live set.
func (e *Engine) AddForbiddenTerm(term string) {
	e.mu.RLock()
	f := e.forbidden
	e.mu.RUnlock()
	f.Add(term)
}

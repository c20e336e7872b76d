// Package moderation defines the Provider interface for content-moderation
// backends and the verdict types shared with the moderation manager.
package moderation

import "context"

// Category enumerates the harm categories scored by moderation backends.
type Category string

const (
	CategoryHate       Category = "hate"
	CategoryHarassment Category = "harassment"
	CategorySelfHarm   Category = "self-harm"
	CategorySexual     Category = "sexual"
	CategoryViolence   Category = "violence"
	CategoryIllegal    Category = "illegal"
	CategoryGraphic    Category = "graphic"
)

// Categories lists all known categories in a stable order.
var Categories = []Category{
	CategoryHate,
	CategoryHarassment,
	CategorySelfHarm,
	CategorySexual,
	CategoryViolence,
	CategoryIllegal,
	CategoryGraphic,
}

// Action is the suggested handling for a moderated text.
type Action string

const (
	ActionApprove Action = "approve"
	ActionReview  Action = "review"
	ActionBlock   Action = "block"
	ActionRewrite Action = "rewrite"
)

// Verdict is the outcome of moderating a single text.
type Verdict struct {
	// Flagged is true when any category score meets its threshold.
	Flagged bool

	// Scores maps each category to its score in [0, 1].
	Scores map[Category]float64

	// FlaggedCategories lists the categories whose scores met the threshold.
	FlaggedCategories []Category

	// SuggestedAction is derived from the maximum category score.
	SuggestedAction Action

	// ErrorTag is set when the verdict is synthetic (all providers failed).
	ErrorTag string

	// Provider tags which backend produced the verdict.
	Provider string
}

// MaxScore returns the highest category score in the verdict, or 0 when the
// score map is empty.
func (v Verdict) MaxScore() float64 {
	var max float64
	for _, s := range v.Scores {
		if s > max {
			max = s
		}
	}
	return max
}

// RewriteOutcome is the result of asking a backend to rewrite flagged text.
type RewriteOutcome struct {
	Original     string
	Rewritten    string
	WasRewritten bool
}

// Provider is the abstraction over any moderation backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Name returns the provider tag used in verdicts and error wrapping.
	Name() string

	// Moderate scores a single text. The returned verdict carries raw
	// category scores; threshold application happens in the manager.
	Moderate(ctx context.Context, text string) (Verdict, error)

	// ModerateBatch scores several texts in one call. The result slice is
	// index-aligned with texts.
	ModerateBatch(ctx context.Context, texts []string) ([]Verdict, error)

	// Rewrite asks the backend to produce a policy-compliant rendering of
	// text following guidelines.
	Rewrite(ctx context.Context, text, guidelines string) (RewriteOutcome, error)

	// Healthy probes the backend. A nil return means the provider is usable.
	Healthy(ctx context.Context) error
}

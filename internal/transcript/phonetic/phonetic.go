// Package phonetic ranks spoken phrases against a vocabulary by pronunciation
// and surface similarity.
//
// Matching runs in two stages. Double Metaphone codes are computed for the
// input tokens and for each vocabulary term; a shared code makes the term a
// phonetic candidate. Candidates are then ranked by Jaro-Winkler similarity
// on the original strings. Phonetic candidates only need to clear a modest
// similarity bar, while terms without any code overlap must clear a stricter
// one, so "valorent" still resolves to "Valorant" but unrelated words do not.
//
// Multi-token phrases are supported: similarity considers the full strings,
// the space-stripped strings, and the best pairwise token score, which covers
// recognizers that split one title into several words ("mine craft").
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultSurfaceThreshold  = 0.85
)

// Option configures a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum similarity for terms that share a
// phonetic code with the input. Default: 0.70.
func WithPhoneticThreshold(v float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = v }
}

// WithSurfaceThreshold sets the minimum similarity for terms without any
// phonetic code overlap. Default: 0.85.
func WithSurfaceThreshold(v float64) Option {
	return func(m *Matcher) { m.surfaceThreshold = v }
}

// Matcher resolves a phrase to its closest vocabulary term. Read-only after
// construction, safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	surfaceThreshold  float64
}

// New creates a Matcher with the default thresholds applied.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		surfaceThreshold:  defaultSurfaceThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Match returns the term most similar to phrase. When matched is false,
// corrected equals phrase unchanged and confidence is 0. Phonetic candidates
// beat surface-only candidates regardless of score.
func (m *Matcher) Match(phrase string, terms []string) (corrected string, confidence float64, matched bool) {
	input := strings.ToLower(strings.TrimSpace(phrase))
	if input == "" || len(terms) == 0 {
		return phrase, 0, false
	}
	inputTokens := strings.Fields(input)
	inputCodes := metaphoneCodes(inputTokens)

	var (
		best         string
		bestScore    float64
		bestPhonetic bool
	)
	for _, term := range terms {
		lower := strings.ToLower(strings.TrimSpace(term))
		if lower == "" {
			continue
		}
		termTokens := strings.Fields(lower)

		phonetic := codesOverlap(inputCodes, metaphoneCodes(termTokens))
		score := similarity(inputTokens, termTokens, input, lower)

		switch {
		case phonetic && score >= m.phoneticThreshold:
			if !bestPhonetic || score > bestScore {
				best, bestScore, bestPhonetic = term, score, true
			}
		case !phonetic && !bestPhonetic && score >= m.surfaceThreshold:
			if score > bestScore {
				best, bestScore = term, score
			}
		}
	}

	if best == "" {
		return phrase, 0, false
	}
	return best, bestScore, true
}

// metaphoneCodes returns the union of Double Metaphone codes over tokens.
// Tokens that produce no code (too short, no consonants, non-Latin script)
// contribute nothing.
func metaphoneCodes(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, 2*len(tokens))
	for _, t := range tokens {
		primary, secondary := matchr.DoubleMetaphone(t)
		if primary != "" {
			codes[primary] = struct{}{}
		}
		if secondary != "" {
			codes[secondary] = struct{}{}
		}
	}
	return codes
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}

// similarity is the highest Jaro-Winkler score across three views of the
// pair: the full strings, the space-stripped strings, and, for single-token
// input only, the best per-token score against a multi-word term. The
// stripped view aligns a split recognition like "mine craft" with the
// single-token term "minecraft". Per-token scoring is never applied to
// multi-token input, so a phrase cannot match a term on the strength of one
// word alone.
func similarity(inputTokens, termTokens []string, input, term string) float64 {
	score := matchr.JaroWinkler(input, term, false)

	if len(inputTokens) > 1 || len(termTokens) > 1 {
		joined := matchr.JaroWinkler(
			strings.Join(inputTokens, ""),
			strings.Join(termTokens, ""),
			false,
		)
		score = max(score, joined)
	}

	if len(inputTokens) == 1 {
		for _, tt := range termTokens {
			score = max(score, matchr.JaroWinkler(input, tt, false))
		}
	}
	return score
}

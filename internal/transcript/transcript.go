// Package transcript corrects vocabulary mishears in speech-to-text output.
//
// Streamers list the proper nouns their broadcasts revolve around: game
// titles, collaborator handles, brand names, recurring jargon. STT providers
// garble exactly these words, and a garbled title degrades both opportunity
// detection and the generated comment. The [Corrector] rewrites finalized
// transcripts to the canonical spellings before the rest of the pipeline
// sees them.
//
// Two passes run per transcript:
//
//  1. Token pass: for space-delimited text, sliding windows of up to three
//     tokens are matched against the Latin-script terms with a
//     [phonetic.Matcher]. Longer windows win over shorter ones.
//  2. Span pass: terms containing non-ASCII runes (Japanese in particular,
//     where text carries no word boundaries) are located by scanning rune
//     windows anchored on the term's first rune and comparing by normalized
//     edit distance.
//
// Both passes are purely local, no network calls, so correction is cheap
// enough for the real-time path.
package transcript

import (
	"strings"
	"sync"
	"unicode"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/aizuchi/internal/transcript/phonetic"
	"github.com/MrWong99/aizuchi/pkg/types"
)

const (
	// maxWindowTokens bounds the token pass window; vocabulary terms longer
	// than three words are matched by their best three-word prefix window.
	maxWindowTokens = 3

	// defaultSpanThreshold is the minimum normalized edit similarity for the
	// span pass.
	defaultSpanThreshold = 0.75

	// minSpanRunes keeps the span pass away from short terms where a single
	// edit flips unrelated words into each other.
	minSpanRunes = 3
)

// Correction records one substitution applied to a transcript.
type Correction struct {
	// Original is the text as produced by the STT provider.
	Original string

	// Corrected is the canonical vocabulary term that replaced it.
	Corrected string

	// Confidence is the similarity score behind the substitution, in [0, 1].
	Confidence float64

	// Method is "phonetic" for the token pass and "edit" for the span pass.
	Method string
}

// Matcher ranks a phrase against vocabulary terms. Implemented by
// [phonetic.Matcher].
type Matcher interface {
	Match(phrase string, terms []string) (corrected string, confidence float64, matched bool)
}

// Option configures a [Corrector].
type Option func(*Corrector)

// WithMatcher replaces the default phonetic matcher.
func WithMatcher(m Matcher) Option {
	return func(c *Corrector) { c.matcher = m }
}

// WithVocabulary sets the initial vocabulary.
func WithVocabulary(terms []string) Option {
	return func(c *Corrector) { c.vocab = cleanTerms(terms) }
}

// WithSpanThreshold sets the minimum edit similarity for the span pass.
// Default: 0.75.
func WithSpanThreshold(v float64) Option {
	return func(c *Corrector) { c.spanThreshold = v }
}

// Corrector rewrites transcripts so configured vocabulary terms appear with
// their canonical spelling. Safe for concurrent use; the vocabulary can be
// swapped at runtime via [Corrector.SetVocabulary].
type Corrector struct {
	matcher       Matcher
	spanThreshold float64

	mu    sync.RWMutex
	vocab []string
}

// NewCorrector creates a Corrector. Without options it uses a default
// [phonetic.Matcher] and an empty vocabulary, in which case Correct is a
// no-op.
func NewCorrector(opts ...Option) *Corrector {
	c := &Corrector{
		matcher:       phonetic.New(),
		spanThreshold: defaultSpanThreshold,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// SetVocabulary replaces the vocabulary. Empty and whitespace-only terms are
// dropped.
func (c *Corrector) SetVocabulary(terms []string) {
	cleaned := cleanTerms(terms)
	c.mu.Lock()
	c.vocab = cleaned
	c.mu.Unlock()
}

// Vocabulary returns a copy of the active vocabulary.
func (c *Corrector) Vocabulary() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.vocab))
	copy(out, c.vocab)
	return out
}

// Correct returns t with vocabulary mishears fixed, plus a record of every
// substitution. When nothing matches, t is returned unchanged with a nil
// corrections slice. Segments keep the provider's original word text; only
// Text is rewritten.
func (c *Corrector) Correct(t types.Transcript) (types.Transcript, []Correction) {
	c.mu.RLock()
	vocab := c.vocab
	c.mu.RUnlock()
	if len(vocab) == 0 || t.Text == "" {
		return t, nil
	}

	latin, spans := splitTerms(vocab)

	text := t.Text
	var corrections []Correction
	if len(latin) > 0 {
		text, corrections = c.correctTokens(text, latin, corrections)
	}
	for _, term := range spans {
		text, corrections = correctSpan(text, term, c.spanThreshold, corrections)
	}

	if len(corrections) == 0 {
		return t, nil
	}
	out := t
	out.Text = text
	return out, corrections
}

// splitTerms partitions the vocabulary into Latin-script terms for the token
// pass and everything else for the span pass.
func splitTerms(vocab []string) (latin, spans []string) {
	for _, term := range vocab {
		if isASCII(term) {
			latin = append(latin, term)
		} else {
			spans = append(spans, term)
		}
	}
	return latin, spans
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}

// correctTokens matches sliding token windows against the Latin-script terms,
// longest windows first. A token consumed by one replacement is never matched
// again by a shorter window.
func (c *Corrector) correctTokens(text string, terms []string, corrections []Correction) (string, []Correction) {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return text, corrections
	}
	consumed := make([]bool, len(tokens))

	for n := min(maxWindowTokens, len(tokens)); n >= 1; n-- {
		for i := 0; i+n <= len(tokens); i++ {
			if anyConsumed(consumed[i : i+n]) {
				continue
			}
			window := strings.Join(tokens[i:i+n], " ")
			core, prefix, suffix := trimPunct(window)
			if core == "" {
				continue
			}
			term, score, ok := c.matcher.Match(core, terms)
			if !ok || strings.EqualFold(core, term) || !lengthsComparable(core, term) {
				continue
			}
			corrections = append(corrections, Correction{
				Original:   core,
				Corrected:  term,
				Confidence: score,
				Method:     "phonetic",
			})
			tokens[i] = prefix + term + suffix
			for k := i + 1; k < i+n; k++ {
				tokens[k] = ""
			}
			for k := i; k < i+n; k++ {
				consumed[k] = true
			}
		}
	}

	var sb strings.Builder
	for _, tok := range tokens {
		if tok == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(tok)
	}
	return sb.String(), corrections
}

// lengthsComparable rejects pairs whose non-space rune counts differ by more
// than a quarter. A window substantially longer than the term contains words
// the term cannot account for; replacing it would drop them.
func lengthsComparable(window, term string) bool {
	a := len([]rune(strings.ReplaceAll(window, " ", "")))
	b := len([]rune(strings.ReplaceAll(term, " ", "")))
	return 4*min(a, b) >= 3*max(a, b)
}

func anyConsumed(window []bool) bool {
	for _, c := range window {
		if c {
			return true
		}
	}
	return false
}

// trimPunct splits leading and trailing punctuation off a window so the
// matcher sees the bare phrase and the replacement keeps the punctuation.
func trimPunct(s string) (core, prefix, suffix string) {
	core = strings.TrimLeftFunc(s, unicode.IsPunct)
	prefix = s[:len(s)-len(core)]
	trimmed := strings.TrimRightFunc(core, unicode.IsPunct)
	suffix = core[len(trimmed):]
	return trimmed, prefix, suffix
}

// correctSpan scans text for rune windows resembling term. Windows are
// anchored on the term's first rune; a mishear that loses the initial rune is
// not recovered, which also keeps false positives down in boundary-free
// scripts. Exact occurrences are skipped untouched.
func correctSpan(text, term string, threshold float64, corrections []Correction) (string, []Correction) {
	termRunes := []rune(term)
	length := len(termRunes)
	if length < minSpanRunes || !strings.ContainsRune(text, termRunes[0]) {
		return text, corrections
	}

	runes := []rune(text)
	var out []rune
	for i := 0; i < len(runes); {
		if runes[i] != termRunes[0] {
			out = append(out, runes[i])
			i++
			continue
		}

		bestScore, bestLen := 0.0, 0
		for _, wl := range [...]int{length, length + 1, length - 1} {
			if wl < minSpanRunes || i+wl > len(runes) {
				continue
			}
			window := string(runes[i : i+wl])
			score := editSimilarity(window, term, max(wl, length))
			if score > bestScore {
				bestScore, bestLen = score, wl
			}
		}

		switch {
		case bestScore == 1:
			// Already canonical.
			out = append(out, termRunes...)
			i += bestLen
		case bestScore >= threshold:
			original := string(runes[i : i+bestLen])
			corrections = append(corrections, Correction{
				Original:   original,
				Corrected:  term,
				Confidence: bestScore,
				Method:     "edit",
			})
			out = append(out, termRunes...)
			i += bestLen
		default:
			out = append(out, runes[i])
			i++
		}
	}
	return string(out), corrections
}

// editSimilarity is 1 - d/maxLen where d is the Damerau-Levenshtein distance
// in runes.
func editSimilarity(window, term string, maxLen int) float64 {
	d := matchr.DamerauLevenshtein(window, term)
	if d >= maxLen {
		return 0
	}
	return 1 - float64(d)/float64(maxLen)
}

func cleanTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

package policy

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/MrWong99/aizuchi/internal/textnorm"
)

// redactMark replaces the original range covered by a forbidden-term match.
const redactMark = "***"

// vowelInsert is the optional-vowel class allowed after each kana syllable,
// so that drawn-out pronunciations ("ばかあ") still match the base term.
const vowelInsert = "[アイウエオ]?"

// ForbiddenTerms is a set of terms matched against text under the canonical
// normalization map. Matching tolerates width and kana variants, elongated
// vowels, and character repetition.
//
// All methods are safe for concurrent use.
type ForbiddenTerms struct {
	mu       sync.RWMutex
	terms    []string                  // raw terms in insertion order
	patterns map[string]*regexp.Regexp // normalized term → match pattern
}

// NewForbiddenTerms creates a set containing the given terms.
func NewForbiddenTerms(terms []string) *ForbiddenTerms {
	f := &ForbiddenTerms{patterns: make(map[string]*regexp.Regexp)}
	for _, t := range terms {
		f.Add(t)
	}
	return f
}

// Add inserts term into the set. When term contains hiragana, its katakana
// variant is inserted as well so that both renderings appear in Terms.
func (f *ForbiddenTerms) Add(term string) {
	term = strings.TrimSpace(term)
	if term == "" {
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.addLocked(term)
	if textnorm.ContainsHiragana(term) {
		f.addLocked(textnorm.HiraganaToKatakana(term))
	}
}

// addLocked inserts a single raw term. Must be called with f.mu held.
func (f *ForbiddenTerms) addLocked(term string) {
	norm := textnorm.Normalize(term)
	if norm == "" {
		return
	}
	if _, ok := f.patterns[norm]; !ok {
		f.patterns[norm] = compileTermPattern(norm)
	}
	for _, existing := range f.terms {
		if existing == term {
			return
		}
	}
	f.terms = append(f.terms, term)
}

// Remove deletes term (and its katakana variant) from the set.
func (f *ForbiddenTerms) Remove(term string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	variants := []string{term}
	if textnorm.ContainsHiragana(term) {
		variants = append(variants, textnorm.HiraganaToKatakana(term))
	}
	for _, v := range variants {
		delete(f.patterns, textnorm.Normalize(v))
		for i, existing := range f.terms {
			if existing == v {
				f.terms = append(f.terms[:i], f.terms[i+1:]...)
				break
			}
		}
	}
}

// Terms returns the raw terms in insertion order.
func (f *ForbiddenTerms) Terms() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]string, len(f.terms))
	copy(out, f.terms)
	return out
}

// Contains reports whether text matches any forbidden term under
// normalization.
func (f *ForbiddenTerms) Contains(text string) bool {
	norm := textnorm.Normalize(text)

	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, p := range f.patterns {
		if p.MatchString(norm) {
			return true
		}
	}
	return false
}

// Redact replaces every original range whose normalization matches a
// forbidden term with "***". The second return value reports whether any
// replacement happened.
func (f *ForbiddenTerms) Redact(text string) (string, bool) {
	mapped := textnorm.NormalizeMapped(text)
	if mapped.Norm == "" {
		return text, false
	}

	// Rune index of each byte offset in the normalized string.
	byteToRune := make(map[int]int, len(mapped.Src)+1)
	idx := 0
	for off := range mapped.Norm {
		byteToRune[off] = idx
		idx++
	}
	byteToRune[len(mapped.Norm)] = idx

	f.mu.RLock()
	var spans [][2]int // inclusive original-rune ranges
	for _, p := range f.patterns {
		for _, loc := range p.FindAllStringIndex(mapped.Norm, -1) {
			start := byteToRune[loc[0]]
			end := byteToRune[loc[1]] - 1
			if end < start {
				continue
			}
			spans = append(spans, [2]int{mapped.Src[start], mapped.Src[end]})
		}
	}
	f.mu.RUnlock()

	if len(spans) == 0 {
		return text, false
	}

	// Merge overlapping spans, then rebuild the original with replacements.
	sort.Slice(spans, func(i, j int) bool { return spans[i][0] < spans[j][0] })
	merged := spans[:1]
	for _, s := range spans[1:] {
		last := &merged[len(merged)-1]
		if s[0] <= last[1]+1 {
			if s[1] > last[1] {
				last[1] = s[1]
			}
			continue
		}
		merged = append(merged, s)
	}

	orig := []rune(text)
	var b strings.Builder
	pos := 0
	for _, s := range merged {
		b.WriteString(string(orig[pos:s[0]]))
		b.WriteString(redactMark)
		pos = s[1] + 1
	}
	b.WriteString(string(orig[pos:]))
	return b.String(), true
}

// compileTermPattern builds the match pattern for a normalized term: after
// every kana syllable a single inserted vowel is tolerated.
func compileTermPattern(norm string) *regexp.Regexp {
	var b strings.Builder
	for _, r := range norm {
		b.WriteString(regexp.QuoteMeta(string(r)))
		if textnorm.IsKatakana(r) {
			b.WriteString(vowelInsert)
		}
	}
	return regexp.MustCompile(b.String())
}

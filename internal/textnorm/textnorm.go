// Package textnorm implements the fixed text normalization used for
// forbidden-term matching and comment deduplication.
//
// The canonical map applies, in order: half-width kana → full-width,
// hiragana → katakana, full-width ASCII → half-width with lower-casing,
// collapsing of long vowels and small kana to their base, reduction of 3+
// rune repetitions to 2, and stripping of whitespace and interpuncts. The map
// is idempotent: Normalize(Normalize(x)) == Normalize(x).
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
	"golang.org/x/text/width"
)

// smallKana maps small katakana to their base form.
var smallKana = map[rune]rune{
	'ァ': 'ア', 'ィ': 'イ', 'ゥ': 'ウ', 'ェ': 'エ', 'ォ': 'オ',
	'ッ': 'ツ', 'ャ': 'ヤ', 'ュ': 'ユ', 'ョ': 'ヨ',
	'ヮ': 'ワ', 'ヵ': 'カ', 'ヶ': 'ケ',
}

// interpuncts are separator dots stripped alongside whitespace.
var interpuncts = map[rune]bool{
	'・': true, '･': true, '·': true, '•': true,
}

// Mapped is a normalized string together with the mapping from each
// normalized rune back to the index of the original rune that produced it.
// Src has one entry per rune of Norm.
type Mapped struct {
	Norm string
	Src  []int
}

// Normalize applies the canonical normalization map to s.
func Normalize(s string) string {
	return NormalizeMapped(s).Norm
}

// NormalizeMapped applies the canonical normalization map to s while
// recording, for every rune of the output, the index of the source rune in s.
// The mapping supports redacting the original range covered by a match in the
// normalized text.
func NormalizeMapped(s string) Mapped {
	orig := []rune(s)
	norm := make([]rune, 0, len(orig))
	src := make([]int, 0, len(orig))

	for i, r := range orig {
		// Width folding: half-width kana to full-width, full-width ASCII to
		// half-width. Fold is a per-rune canonical mapping.
		r = foldRune(r)

		// Voiced sound marks: fold standalone forms to combining, then
		// compose with the preceding kana (ハ + ゛ → バ). The composed rune
		// keeps the source index of the base rune.
		if r == 0x309B || r == 0x309C {
			r -= 2 // standalone marks → combining U+3099/U+309A
		}
		if r == 0x3099 || r == 0x309A {
			if n := len(norm); n > 0 {
				composed := []rune(nfc(string([]rune{norm[n-1], r})))
				if len(composed) == 1 {
					norm[n-1] = composed[0]
				}
			}
			continue
		}

		// ASCII lower-casing.
		r = unicode.ToLower(r)

		// Hiragana to katakana.
		if r >= 'ぁ' && r <= 'ゖ' {
			r += 'ァ' - 'ぁ'
		}

		// Small kana to base form; prolonged sound marks dropped.
		if base, ok := smallKana[r]; ok {
			r = base
		}
		if r == 'ー' || r == 'ｰ' {
			continue
		}

		// Whitespace and interpuncts dropped.
		if unicode.IsSpace(r) || interpuncts[r] {
			continue
		}

		// Reduce runs of 3+ identical runes to 2.
		n := len(norm)
		if n >= 2 && norm[n-1] == r && norm[n-2] == r {
			continue
		}

		norm = append(norm, r)
		src = append(src, i)
	}

	return Mapped{Norm: string(norm), Src: src}
}

// nfc composes s into Unicode Normalization Form C.
func nfc(s string) string { return norm.NFC.String(s) }

// foldRune applies width folding to a single rune.
func foldRune(r rune) rune {
	folded := width.Fold.String(string(r))
	for _, fr := range folded {
		return fr
	}
	return r
}

// IsKatakana reports whether r is in the katakana block (after
// normalization, all kana are katakana).
func IsKatakana(r rune) bool {
	return r >= 'ァ' && r <= 'ヺ'
}

// HiraganaToKatakana converts every hiragana rune in s to its katakana
// counterpart, leaving all other runes untouched.
func HiraganaToKatakana(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'ぁ' && r <= 'ゖ' {
			return r + ('ァ' - 'ぁ')
		}
		return r
	}, s)
}

// ContainsHiragana reports whether s contains at least one hiragana rune.
func ContainsHiragana(s string) bool {
	for _, r := range s {
		if r >= 'ぁ' && r <= 'ゖ' {
			return true
		}
	}
	return false
}

// Dedupe normalizes s for duplicate detection: trim, lower-case, whitespace
// folding (including full-width spaces) to single spaces, and collapsing of
// repeated punctuation. This is a lighter map than Normalize; "hello" and
// "hello " are duplicates, but kana variants are not conflated.
func Dedupe(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ToLower(s)

	var b strings.Builder
	b.Grow(len(s))
	var prev rune
	var inSpace bool
	for _, r := range s {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if inSpace {
			b.WriteRune(' ')
			inSpace = false
			prev = ' '
		}
		if (unicode.IsPunct(r) || unicode.IsSymbol(r)) && r == prev {
			continue
		}
		b.WriteRune(r)
		prev = r
	}
	return b.String()
}

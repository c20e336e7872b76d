package policy

import "strings"

// defaultFillers pads comments that come in under the minimum length when the
// persona supplies no encouraged expressions. Deliberately emoji-free so that
// padding never trips the emoji policy applied afterwards.
var defaultFillers = []string{"〜", "！", "…"}

// sentenceEnders mark boundaries considered safe truncation points.
var sentenceEnders = map[rune]bool{
	'。': true, '！': true, '？': true, '!': true, '?': true, '.': true,
}

// LengthPolicy adjusts comment text into the configured code-point range.
type LengthPolicy struct {
	// Min and Max bound the output length in code points. Min ≥ 1, Min ≤ Max.
	Min int
	Max int

	// Fillers are persona-appropriate fragments appended to under-length
	// comments. When empty, defaultFillers is used.
	Fillers []string
}

// Adjust returns text with length in [Min, Max] code points.
//
// Under-length text is extended by appending fillers in rotation. Over-length
// text is truncated at the last sentence boundary not past Max; when no
// boundary exists, it is hard-truncated with a trailing ellipsis.
func (p LengthPolicy) Adjust(text string) string {
	runes := []rune(text)

	if len(runes) < p.Min {
		return p.extend(text, len(runes))
	}
	if p.Max > 0 && len(runes) > p.Max {
		return truncate(runes, p.Max)
	}
	return text
}

// extend appends fillers until the text reaches Min code points, without
// exceeding Max. Configured fillers may be wider than the remaining room, so
// the single-rune defaults finish the job; they always fit while length < Min.
func (p LengthPolicy) extend(text string, length int) string {
	var b strings.Builder
	b.WriteString(text)
	length = p.fill(&b, length, p.Fillers)
	p.fill(&b, length, defaultFillers)
	return b.String()
}

// fill appends fillers in rotation until length reaches Min or the next
// filler would push past Max. Returns the resulting length.
func (p LengthPolicy) fill(b *strings.Builder, length int, fillers []string) int {
	if len(fillers) == 0 {
		return length
	}
	for i := 0; length < p.Min; i++ {
		f := fillers[i%len(fillers)]
		n := len([]rune(f))
		if p.Max > 0 && length+n > p.Max {
			break
		}
		b.WriteString(f)
		length += n
	}
	return length
}

// truncate cuts runes to at most max code points, preferring the last
// sentence boundary.
func truncate(runes []rune, max int) string {
	cut := -1
	for i := max - 1; i >= 0; i-- {
		if sentenceEnders[runes[i]] {
			cut = i + 1
			break
		}
	}
	if cut > 0 {
		return string(runes[:cut])
	}
	return string(runes[:max-1]) + "…"
}

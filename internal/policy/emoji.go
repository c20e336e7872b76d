package policy

import (
	"strings"
	"sync"
	"time"

	"github.com/rivo/uniseg"
)

// EmojiPolicy validates and sanitizes emoji usage in comments.
//
// Emojis are detected as extended-pictographic grapheme clusters, so
// multi-rune sequences (skin tones, ZWJ sequences, flags) count as one emoji.
type EmojiPolicy struct {
	// Enabled gates emoji usage entirely. When false, Sanitize strips every
	// emoji.
	Enabled bool

	// MaxCount is the maximum number of emojis kept per comment.
	MaxCount int

	// Allowed is the emoji allow-list. An empty list means no emoji is
	// allowed.
	Allowed []string
}

// Emojis returns the emoji grapheme clusters of text in document order.
func Emojis(text string) []string {
	var out []string
	state := -1
	for len(text) > 0 {
		var cluster string
		cluster, text, _, state = uniseg.FirstGraphemeClusterInString(text, state)
		if isEmojiCluster(cluster) {
			out = append(out, cluster)
		}
	}
	return out
}

// Validate reports whether text complies with the policy: emoji count within
// MaxCount and every emoji on the allow-list.
func (p EmojiPolicy) Validate(text string) bool {
	emojis := Emojis(text)
	if len(emojis) == 0 {
		return true
	}
	if !p.Enabled {
		return false
	}
	if len(emojis) > p.MaxCount {
		return false
	}
	allowed := p.allowedSet()
	for _, e := range emojis {
		if !allowed[e] {
			return false
		}
	}
	return true
}

// Sanitize keeps the first MaxCount allowed emojis in document order and
// removes every other emoji.
func (p EmojiPolicy) Sanitize(text string) string {
	kept := 0
	allowed := p.allowedSet()

	var b strings.Builder
	b.Grow(len(text))
	state := -1
	for len(text) > 0 {
		var cluster string
		cluster, text, _, state = uniseg.FirstGraphemeClusterInString(text, state)
		if !isEmojiCluster(cluster) {
			b.WriteString(cluster)
			continue
		}
		if p.Enabled && allowed[cluster] && kept < p.MaxCount {
			b.WriteString(cluster)
			kept++
		}
	}
	return b.String()
}

// allowedSet returns the allow-list as a set.
func (p EmojiPolicy) allowedSet() map[string]bool {
	set := make(map[string]bool, len(p.Allowed))
	for _, e := range p.Allowed {
		set[e] = true
	}
	return set
}

// isEmojiCluster reports whether a grapheme cluster is pictographic, judged
// by its first significant rune.
func isEmojiCluster(cluster string) bool {
	for _, r := range cluster {
		switch {
		case r >= 0x1F000 && r <= 0x1FAFF: // pictographs, emoticons, transport, extended-A
			return true
		case r >= 0x2600 && r <= 0x27BF: // misc symbols and dingbats
			return true
		case r >= 0x2B00 && r <= 0x2BFF: // misc symbols and arrows (⭐ etc.)
			return true
		case r >= 0x1F1E6 && r <= 0x1F1FF: // regional indicators (flags)
			return true
		case r == 0xFE0F: // variation selector; keep scanning
			continue
		}
		return false
	}
	return false
}

// RepetitionGuard rejects comments whose emoji set overlaps with any comment
// recorded within the window. Safe for concurrent use.
type RepetitionGuard struct {
	mu      sync.Mutex
	window  time.Duration
	history []emojiRecord

	now func() time.Time // test hook
}

type emojiRecord struct {
	emojis map[string]bool
	at     time.Time
}

// NewRepetitionGuard creates a guard with the given window. A zero window
// defaults to 60 seconds.
func NewRepetitionGuard(window time.Duration) *RepetitionGuard {
	if window <= 0 {
		window = 60 * time.Second
	}
	return &RepetitionGuard{window: window, now: time.Now}
}

// SetWindow changes the window for future checks. Existing history is kept
// and evicted against the new window. A zero window defaults to 60 seconds.
func (g *RepetitionGuard) SetWindow(window time.Duration) {
	if window <= 0 {
		window = 60 * time.Second
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.window = window
}

// Check reports whether text's emoji set is acceptable: it must not intersect
// the emoji set of any comment recorded within the window. Comments without
// emojis always pass.
func (g *RepetitionGuard) Check(text string) bool {
	emojis := Emojis(text)
	if len(emojis) == 0 {
		return true
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.evict(g.now())

	for _, rec := range g.history {
		for _, e := range emojis {
			if rec.emojis[e] {
				return false
			}
		}
	}
	return true
}

// Record stores text's emoji set for future checks. No-op for emoji-free text.
func (g *RepetitionGuard) Record(text string) {
	emojis := Emojis(text)
	if len(emojis) == 0 {
		return
	}
	set := make(map[string]bool, len(emojis))
	for _, e := range emojis {
		set[e] = true
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	g.evict(now)
	g.history = append(g.history, emojiRecord{emojis: set, at: now})
}

// evict drops records older than the window. Must be called with g.mu held.
func (g *RepetitionGuard) evict(now time.Time) {
	cutoff := now.Add(-g.window)
	i := 0
	for ; i < len(g.history); i++ {
		if g.history[i].at.After(cutoff) {
			break
		}
	}
	g.history = g.history[i:]
}

package policy

import (
	"testing"
	"time"
)

func TestEmojis(t *testing.T) {
	got := Emojis("すごい！👏✨ naruhodo 🙏")
	want := []string{"👏", "✨", "🙏"}
	if len(got) != len(want) {
		t.Fatalf("Emojis() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Emojis()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestEmojiPolicySanitize(t *testing.T) {
	p := EmojiPolicy{
		Enabled:  true,
		MaxCount: 1,
		Allowed:  []string{"👏", "✨", "🙏", "💡"},
	}

	out := p.Sanitize("すごい！👏✨🙏💡")
	emojis := Emojis(out)
	if len(emojis) != 1 {
		t.Fatalf("output %q has %d emojis, want exactly 1", out, len(emojis))
	}
	if emojis[0] != "👏" {
		t.Errorf("kept emoji = %q, want the first allowed one 👏", emojis[0])
	}
}

func TestEmojiPolicySanitizeDropsUnlisted(t *testing.T) {
	p := EmojiPolicy{Enabled: true, MaxCount: 3, Allowed: []string{"👏"}}

	out := p.Sanitize("🔥👏🔥")
	if got := Emojis(out); len(got) != 1 || got[0] != "👏" {
		t.Errorf("Emojis(%q) = %v, want only 👏", out, got)
	}
}

func TestEmojiPolicyDisabledStripsAll(t *testing.T) {
	p := EmojiPolicy{Enabled: false, MaxCount: 3, Allowed: []string{"👏"}}

	out := p.Sanitize("いいね👏✨")
	if out != "いいね" {
		t.Errorf("Sanitize() = %q, want all emojis removed", out)
	}
}

func TestEmojiPolicyValidate(t *testing.T) {
	p := EmojiPolicy{Enabled: true, MaxCount: 2, Allowed: []string{"👏", "✨"}}

	cases := []struct {
		text string
		want bool
	}{
		{"emoji-free", true},
		{"ok 👏", true},
		{"ok 👏✨", true},
		{"too many 👏✨👏", false},
		{"unlisted 🔥", false},
	}
	for _, tc := range cases {
		if got := p.Validate(tc.text); got != tc.want {
			t.Errorf("Validate(%q) = %v, want %v", tc.text, got, tc.want)
		}
	}
}

func TestRepetitionGuard(t *testing.T) {
	g := NewRepetitionGuard(60 * time.Second)
	now := time.Now()
	g.now = func() time.Time { return now }

	if !g.Check("いいね👏") {
		t.Fatal("first comment should pass")
	}
	g.Record("いいね👏")

	if g.Check("ナイス👏") {
		t.Error("overlapping emoji within the window should be rejected")
	}
	if !g.Check("ナイス✨") {
		t.Error("disjoint emoji set should pass")
	}
	if !g.Check("emoji-free") {
		t.Error("emoji-free comments always pass")
	}

	now = now.Add(61 * time.Second)
	if !g.Check("ナイス👏") {
		t.Error("record outside the window should not block")
	}
}

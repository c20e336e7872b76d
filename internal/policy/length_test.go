package policy

import (
	"strings"
	"testing"
)

func TestLengthPolicyExtend(t *testing.T) {
	p := LengthPolicy{Min: 20, Max: 60}

	out := p.Adjust("すごい！")
	if !strings.HasPrefix(out, "すごい！") {
		t.Errorf("output %q does not start with the input", out)
	}
	if n := len([]rune(out)); n < 20 || n > 60 {
		t.Errorf("output length = %d, want within [20, 60]", n)
	}
}

func TestLengthPolicyExtendWithFillers(t *testing.T) {
	p := LengthPolicy{Min: 10, Max: 30, Fillers: []string{"いいね", "ナイス"}}

	out := p.Adjust("お")
	if !strings.Contains(out, "いいね") {
		t.Errorf("output %q does not use the configured fillers", out)
	}
	if n := len([]rune(out)); n < 10 || n > 30 {
		t.Errorf("output length = %d, want within [10, 30]", n)
	}
}

func TestLengthPolicyExtendFillerWiderThanRoom(t *testing.T) {
	// The 7-rune filler cannot bridge a 1-rune gap to Max; the default
	// single-rune fillers must close it.
	p := LengthPolicy{Min: 20, Max: 21, Fillers: []string{"すごいですね！"}}

	out := p.Adjust("あ")
	if n := len([]rune(out)); n < 20 || n > 21 {
		t.Errorf("output length = %d, want within [20, 21]", n)
	}
	if !strings.HasPrefix(out, "あ") {
		t.Errorf("output %q does not start with the input", out)
	}
}

func TestLengthPolicyTruncateAtSentenceBoundary(t *testing.T) {
	p := LengthPolicy{Min: 1, Max: 10}

	out := p.Adjust("いい話。ここから先は長すぎて収まらない")
	if out != "いい話。" {
		t.Errorf("output = %q, want truncation at the sentence boundary", out)
	}
}

func TestLengthPolicyTruncateHard(t *testing.T) {
	p := LengthPolicy{Min: 1, Max: 5}

	out := p.Adjust("句読点のない長いコメント")
	if n := len([]rune(out)); n > 5 {
		t.Errorf("output length = %d, want at most 5", n)
	}
	if !strings.HasSuffix(out, "…") {
		t.Errorf("output %q should end with an ellipsis", out)
	}
}

func TestLengthPolicyInRangeUnchanged(t *testing.T) {
	p := LengthPolicy{Min: 2, Max: 20}

	in := "ちょうどいい長さ"
	if out := p.Adjust(in); out != in {
		t.Errorf("Adjust(%q) = %q, want unchanged", in, out)
	}
}

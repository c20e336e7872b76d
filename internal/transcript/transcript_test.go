package transcript

import (
	"strings"
	"testing"

	"github.com/MrWong99/aizuchi/pkg/types"
)

func TestCorrectTokenPass(t *testing.T) {
	c := NewCorrector(WithVocabulary([]string{"Valorant"}))

	got, corrections := c.Correct(types.Transcript{Text: "i love valorent so much"})
	if got.Text != "i love Valorant so much" {
		t.Errorf("Text = %q", got.Text)
	}
	if len(corrections) != 1 {
		t.Fatalf("corrections = %v, want one", corrections)
	}
	if corrections[0].Original != "valorent" || corrections[0].Method != "phonetic" {
		t.Errorf("correction = %+v", corrections[0])
	}
}

func TestCorrectSpanPass(t *testing.T) {
	c := NewCorrector(WithVocabulary([]string{"マインクラフト"}))

	got, corrections := c.Correct(types.Transcript{Text: "今日はマインクラフドをやります"})
	if !strings.Contains(got.Text, "マインクラフト") {
		t.Errorf("Text = %q, want the canonical title", got.Text)
	}
	if !strings.HasPrefix(got.Text, "今日は") || !strings.HasSuffix(got.Text, "をやります") {
		t.Errorf("Text = %q, surrounding text must survive", got.Text)
	}
	if len(corrections) != 1 || corrections[0].Method != "edit" {
		t.Fatalf("corrections = %v, want one edit correction", corrections)
	}
}

func TestCorrectLeavesCleanTextAlone(t *testing.T) {
	c := NewCorrector(WithVocabulary([]string{"Valorant", "マインクラフト"}))

	in := types.Transcript{Text: "こんにちは今日は雑談です"}
	got, corrections := c.Correct(in)
	if got.Text != in.Text {
		t.Errorf("Text = %q, want unchanged", got.Text)
	}
	if corrections != nil {
		t.Errorf("corrections = %v, want nil", corrections)
	}
}

func TestCorrectSkipsExactOccurrence(t *testing.T) {
	c := NewCorrector(WithVocabulary([]string{"マインクラフト"}))

	in := types.Transcript{Text: "マインクラフトの続きです"}
	got, corrections := c.Correct(in)
	if got.Text != in.Text {
		t.Errorf("Text = %q, want unchanged", got.Text)
	}
	if corrections != nil {
		t.Errorf("corrections = %v, want nil for an exact occurrence", corrections)
	}
}

func TestCorrectKeepsPunctuation(t *testing.T) {
	c := NewCorrector(WithVocabulary([]string{"Valorant"}))

	got, _ := c.Correct(types.Transcript{Text: "playing valorent!"})
	if got.Text != "playing Valorant!" {
		t.Errorf("Text = %q", got.Text)
	}
}

func TestCorrectEmptyVocabularyIsNoop(t *testing.T) {
	c := NewCorrector()

	in := types.Transcript{Text: "i love valorent"}
	if got, corrections := c.Correct(in); got.Text != in.Text || corrections != nil {
		t.Errorf("Correct() = %q, %v, want untouched", got.Text, corrections)
	}
}

func TestSetVocabularySwapsAtRuntime(t *testing.T) {
	c := NewCorrector()
	c.SetVocabulary([]string{"  ", "Valorant"})

	if got := c.Vocabulary(); len(got) != 1 || got[0] != "Valorant" {
		t.Fatalf("Vocabulary() = %v", got)
	}
	got, _ := c.Correct(types.Transcript{Text: "valorent clips"})
	if got.Text != "Valorant clips" {
		t.Errorf("Text = %q", got.Text)
	}
}

func TestCorrectKeepsSegments(t *testing.T) {
	c := NewCorrector(WithVocabulary([]string{"Valorant"}))

	in := types.Transcript{
		Text:     "valorent",
		Segments: []types.Segment{{Text: "valorent"}},
	}
	got, _ := c.Correct(in)
	if got.Text != "Valorant" {
		t.Errorf("Text = %q", got.Text)
	}
	if got.Segments[0].Text != "valorent" {
		t.Errorf("Segments = %v, want provider text kept", got.Segments)
	}
}

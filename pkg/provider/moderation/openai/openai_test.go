package openai

import (
	"testing"

	oai "github.com/openai/openai-go"

	"github.com/MrWong99/aizuchi/pkg/provider/moderation"
)

func TestNewRequiresAPIKey(t *testing.T) {
	if _, err := New("", ""); err == nil {
		t.Error("expected error for empty API key")
	}
}

func TestNewDefaultsModels(t *testing.T) {
	p, err := New("key", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if p.model != defaultModel {
		t.Errorf("model = %q, want %q", p.model, defaultModel)
	}
	if p.rewriteModel != defaultRewriteModel {
		t.Errorf("rewriteModel = %q, want %q", p.rewriteModel, defaultRewriteModel)
	}
}

func TestToVerdictCollapsesSubcategories(t *testing.T) {
	p, _ := New("key", "")

	r := oai.Moderation{Flagged: true}
	r.CategoryScores.Hate = 0.2
	r.CategoryScores.HateThreatening = 0.8
	r.CategoryScores.SelfHarm = 0.1
	r.CategoryScores.SelfHarmIntent = 0.6
	r.CategoryScores.Illicit = 0.3

	v := p.toVerdict(r)

	if got := v.Scores[moderation.CategoryHate]; got != 0.8 {
		t.Errorf("hate = %v, want 0.8 (max of subcategories)", got)
	}
	if got := v.Scores[moderation.CategorySelfHarm]; got != 0.6 {
		t.Errorf("self-harm = %v, want 0.6", got)
	}
	if got := v.Scores[moderation.CategoryIllegal]; got != 0.3 {
		t.Errorf("illegal = %v, want 0.3", got)
	}
	if v.Provider != "openai" {
		t.Errorf("provider = %q", v.Provider)
	}
}

func TestToVerdictFlaggedCategories(t *testing.T) {
	p, _ := New("key", "")

	r := oai.Moderation{Flagged: true}
	r.CategoryScores.Harassment = 0.7
	r.CategoryScores.Violence = 0.1

	v := p.toVerdict(r)

	if len(v.FlaggedCategories) != 1 || v.FlaggedCategories[0] != moderation.CategoryHarassment {
		t.Errorf("flagged categories = %v, want [harassment]", v.FlaggedCategories)
	}
}

func TestSuggestAction(t *testing.T) {
	tests := []struct {
		maxScore float64
		flagged  bool
		want     moderation.Action
	}{
		{0.95, true, moderation.ActionBlock},
		{0.75, true, moderation.ActionRewrite},
		{0.5, false, moderation.ActionReview},
		{0.2, true, moderation.ActionReview},
		{0.1, false, moderation.ActionApprove},
	}
	for _, tt := range tests {
		if got := suggestAction(tt.maxScore, tt.flagged); got != tt.want {
			t.Errorf("suggestAction(%v, %v) = %q, want %q", tt.maxScore, tt.flagged, got, tt.want)
		}
	}
}

func TestModerateBatchEmptyInput(t *testing.T) {
	p, _ := New("key", "")
	verdicts, err := p.ModerateBatch(t.Context(), nil)
	if err != nil {
		t.Fatalf("ModerateBatch: %v", err)
	}
	if verdicts != nil {
		t.Errorf("expected nil verdicts for empty input, got %v", verdicts)
	}
}

// Package detect decides whether the current broadcast moment warrants a
// comment. A cheap rule layer scans for question, invitation, and transition
// markers; an optional LLM classification refines the call; the engagement
// estimate breaks the remaining cases.
package detect

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/aizuchi/internal/textnorm"
	"github.com/MrWong99/aizuchi/pkg/provider/llm"
	"github.com/MrWong99/aizuchi/pkg/types"
)

// Rule-layer confidences.
const (
	questionConfidence   = 0.9
	transitionConfidence = 0.8
)

// defaultQuestionMarkers signal a question or an invitation to the audience.
var defaultQuestionMarkers = []string{
	"？", "?",
	"どう思う", "どうですか", "みんなは", "教えて", "コメントして",
	"what do you think", "let me know",
}

// defaultTransitionMarkers signal the speaker is moving on; commenting now
// would land mid-transition.
var defaultTransitionMarkers = []string{
	"次のスライド", "次にいきます", "切り替えます", "話を変え",
	"next slide", "let me switch", "moving on",
}

// Config tunes the detector. Empty marker lists fall back to the defaults.
type Config struct {
	QuestionMarkers   []string
	TransitionMarkers []string

	// UseLLM enables the LLM classification layer on top of the rules.
	UseLLM bool

	// HighEngagement and LowEngagement bound the engagement heuristic.
	// Defaults: 0.7 and 0.3.
	HighEngagement float64
	LowEngagement  float64
}

func (c Config) withDefaults() Config {
	if len(c.QuestionMarkers) == 0 {
		c.QuestionMarkers = defaultQuestionMarkers
	}
	if len(c.TransitionMarkers) == 0 {
		c.TransitionMarkers = defaultTransitionMarkers
	}
	if c.HighEngagement <= 0 {
		c.HighEngagement = 0.7
	}
	if c.LowEngagement <= 0 {
		c.LowEngagement = 0.3
	}
	return c
}

// Detector classifies transcripts into comment opportunities. Safe for
// concurrent use.
type Detector struct {
	mu  sync.RWMutex
	cfg Config
	llm llm.Provider // nil disables the LLM layer
}

// New creates a Detector. llmProvider may be nil; the LLM layer then stays
// off regardless of Config.UseLLM.
func New(llmProvider llm.Provider, cfg Config) *Detector {
	return &Detector{cfg: cfg.withDefaults(), llm: llmProvider}
}

// Update atomically replaces the detector configuration.
func (d *Detector) Update(cfg Config) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg.withDefaults()
}

// Detect classifies the current moment. The rule layer runs first; an enabled
// LLM layer can override it only with strictly higher confidence (rules win
// ties). When neither layer decides, the engagement estimate does.
func (d *Detector) Detect(ctx context.Context, text string, snap types.ContextSnapshot) types.Opportunity {
	d.mu.RLock()
	cfg := d.cfg
	llmProvider := d.llm
	d.mu.RUnlock()

	rule, ruleHit := ruleVerdict(text, cfg)

	if cfg.UseLLM && llmProvider != nil {
		req := llm.ClassifyRequest{
			Transcript:        text,
			RecentTranscripts: transcriptTexts(snap.Transcripts),
			Engagement:        snap.Engagement,
		}
		verdict, err := llmProvider.ClassifyOpportunity(ctx, req)
		switch {
		case err != nil:
			slog.Warn("opportunity classification failed, using rules only",
				"error", err)
		case !verdict.Label.IsValid():
			slog.Warn("classifier returned unknown label",
				"label", verdict.Label)
		case !ruleHit || verdict.Confidence > rule.Confidence:
			return verdict
		}
	}

	if ruleHit {
		return rule
	}
	return engagementVerdict(snap.Engagement, cfg)
}

// ruleVerdict applies the marker rules. Question and invitation markers beat
// transition markers when both match.
func ruleVerdict(text string, cfg Config) (types.Opportunity, bool) {
	if containsMarker(text, cfg.QuestionMarkers) {
		return types.Opportunity{
			Label:      types.OpportunityNecessary,
			Confidence: questionConfidence,
			Reason:     "question or invitation marker",
		}, true
	}
	if containsMarker(text, cfg.TransitionMarkers) {
		return types.Opportunity{
			Label:      types.OpportunityUnnecessary,
			Confidence: transitionConfidence,
			Reason:     "transition marker",
		}, true
	}
	return types.Opportunity{}, false
}

// engagementVerdict decides from the engagement estimate alone.
func engagementVerdict(engagement float64, cfg Config) types.Opportunity {
	switch {
	case engagement > cfg.HighEngagement:
		return types.Opportunity{
			Label:      types.OpportunityNecessary,
			Confidence: engagement,
			Reason:     "high engagement",
		}
	case engagement < cfg.LowEngagement:
		return types.Opportunity{
			Label:      types.OpportunityUnnecessary,
			Confidence: 1 - engagement,
			Reason:     "low engagement",
		}
	default:
		return types.Opportunity{
			Label:      types.OpportunityHold,
			Confidence: 0.5,
			Reason:     "engagement inconclusive",
		}
	}
}

// containsMarker reports whether text contains any marker, either as a
// normalized substring or, for spaced markers, as a word window within one
// edit of the marker.
func containsMarker(text string, markers []string) bool {
	norm := textnorm.Normalize(text)
	dedup := textnorm.Dedupe(text)
	for _, m := range markers {
		if strings.Contains(norm, textnorm.Normalize(m)) {
			return true
		}
		if fuzzyContains(dedup, textnorm.Dedupe(m)) {
			return true
		}
	}
	return false
}

// fuzzyContains slides a window of len(marker words) over the text words and
// accepts a Damerau-Levenshtein distance of at most 1. Catches STT slips like
// "next slde". Markers shorter than 4 runes only match exactly, which the
// substring check already covers.
func fuzzyContains(text, marker string) bool {
	if len([]rune(marker)) < 4 {
		return false
	}
	mwords := strings.Fields(marker)
	if len(mwords) == 0 {
		return false
	}
	words := strings.Fields(text)
	n := len(mwords)
	for i := 0; i+n <= len(words); i++ {
		window := strings.Join(words[i:i+n], " ")
		if matchr.DamerauLevenshtein(window, marker) <= 1 {
			return true
		}
	}
	return false
}

func transcriptTexts(transcripts []types.Transcript) []string {
	out := make([]string, 0, len(transcripts))
	for _, t := range transcripts {
		out = append(out, t.Text)
	}
	return out
}

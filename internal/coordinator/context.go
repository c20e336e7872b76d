package coordinator

import (
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/aizuchi/internal/textnorm"
	"github.com/MrWong99/aizuchi/pkg/types"
)

// defaultTopicMarkers flag a finalized transcript as introducing a topic.
var defaultTopicMarkers = []string{
	"について", "の話を", "のテーマ", "今日は",
	"today we", "let's talk about", "the topic",
}

// ContextConfig tunes the rolling context store.
type ContextConfig struct {
	// MaxTranscripts, MaxTopics, and MaxComments bound the FIFO windows.
	// Default: 10 each.
	MaxTranscripts int
	MaxTopics      int
	MaxComments    int

	// KeywordDecay is the window over which a keyword's weight decays to
	// zero. Default: 5 minutes.
	KeywordDecay time.Duration

	// TopicMarkers flag transcripts that introduce a topic. Empty falls back
	// to the defaults.
	TopicMarkers []string
}

func (c ContextConfig) withDefaults() ContextConfig {
	if c.MaxTranscripts <= 0 {
		c.MaxTranscripts = 10
	}
	if c.MaxTopics <= 0 {
		c.MaxTopics = 10
	}
	if c.MaxComments <= 0 {
		c.MaxComments = 10
	}
	if c.KeywordDecay <= 0 {
		c.KeywordDecay = 5 * time.Minute
	}
	if len(c.TopicMarkers) == 0 {
		c.TopicMarkers = defaultTopicMarkers
	}
	return c
}

type keywordEntry struct {
	count    float64
	lastSeen time.Time
}

// ContextStore is the rolling window of broadcast context: recent finalized
// transcripts, topics, posted comments, decaying keyword weights, and the
// engagement estimate. Append-only for writers; consumers read deep-copied
// snapshots. Safe for concurrent use.
type ContextStore struct {
	mu          sync.Mutex
	cfg         ContextConfig
	transcripts []types.Transcript
	topics      []string
	comments    []string
	keywords    map[string]keywordEntry
	engagement  float64

	now func() time.Time // test hook
}

// NewContextStore creates an empty store. Engagement starts at 0.5.
func NewContextStore(cfg ContextConfig) *ContextStore {
	return &ContextStore{
		cfg:        cfg.withDefaults(),
		keywords:   make(map[string]keywordEntry),
		engagement: 0.5,
		now:        time.Now,
	}
}

// AppendTranscript records a transcript. Interim transcripts are ignored;
// only finalized ones mutate the store. Topic markers in the text contribute
// a topic, and its tokens bump keyword counts.
func (s *ContextStore) AppendTranscript(t types.Transcript) {
	if !t.IsFinal {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.transcripts = append(s.transcripts, t)
	if len(s.transcripts) > s.cfg.MaxTranscripts {
		s.transcripts = s.transcripts[len(s.transcripts)-s.cfg.MaxTranscripts:]
	}

	if topic := s.extractTopic(t.Text); topic != "" {
		s.appendTopicLocked(topic)
	}
	s.bumpKeywords(t.Text)
}

// AppendTopic records a topic directly.
func (s *ContextStore) AppendTopic(topic string) {
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendTopicLocked(topic)
}

// appendTopicLocked deduplicates against the current window. Must hold s.mu.
func (s *ContextStore) appendTopicLocked(topic string) {
	norm := textnorm.Dedupe(topic)
	for _, existing := range s.topics {
		if textnorm.Dedupe(existing) == norm {
			return
		}
	}
	s.topics = append(s.topics, topic)
	if len(s.topics) > s.cfg.MaxTopics {
		s.topics = s.topics[len(s.topics)-s.cfg.MaxTopics:]
	}
}

// AppendComment records a posted comment.
func (s *ContextStore) AppendComment(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.comments = append(s.comments, text)
	if len(s.comments) > s.cfg.MaxComments {
		s.comments = s.comments[len(s.comments)-s.cfg.MaxComments:]
	}
}

// SetEngagement updates the engagement estimate, clamped to [0, 1].
func (s *ContextStore) SetEngagement(v float64) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.engagement = v
}

// Snapshot returns a deep copy of the current context. A keyword's weight is
// its count minus age over the decay window; weights at or below zero are
// omitted.
func (s *ContextStore) Snapshot() types.ContextSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	snap := types.ContextSnapshot{
		Transcripts: make([]types.Transcript, len(s.transcripts)),
		Topics:      append([]string(nil), s.topics...),
		Comments:    append([]string(nil), s.comments...),
		Keywords:    make(map[string]float64, len(s.keywords)),
		Engagement:  s.engagement,
	}
	for i, t := range s.transcripts {
		snap.Transcripts[i] = t
		snap.Transcripts[i].Segments = append([]types.Segment(nil), t.Segments...)
	}
	for word, entry := range s.keywords {
		age := now.Sub(entry.lastSeen)
		weight := entry.count - age.Seconds()/s.cfg.KeywordDecay.Seconds()
		if weight > 0 {
			snap.Keywords[word] = weight
		}
	}
	return snap
}

// extractTopic returns the transcript text as a topic when it carries a topic
// marker. Must hold s.mu.
func (s *ContextStore) extractTopic(text string) string {
	norm := textnorm.Normalize(text)
	for _, marker := range s.cfg.TopicMarkers {
		if strings.Contains(norm, textnorm.Normalize(marker)) {
			return strings.TrimSpace(text)
		}
	}
	return ""
}

// bumpKeywords increments counts for the tokens of text. Must hold s.mu.
func (s *ContextStore) bumpKeywords(text string) {
	now := s.now()
	for _, word := range strings.Fields(text) {
		word = strings.ToLower(strings.Trim(word, ".,!?、。！？"))
		if len([]rune(word)) < 2 {
			continue
		}
		entry := s.keywords[word]
		entry.count++
		entry.lastSeen = now
		s.keywords[word] = entry
	}

	// Drop fully decayed entries so the map stays bounded.
	for word, entry := range s.keywords {
		age := now.Sub(entry.lastSeen)
		if entry.count-age.Seconds()/s.cfg.KeywordDecay.Seconds() <= 0 {
			delete(s.keywords, word)
		}
	}
}

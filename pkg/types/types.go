// Package types defines the shared types used across all aizuchi packages.
//
// These types form the lingua franca between the audio source, STT pipeline,
// opportunity detector, and the coordinator. Each package defines its own
// domain types, but cross-cutting data structures live here to avoid circular
// imports.
package types

import "time"

// AudioFrame is a single frame of raw PCM audio flowing through the pipeline.
// Frames are immutable once produced; a frame's lifetime ends when it is
// pushed into an STT stream or dropped.
type AudioFrame struct {
	// Data is raw PCM audio. Sample layout is little-endian signed 16-bit.
	Data []byte

	// SampleRate in Hz (e.g., 16000 for STT-optimised mono, 48000 for device capture).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// CapturedAt marks when this frame was captured.
	CapturedAt time.Time
}

// Segment is a time-aligned fragment of a transcript. When the provider
// returns word-level timing, one segment is synthesized per word; otherwise a
// single segment spans the whole utterance.
type Segment struct {
	Text       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// Transcript is a speech-to-text result. Both partial (interim) and final
// transcripts use this type. Segments is always present, possibly empty;
// Language is optional.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// Confidence is the overall confidence score in [0, 1]. Zero if the
	// provider does not report confidence.
	Confidence float64

	// Language is the BCP-47 language tag, if known or detected.
	Language string

	// ReceivedAt is the wall-clock time the transcript was produced.
	ReceivedAt time.Time

	// Provider tags which backend produced this transcript.
	Provider string

	// IsFinal distinguishes authoritative results from interim guesses.
	IsFinal bool

	// Segments holds time-aligned fragments. Invariant: 0 ≤ Start ≤ End for
	// every segment, and concatenated segment text is a reasonable rendering
	// of Text.
	Segments []Segment
}

// OpportunityLabel classifies whether now is a good moment to comment.
type OpportunityLabel string

const (
	// OpportunityNecessary means a comment should be generated now.
	OpportunityNecessary OpportunityLabel = "necessary"

	// OpportunityUnnecessary means no comment should be generated.
	OpportunityUnnecessary OpportunityLabel = "unnecessary"

	// OpportunityHold defers the decision to a later transcript.
	OpportunityHold OpportunityLabel = "hold"
)

// IsValid reports whether l is a recognised opportunity label.
func (l OpportunityLabel) IsValid() bool {
	switch l {
	case OpportunityNecessary, OpportunityUnnecessary, OpportunityHold:
		return true
	}
	return false
}

// Opportunity is the outcome of classifying a transcript against the current
// conversational context.
type Opportunity struct {
	Label      OpportunityLabel
	Confidence float64
	Reason     string
}

// ContextSnapshot is a deep-copied view of the rolling conversational context
// at one point in time. Consumers may hold and mutate it freely without
// affecting the store it came from.
type ContextSnapshot struct {
	// Transcripts holds the most recent finalized transcripts, oldest first.
	Transcripts []Transcript

	// Topics is the ordered list of active topics, oldest first.
	Topics []string

	// Comments lists recently posted comments, oldest first.
	Comments []string

	// Keywords maps each keyword to its time-decayed weight. Weights at or
	// below zero are dropped from the snapshot.
	Keywords map[string]float64

	// Engagement is the current engagement estimate in [0, 1].
	Engagement float64
}

// Message is a single message in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// Usage holds token accounting returned by an LLM backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

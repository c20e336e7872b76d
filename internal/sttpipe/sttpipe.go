// Package sttpipe drives speech-to-text providers: batch transcription with
// input validation, and streaming sessions with automatic reconnection. All
// provider outputs are normalized before they reach the rest of the pipeline.
package sttpipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/aizuchi/internal/transcript"
	"github.com/MrWong99/aizuchi/pkg/provider"
	"github.com/MrWong99/aizuchi/pkg/provider/stt"
	"github.com/MrWong99/aizuchi/pkg/types"
)

// MaxBatchBytes is the hard limit for batch transcription input.
const MaxBatchBytes = 25 << 20

// batchTimeout bounds one batch transcription call.
const batchTimeout = 30 * time.Second

// ErrAudioTooLarge is returned for batch input over [MaxBatchBytes].
// Non-retryable: a bigger provider will not accept it either.
var ErrAudioTooLarge = errors.New("sttpipe: audio exceeds batch size limit")

// ErrEmptyAudio is returned for empty batch input.
var ErrEmptyAudio = errors.New("sttpipe: empty audio input")

// Pipeline wraps an STT provider (usually the failover composite) with
// validation and output normalization.
type Pipeline struct {
	provider  stt.Provider
	corrector *transcript.Corrector
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithCorrector installs a vocabulary corrector applied to every transcript
// after normalization, on both the batch and streaming paths.
func WithCorrector(c *transcript.Corrector) Option {
	return func(p *Pipeline) { p.corrector = c }
}

// New creates a Pipeline over p.
func New(p stt.Provider, opts ...Option) *Pipeline {
	pl := &Pipeline{provider: p}
	for _, o := range opts {
		o(pl)
	}
	return pl
}

// Transcribe performs batch recognition. Input is validated before the
// provider is called; the result is normalized via [Normalize].
func (p *Pipeline) Transcribe(ctx context.Context, audio []byte, opts stt.TranscribeOptions) (types.Transcript, error) {
	if len(audio) == 0 {
		return types.Transcript{}, provider.Fatal(p.provider.Name(), ErrEmptyAudio)
	}
	if len(audio) > MaxBatchBytes {
		return types.Transcript{}, provider.Fatal(p.provider.Name(),
			fmt.Errorf("%w: %d bytes", ErrAudioTooLarge, len(audio)))
	}

	opCtx, cancel := context.WithTimeout(ctx, batchTimeout)
	defer cancel()
	t, err := p.provider.Transcribe(opCtx, audio, opts)
	if err != nil {
		return types.Transcript{}, err
	}
	return p.correct(Normalize(t)), nil
}

// correct applies the vocabulary corrector, when one is configured.
func (p *Pipeline) correct(t types.Transcript) types.Transcript {
	if p.corrector == nil {
		return t
	}
	out, corrections := p.corrector.Correct(t)
	for _, c := range corrections {
		slog.Debug("transcript vocabulary corrected",
			"from", c.Original, "to", c.Corrected, "method", c.Method)
	}
	return out
}

// Normalize enforces the transcript invariants: confidence clamped to [0, 1],
// a receive timestamp, and at least one segment spanning the utterance when
// the provider returned none.
func Normalize(t types.Transcript) types.Transcript {
	if t.Confidence < 0 {
		t.Confidence = 0
	}
	if t.Confidence > 1 {
		t.Confidence = 1
	}
	if t.ReceivedAt.IsZero() {
		t.ReceivedAt = time.Now()
	}
	if len(t.Segments) == 0 && t.Text != "" {
		t.Segments = []types.Segment{{
			Text:       t.Text,
			Confidence: t.Confidence,
		}}
	}
	for i := range t.Segments {
		if t.Segments[i].End < t.Segments[i].Start {
			t.Segments[i].End = t.Segments[i].Start
		}
	}
	return t
}

// Package stt defines the Provider interface for speech-to-text backends.
//
// An STT provider wraps a transcription service (e.g., Deepgram streaming or
// the OpenAI audio API) and exposes two operations: batch transcription of a
// complete audio buffer, and a streaming session that accepts PCM frames and
// emits [types.Transcript] values as recognition progresses.
//
// Implementations must be safe for concurrent use. Audio input and transcript
// output channels are goroutine-safe by construction.
package stt

import (
	"context"

	"github.com/MrWong99/aizuchi/pkg/types"
)

// TranscribeOptions carries recognition hints for a batch request.
type TranscribeOptions struct {
	// SampleRate is the audio sample rate in Hz.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "ja", "en-US").
	// An empty string lets the provider auto-detect, if supported.
	Language string
}

// StreamConfig describes the audio format and recognition hints for a new
// streaming session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono (required by most
	// STT providers; implementors may downmix internally).
	Channels int

	// Language is the BCP-47 language tag. Empty means auto-detect.
	Language string

	// InterimResults requests low-latency partial transcripts in addition to
	// finals. Partials carry IsFinal=false.
	InterimResults bool
}

// SessionHandle represents an open streaming transcription session.
//
// Callers must call Close when the session is no longer needed; failing to do
// so may leak goroutines and network connections inside the provider. All
// methods must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers one frame of raw PCM audio for transcription. The
	// frame should match the SampleRate and Channels agreed in StreamConfig.
	// Calling SendAudio after Close or after a transport failure returns an
	// error.
	SendAudio(frame types.AudioFrame) error

	// Transcripts returns a read-only channel emitting interim and final
	// transcripts in recognition order. The channel is closed when the
	// session ends, whether by Close or by a transport failure.
	Transcripts() <-chan types.Transcript

	// Err returns the transport error that terminated the session, or nil if
	// the session ended cleanly. Valid only after Transcripts is closed.
	Err() error

	// Close terminates the session, flushes pending audio, and releases all
	// resources. Calling Close more than once is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use; multiple sessions may be
// open simultaneously.
type Provider interface {
	// Name returns the provider tag used in transcripts and error wrapping.
	Name() string

	// Transcribe performs batch recognition of a complete audio buffer and
	// returns a final transcript. The audio size limit is enforced by the
	// caller (internal/sttpipe), not by the provider.
	Transcribe(ctx context.Context, audio []byte, opts TranscribeOptions) (types.Transcript, error)

	// StartStream opens a streaming session. The returned handle is ready to
	// accept audio immediately. The caller owns the handle and must Close it.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)

	// Healthy probes the backend. A nil return means the provider is usable.
	Healthy(ctx context.Context) error
}

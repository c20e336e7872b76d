// Package mock provides test doubles for the stt package interfaces.
//
// Use Provider to verify that callers start sessions with the expected
// StreamConfig or pass the expected batch audio. Use Session to feed
// controlled Transcript values and inspect which frames were delivered.
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/aizuchi/pkg/provider/stt"
	"github.com/MrWong99/aizuchi/pkg/types"
)

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// ProviderName is returned by Name. Defaults to "mock".
	ProviderName string

	// TranscribeResult is returned by Transcribe when TranscribeErr is nil.
	TranscribeResult types.Transcript

	// TranscribeErr, if non-nil, is returned by every Transcribe call.
	TranscribeErr error

	// Session is the handle returned by StartStream. If nil, StartStream
	// returns a new default Session with a buffered channel.
	Session stt.SessionHandle

	// StartStreamErr, if non-nil, is returned by StartStream.
	StartStreamErr error

	// HealthyErr, if non-nil, is returned by Healthy.
	HealthyErr error

	// TranscribeCalls records the audio length of every Transcribe call.
	TranscribeCalls []int

	// StartStreamCalls records every StreamConfig passed to StartStream.
	StartStreamCalls []stt.StreamConfig
}

// Name returns ProviderName, or "mock" when unset.
func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

// Transcribe records the call and returns TranscribeResult, TranscribeErr.
func (p *Provider) Transcribe(_ context.Context, audio []byte, _ stt.TranscribeOptions) (types.Transcript, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = append(p.TranscribeCalls, len(audio))
	if p.TranscribeErr != nil {
		return types.Transcript{}, p.TranscribeErr
	}
	return p.TranscribeResult, nil
}

// StartStream records the call and returns Session, StartStreamErr.
func (p *Provider) StartStream(_ context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, cfg)
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return &Session{TranscriptsCh: make(chan types.Transcript, 16)}, nil
}

// Healthy returns HealthyErr.
func (p *Provider) Healthy(context.Context) error { return p.HealthyErr }

var _ stt.Provider = (*Provider)(nil)

// Session is a mock implementation of stt.SessionHandle. Callers own
// TranscriptsCh: pre-populate it with the transcripts the consumer should
// receive and close it to simulate session end.
type Session struct {
	mu sync.Mutex

	// TranscriptsCh is the channel returned by Transcripts.
	TranscriptsCh chan types.Transcript

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// TransportErr is returned by Err after TranscriptsCh is closed.
	TransportErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	// SendAudioCalls records the byte length of every frame passed to SendAudio.
	SendAudioCalls []int

	// CloseCallCount is the number of times Close was called.
	CloseCallCount int
}

// SendAudio records the call and returns SendAudioErr.
func (s *Session) SendAudio(frame types.AudioFrame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SendAudioCalls = append(s.SendAudioCalls, len(frame.Data))
	return s.SendAudioErr
}

// Transcripts returns TranscriptsCh.
func (s *Session) Transcripts() <-chan types.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.TranscriptsCh
}

// Err returns TransportErr.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.TransportErr
}

// Close records the call and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCallCount++
	return s.CloseErr
}

var _ stt.SessionHandle = (*Session)(nil)

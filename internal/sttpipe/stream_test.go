package sttpipe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/aizuchi/pkg/provider/stt"
	"github.com/MrWong99/aizuchi/pkg/provider/stt/mock"
	"github.com/MrWong99/aizuchi/pkg/types"
)

// sequenceProvider hands out pre-built sessions in order, then errors.
type sequenceProvider struct {
	mu       sync.Mutex
	sessions []stt.SessionHandle
	starts   int
	err      error
}

func (p *sequenceProvider) Name() string { return "sequence" }

func (p *sequenceProvider) Transcribe(context.Context, []byte, stt.TranscribeOptions) (types.Transcript, error) {
	return types.Transcript{}, errors.New("not implemented")
}

func (p *sequenceProvider) StartStream(context.Context, stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.starts++
	if len(p.sessions) == 0 {
		if p.err != nil {
			return nil, p.err
		}
		return nil, errors.New("no more sessions")
	}
	s := p.sessions[0]
	p.sessions = p.sessions[1:]
	return s, nil
}

func (p *sequenceProvider) Healthy(context.Context) error { return nil }

func (p *sequenceProvider) startCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.starts
}

// deadSession is already terminated with a transport error.
func deadSession(err error) *mock.Session {
	ch := make(chan types.Transcript)
	close(ch)
	return &mock.Session{TranscriptsCh: ch, TransportErr: err}
}

func fastConfig() StreamConfig {
	return StreamConfig{
		MaxReconnects: 3,
		BackoffBase:   time.Millisecond,
		BackoffCap:    5 * time.Millisecond,
	}
}

func collectEvents(s *Stream) []Event {
	var out []Event
	for ev := range s.Events() {
		out = append(out, ev)
	}
	return out
}

func TestStreamDeliversNormalizedTranscripts(t *testing.T) {
	session := &mock.Session{TranscriptsCh: make(chan types.Transcript, 4)}
	session.TranscriptsCh <- types.Transcript{Text: "やあ", Confidence: 2, IsFinal: true}
	p := &sequenceProvider{sessions: []stt.SessionHandle{session}}

	stream, err := New(p).Stream(context.Background(), fastConfig())
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer stream.Close()

	select {
	case got := <-stream.Transcripts():
		if got.Confidence != 1 {
			t.Errorf("Confidence = %v, want clamped", got.Confidence)
		}
		if len(got.Segments) != 1 {
			t.Errorf("Segments = %v, want one synthesized segment", got.Segments)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for a transcript")
	}
}

func TestStreamForwardsAudio(t *testing.T) {
	session := &mock.Session{TranscriptsCh: make(chan types.Transcript)}
	p := &sequenceProvider{sessions: []stt.SessionHandle{session}}

	stream, err := New(p).Stream(context.Background(), fastConfig())
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer stream.Close()

	if err := stream.SendAudio(types.AudioFrame{Data: []byte{1, 2, 3}}); err != nil {
		t.Fatalf("SendAudio() error = %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for len(session.SendAudioCalls) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("frame never reached the session")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestStreamReconnectsAfterTransportError(t *testing.T) {
	second := &mock.Session{TranscriptsCh: make(chan types.Transcript, 1)}
	second.TranscriptsCh <- types.Transcript{Text: "戻りました", IsFinal: true}
	p := &sequenceProvider{sessions: []stt.SessionHandle{
		deadSession(errors.New("socket reset")),
		second,
	}}

	stream, err := New(p).Stream(context.Background(), fastConfig())
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	defer stream.Close()

	select {
	case got := <-stream.Transcripts():
		if got.Text != "戻りました" {
			t.Errorf("transcript = %q, want the post-reconnect one", got.Text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the post-reconnect transcript")
	}
	if n := p.startCount(); n != 2 {
		t.Errorf("StartStream called %d times, want 2", n)
	}
}

func TestStreamExhaustsReconnects(t *testing.T) {
	p := &sequenceProvider{
		sessions: []stt.SessionHandle{deadSession(errors.New("socket reset"))},
		err:      errors.New("provider down"),
	}

	stream, err := New(p).Stream(context.Background(), fastConfig())
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	events := collectEvents(stream)
	var reconnecting int
	var terminal *Event
	for i, ev := range events {
		switch ev.Kind {
		case EventReconnecting:
			reconnecting++
		case EventError:
			terminal = &events[i]
		}
	}
	if reconnecting != 3 {
		t.Errorf("reconnecting events = %d, want 3 attempts", reconnecting)
	}
	if terminal == nil || terminal.Err == nil {
		t.Fatalf("events = %v, want a terminal error event", events)
	}

	// The stream is fully shut down: transcripts closed, sends rejected.
	if _, ok := <-stream.Transcripts(); ok {
		t.Error("transcripts channel should be closed")
	}
	if err := stream.SendAudio(types.AudioFrame{}); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("SendAudio() error = %v, want ErrStreamClosed", err)
	}
}

func TestStreamCloseIsClean(t *testing.T) {
	session := &mock.Session{TranscriptsCh: make(chan types.Transcript)}
	p := &sequenceProvider{sessions: []stt.SessionHandle{session}}

	stream, err := New(p).Stream(context.Background(), fastConfig())
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}
	stream.Close()
	stream.Close() // idempotent

	if events := collectEvents(stream); len(events) != 0 {
		t.Errorf("events = %v, want none for a clean close", events)
	}

	deadline := time.Now().Add(time.Second)
	for session.CloseCallCount == 0 {
		if time.Now().After(deadline) {
			t.Fatal("session was not closed")
		}
		time.Sleep(time.Millisecond)
	}
}

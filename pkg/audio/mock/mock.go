// Package mock provides a synthetic [audio.Source] for unit tests: it emits
// silence frames on a fixed cadence and can inject a transport failure after
// a set number of frames to exercise reconnect handling downstream.
package mock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/MrWong99/aizuchi/pkg/audio"
	"github.com/MrWong99/aizuchi/pkg/types"
)

// Source is a synthetic audio source. Set the exported fields before Start;
// inspect the CallCount fields after.
type Source struct {
	// FrameInterval is the emission cadence. Default: 20ms.
	FrameInterval time.Duration

	// FrameBytes is the payload size per frame. Default: 640 (20ms of
	// 16kHz mono S16).
	FrameBytes int

	// SampleRate stamps the emitted frames. Default: 16000.
	SampleRate int

	// Channels stamps the emitted frames. Default: 1.
	Channels int

	// FailAfter injects a failure after that many frames. Zero disables it.
	FailAfter int

	// Recover makes the injected failure transient: the source emits one
	// reconnecting and one reconnected event and keeps producing. When
	// false, the failure is terminal.
	Recover bool

	// StartErr is returned by Start.
	StartErr error

	mu      sync.Mutex
	started bool

	// CallCountStart records how many times Start was called.
	CallCountStart int

	// CallCountStop records how many times Stop was called.
	CallCountStop int

	frames   chan types.AudioFrame
	events   chan audio.Event
	stopOnce sync.Once
	closed   chan struct{}
}

var _ audio.Source = (*Source)(nil)

// Start implements [audio.Source].
func (s *Source) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CallCountStart++
	if s.StartErr != nil {
		return s.StartErr
	}
	if s.started {
		return errors.New("mock: source already started")
	}
	s.started = true

	if s.FrameInterval <= 0 {
		s.FrameInterval = 20 * time.Millisecond
	}
	if s.FrameBytes <= 0 {
		s.FrameBytes = 640
	}
	if s.SampleRate <= 0 {
		s.SampleRate = 16000
	}
	if s.Channels <= 0 {
		s.Channels = 1
	}
	s.frames = make(chan types.AudioFrame, 32)
	s.events = make(chan audio.Event, 8)
	s.closed = make(chan struct{})

	go s.run(ctx)
	return nil
}

// run owns the frame and event channels and closes them on exit.
func (s *Source) run(ctx context.Context) {
	defer close(s.frames)
	defer close(s.events)

	ticker := time.NewTicker(s.FrameInterval)
	defer ticker.Stop()

	emitted := 0
	for {
		select {
		case <-ctx.Done():
			_ = s.Stop()
			return
		case <-s.closed:
			return
		case <-ticker.C:
		}

		if s.FailAfter > 0 && emitted == s.FailAfter {
			cause := errors.New("mock: injected capture failure")
			if !s.Recover {
				s.emit(audio.Event{Kind: audio.EventError, Err: cause})
				_ = s.Stop()
				return
			}
			s.emit(audio.Event{Kind: audio.EventReconnecting, Attempt: 1, Err: cause})
			s.emit(audio.Event{Kind: audio.EventReconnected, Attempt: 1})
			s.FailAfter = 0
		}

		frame := types.AudioFrame{
			Data:       make([]byte, s.FrameBytes),
			SampleRate: s.SampleRate,
			Channels:   s.Channels,
			CapturedAt: time.Now(),
		}
		select {
		case s.frames <- frame:
			emitted++
		default:
		}
	}
}

// Frames implements [audio.Source].
func (s *Source) Frames() <-chan types.AudioFrame { return s.frames }

// Events implements [audio.Source].
func (s *Source) Events() <-chan audio.Event { return s.events }

// Stop implements [audio.Source].
func (s *Source) Stop() error {
	s.mu.Lock()
	s.CallCountStop++
	closed := s.closed
	s.mu.Unlock()
	if closed == nil {
		return nil
	}
	s.stopOnce.Do(func() {
		close(closed)
	})
	return nil
}

func (s *Source) emit(ev audio.Event) {
	select {
	case s.events <- ev:
	default:
	}
}

package sttpipe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/aizuchi/pkg/provider/stt"
	"github.com/MrWong99/aizuchi/pkg/types"
)

// ErrStreamClosed is returned by SendAudio after the stream ended.
var ErrStreamClosed = errors.New("sttpipe: stream closed")

// EventKind classifies stream lifecycle events.
type EventKind string

const (
	// EventReconnecting is emitted before each reconnection attempt.
	EventReconnecting EventKind = "reconnecting"

	// EventReconnected is emitted after a session was re-established.
	EventReconnected EventKind = "reconnected"

	// EventError is terminal: reconnection attempts are exhausted and the
	// stream is shutting down.
	EventError EventKind = "error"
)

// Event is a stream lifecycle notification.
type Event struct {
	Kind    EventKind
	Attempt int
	Err     error
}

// StreamConfig tunes a streaming session and its reconnection policy.
type StreamConfig struct {
	stt.StreamConfig

	// MaxReconnects is the attempt budget per outage. Default: 5.
	MaxReconnects int

	// BackoffBase is the first reconnect delay; it doubles per attempt.
	// Default: 1s.
	BackoffBase time.Duration

	// BackoffCap bounds the delay. Default: 30s.
	BackoffCap time.Duration
}

func (c StreamConfig) withDefaults() StreamConfig {
	if c.MaxReconnects <= 0 {
		c.MaxReconnects = 5
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 30 * time.Second
	}
	return c
}

// Stream is a long-lived transcription stream that survives transport
// failures of the underlying session. Audio enters through SendAudio;
// normalized transcripts leave through Transcripts. Lifecycle notifications
// (reconnects, terminal errors) arrive on Events.
type Stream struct {
	cfg      StreamConfig
	pipeline *Pipeline

	frames      chan types.AudioFrame
	transcripts chan types.Transcript
	events      chan Event

	closeOnce sync.Once
	closed    chan struct{}
	cancel    context.CancelFunc
}

// Stream opens a streaming session with automatic reconnection. The initial
// connection failure is returned synchronously; later transport errors go
// through the reconnect loop.
func (p *Pipeline) Stream(ctx context.Context, cfg StreamConfig) (*Stream, error) {
	cfg = cfg.withDefaults()

	session, err := p.provider.StartStream(ctx, cfg.StreamConfig)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &Stream{
		cfg:         cfg,
		pipeline:    p,
		frames:      make(chan types.AudioFrame, 32),
		transcripts: make(chan types.Transcript, 32),
		events:      make(chan Event, 8),
		closed:      make(chan struct{}),
		cancel:      cancel,
	}
	go s.run(runCtx, session)
	return s, nil
}

// SendAudio queues one frame for transcription. Blocks when the session falls
// behind (backpressure). Returns [ErrStreamClosed] once the stream ended.
func (s *Stream) SendAudio(frame types.AudioFrame) error {
	select {
	case <-s.closed:
		return ErrStreamClosed
	case s.frames <- frame:
		return nil
	}
}

// Transcripts returns the normalized transcript channel. Closed when the
// stream ends.
func (s *Stream) Transcripts() <-chan types.Transcript { return s.transcripts }

// Events returns the lifecycle event channel. Closed when the stream ends.
func (s *Stream) Events() <-chan Event { return s.events }

// Close terminates the stream and the underlying session. Safe to call more
// than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.closed)
		s.cancel()
	})
	return nil
}

// run owns the session lifecycle: it pumps frames in and transcripts out, and
// reconnects with exponential backoff when the transport fails.
func (s *Stream) run(ctx context.Context, session stt.SessionHandle) {
	defer close(s.transcripts)
	defer close(s.events)
	defer s.Close()

	for {
		err := s.pump(ctx, session)
		session.Close()
		if err == nil {
			// Clean shutdown via Close or context cancellation.
			return
		}

		session = s.reconnect(ctx, err)
		if session == nil {
			return
		}
	}
}

// pump forwards frames into the session and transcripts out of it until the
// session ends. Returns nil on clean shutdown and the transport error
// otherwise.
func (s *Stream) pump(ctx context.Context, session stt.SessionHandle) error {
	in := session.Transcripts()
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame := <-s.frames:
			if err := session.SendAudio(frame); err != nil {
				return fmt.Errorf("send audio: %w", err)
			}
		case t, ok := <-in:
			if !ok {
				if err := session.Err(); err != nil {
					return err
				}
				return nil
			}
			select {
			case s.transcripts <- s.pipeline.correct(Normalize(t)):
			case <-ctx.Done():
				return nil
			}
		}
	}
}

// reconnect re-establishes the session with exponential backoff. Returns nil
// when the attempt budget is exhausted or ctx is cancelled, after emitting
// the terminal error event.
func (s *Stream) reconnect(ctx context.Context, cause error) stt.SessionHandle {
	delay := s.cfg.BackoffBase
	for attempt := 1; attempt <= s.cfg.MaxReconnects; attempt++ {
		s.emit(Event{Kind: EventReconnecting, Attempt: attempt, Err: cause})
		slog.Warn("stt stream reconnecting",
			"attempt", attempt, "delay", delay, "cause", cause)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}

		session, err := s.pipeline.provider.StartStream(ctx, s.cfg.StreamConfig)
		if err == nil {
			s.emit(Event{Kind: EventReconnected, Attempt: attempt})
			slog.Info("stt stream reconnected", "attempt", attempt)
			return session
		}
		cause = err

		delay *= 2
		if delay > s.cfg.BackoffCap {
			delay = s.cfg.BackoffCap
		}
	}

	s.emit(Event{Kind: EventError, Attempt: s.cfg.MaxReconnects, Err: cause})
	slog.Error("stt stream reconnection exhausted", "error", cause)
	return nil
}

// emit delivers a lifecycle event without blocking a slow consumer.
func (s *Stream) emit(ev Event) {
	select {
	case s.events <- ev:
	default:
		slog.Debug("stream event dropped", "kind", ev.Kind)
	}
}

package audio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/MrWong99/aizuchi/pkg/types"
)

// ErrStopTimeout is returned by Stop when the device did not release within
// the configured bound.
var ErrStopTimeout = errors.New("audio: device release timed out")

// ErrAlreadyStarted is returned by Start on a running source.
var ErrAlreadyStarted = errors.New("audio: source already started")

// DeviceConfig tunes the capture device source.
type DeviceConfig struct {
	// SampleRate in Hz. Default: 16000.
	SampleRate int

	// Channels: 1 for mono (default), 2 for stereo.
	Channels int

	// Reconnect enables automatic recovery after the device stops
	// unexpectedly (unplugged, backend crash).
	Reconnect bool

	// MaxReconnects is the attempt budget per outage. Default: 5.
	MaxReconnects int

	// BackoffBase is the first reconnect delay; it doubles per attempt.
	// Default: 1s.
	BackoffBase time.Duration

	// BackoffCap bounds the delay. Default: 30s.
	BackoffCap time.Duration

	// StopTimeout bounds device release in Stop. Default: 3s.
	StopTimeout time.Duration
}

func (c DeviceConfig) withDefaults() DeviceConfig {
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.MaxReconnects <= 0 {
		c.MaxReconnects = 5
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffCap <= 0 {
		c.BackoffCap = 30 * time.Second
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 3 * time.Second
	}
	return c
}

// DeviceSource captures PCM from the default system capture device via
// miniaudio. Frames that the consumer cannot keep up with are dropped rather
// than stalling the device callback.
type DeviceSource struct {
	cfg DeviceConfig

	frames chan types.AudioFrame
	events chan Event

	mu       sync.Mutex
	mctx     *malgo.AllocatedContext
	device   *malgo.Device
	started  bool
	stopping bool

	dropped atomic.Int64

	stopOnce sync.Once
	closed   chan struct{}
}

var _ Source = (*DeviceSource)(nil)

// NewDeviceSource creates a capture source for the default device.
func NewDeviceSource(cfg DeviceConfig) *DeviceSource {
	return &DeviceSource{
		cfg:    cfg.withDefaults(),
		frames: make(chan types.AudioFrame, 32),
		events: make(chan Event, 8),
		closed: make(chan struct{}),
	}
}

// Start implements [Source].
func (s *DeviceSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return ErrAlreadyStarted
	}

	mctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return fmt.Errorf("audio: init context: %w", err)
	}

	device, err := s.openDevice(ctx, mctx)
	if err != nil {
		_ = mctx.Uninit()
		mctx.Free()
		return err
	}

	s.mctx = mctx
	s.device = device
	s.started = true

	go func() {
		select {
		case <-ctx.Done():
			_ = s.Stop()
		case <-s.closed:
		}
	}()
	return nil
}

// openDevice initialises and starts a capture device on mctx.
func (s *DeviceSource) openDevice(ctx context.Context, mctx *malgo.AllocatedContext) (*malgo.Device, error) {
	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.Capture.Format = malgo.FormatS16
	devCfg.Capture.Channels = uint32(s.cfg.Channels)
	devCfg.SampleRate = uint32(s.cfg.SampleRate)
	devCfg.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, pInput []byte, _ uint32) {
			if len(pInput) == 0 {
				return
			}
			frame := types.AudioFrame{
				Data:       append([]byte(nil), pInput...),
				SampleRate: s.cfg.SampleRate,
				Channels:   s.cfg.Channels,
				CapturedAt: time.Now(),
			}
			select {
			case s.frames <- frame:
			default:
				// Consumer fell behind; dropping beats stalling the
				// device callback.
				if s.recordDrop() {
					slog.Warn("audio frames dropped, consumer falling behind",
						"dropped", s.dropped.Load())
				}
			}
		},
		Stop: func() {
			s.onDeviceStopped(ctx)
		},
	}

	device, err := malgo.InitDevice(mctx.Context, devCfg, callbacks)
	if err != nil {
		return nil, fmt.Errorf("audio: init capture device: %w", err)
	}
	if err := device.Start(); err != nil {
		device.Uninit()
		return nil, fmt.Errorf("audio: start capture device: %w", err)
	}
	return device, nil
}

// onDeviceStopped runs when the backend stops the device outside of Stop.
func (s *DeviceSource) onDeviceStopped(ctx context.Context) {
	s.mu.Lock()
	intentional := s.stopping
	s.mu.Unlock()
	if intentional {
		return
	}

	cause := errors.New("audio: capture device stopped unexpectedly")
	if !s.cfg.Reconnect {
		s.emit(Event{Kind: EventError, Err: cause})
		go func() { _ = s.Stop() }()
		return
	}
	go s.reconnect(ctx, cause)
}

// reconnect re-opens the capture device with exponential backoff. On
// exhaustion it emits a terminal error event and stops the source.
func (s *DeviceSource) reconnect(ctx context.Context, cause error) {
	delay := s.cfg.BackoffBase
	for attempt := 1; attempt <= s.cfg.MaxReconnects; attempt++ {
		s.emit(Event{Kind: EventReconnecting, Attempt: attempt, Err: cause})
		slog.Warn("audio device reconnecting", "attempt", attempt, "delay", delay, "cause", cause)

		select {
		case <-ctx.Done():
			return
		case <-s.closed:
			return
		case <-time.After(delay):
		}

		s.mu.Lock()
		mctx := s.mctx
		if mctx == nil || s.stopping {
			s.mu.Unlock()
			return
		}
		device, err := s.openDevice(ctx, mctx)
		if err == nil {
			if s.device != nil {
				s.device.Uninit()
			}
			s.device = device
			s.mu.Unlock()
			s.emit(Event{Kind: EventReconnected, Attempt: attempt})
			slog.Info("audio device reconnected", "attempt", attempt)
			return
		}
		s.mu.Unlock()
		cause = err

		delay = min(delay*2, s.cfg.BackoffCap)
	}

	s.emit(Event{Kind: EventError, Attempt: s.cfg.MaxReconnects, Err: cause})
	slog.Error("audio device reconnection exhausted", "error", cause)
	_ = s.Stop()
}

// recordDrop counts a dropped frame and reports whether this drop should be
// logged: the first one, then every hundredth, so a stalled consumer cannot
// flood the log from the device callback.
func (s *DeviceSource) recordDrop() bool {
	n := s.dropped.Add(1)
	return n == 1 || n%100 == 0
}

// DroppedFrames returns how many frames were dropped because the consumer
// fell behind.
func (s *DeviceSource) DroppedFrames() int64 { return s.dropped.Load() }

// Frames implements [Source].
func (s *DeviceSource) Frames() <-chan types.AudioFrame { return s.frames }

// Events implements [Source].
func (s *DeviceSource) Events() <-chan Event { return s.events }

// Stop implements [Source]. Device release is bounded by StopTimeout; on
// timeout the channels stay open and [ErrStopTimeout] is returned.
func (s *DeviceSource) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopping = true
		device, mctx := s.device, s.mctx
		s.device, s.mctx = nil, nil
		s.mu.Unlock()
		close(s.closed)

		released := make(chan struct{})
		go func() {
			if device != nil {
				device.Uninit()
			}
			if mctx != nil {
				_ = mctx.Uninit()
				mctx.Free()
			}
			close(released)
		}()

		select {
		case <-released:
			close(s.frames)
			close(s.events)
		case <-time.After(s.cfg.StopTimeout):
			err = ErrStopTimeout
		}
	})
	return err
}

// emit delivers a lifecycle event without blocking a slow consumer.
func (s *DeviceSource) emit(ev Event) {
	select {
	case <-s.closed:
	default:
		select {
		case s.events <- ev:
		default:
			slog.Debug("audio event dropped", "kind", ev.Kind)
		}
	}
}

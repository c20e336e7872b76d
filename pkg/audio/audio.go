// Package audio defines the capture-side abstraction of the pipeline.
//
// A [Source] produces framed PCM from a capture device (or a synthetic
// generator in tests) and pushes it into the transcription pipeline. Frames
// travel on a bounded channel; lifecycle notifications (transport errors,
// reconnect attempts) travel on a separate event channel so a slow consumer
// never stalls capture.
//
// This package lives under pkg/ because external capture adapters are
// expected to implement [Source].
package audio

import (
	"context"

	"github.com/MrWong99/aizuchi/pkg/types"
)

// EventKind classifies source lifecycle events.
type EventKind string

const (
	// EventError reports a capture failure. It is terminal when reconnection
	// is disabled or exhausted.
	EventError EventKind = "error"

	// EventReconnecting is emitted before each reconnection attempt.
	EventReconnecting EventKind = "reconnecting"

	// EventReconnected is emitted once capture resumed.
	EventReconnected EventKind = "reconnected"
)

// Event is a source lifecycle notification.
type Event struct {
	Kind    EventKind
	Attempt int
	Err     error
}

// Source produces framed PCM audio.
//
// Implementations must be safe for concurrent use.
type Source interface {
	// Start begins capture. Startup failures are returned synchronously;
	// failures after startup are emitted on Events.
	Start(ctx context.Context) error

	// Frames returns the capture output channel. Closed when the source
	// stops for good.
	Frames() <-chan types.AudioFrame

	// Events returns the lifecycle event channel. Closed together with
	// Frames.
	Events() <-chan Event

	// Stop ceases emission and releases the device within a bounded time.
	// Safe to call more than once.
	Stop() error
}

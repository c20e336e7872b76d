// Package configstore defines the Store interface for remote configuration
// documents consumed by the config sync engine.
package configstore

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no document exists under the key.
var ErrNotFound = errors.New("configstore: document not found")

// Store is a remote key→document store. Documents are raw YAML payloads; the
// sync engine parses, sanitises, and merges them into the local config.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the document stored under key, or [ErrNotFound].
	Get(ctx context.Context, key string) ([]byte, error)

	// GetAll returns every stored document keyed by name.
	GetAll(ctx context.Context) (map[string][]byte, error)

	// Has reports whether a document exists under key.
	Has(ctx context.Context, key string) (bool, error)

	// Close releases the underlying connection. Safe to call multiple times.
	Close() error
}

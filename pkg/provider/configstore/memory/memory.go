// Package memory provides an in-memory configstore.Store, used in tests and
// as the backend when no remote store is configured.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/MrWong99/aizuchi/pkg/provider/configstore"
)

// Store is an in-memory key→document map. The zero value is not usable; use [New].
type Store struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

var _ configstore.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{docs: make(map[string][]byte)}
}

// Put stores a document under key, replacing any previous content.
func (s *Store) Put(key string, doc []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs[key] = append([]byte(nil), doc...)
}

// Delete removes the document under key, if any.
func (s *Store) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.docs, key)
}

// Get returns the document stored under key, or [configstore.ErrNotFound].
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %q", configstore.ErrNotFound, key)
	}
	return append([]byte(nil), doc...), nil
}

// GetAll returns a copy of every stored document keyed by name.
func (s *Store) GetAll(context.Context) (map[string][]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.docs), nil
}

// Has reports whether a document exists under key.
func (s *Store) Has(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.docs[key]
	return ok, nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

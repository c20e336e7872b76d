package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/MrWong99/aizuchi/pkg/provider/chat"
	"github.com/MrWong99/aizuchi/pkg/provider/configstore"
	"github.com/MrWong99/aizuchi/pkg/provider/llm"
	modprov "github.com/MrWong99/aizuchi/pkg/provider/moderation"
	"github.com/MrWong99/aizuchi/pkg/provider/stt"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// Registry maps provider names to their constructor functions for each
// provider type. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	stt        map[string]func(ProviderEntry) (stt.Provider, error)
	llm        map[string]func(ProviderEntry) (llm.Provider, error)
	moderation map[string]func(ProviderEntry) (modprov.Provider, error)
	chat       map[string]func(ProviderEntry) (chat.Provider, error)
	store      map[string]func(ProviderEntry) (configstore.Store, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		stt:        make(map[string]func(ProviderEntry) (stt.Provider, error)),
		llm:        make(map[string]func(ProviderEntry) (llm.Provider, error)),
		moderation: make(map[string]func(ProviderEntry) (modprov.Provider, error)),
		chat:       make(map[string]func(ProviderEntry) (chat.Provider, error)),
		store:      make(map[string]func(ProviderEntry) (configstore.Store, error)),
	}
}

// RegisterSTT registers an STT provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterSTT(name string, factory func(ProviderEntry) (stt.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stt[name] = factory
}

// RegisterLLM registers an LLM provider factory under name.
func (r *Registry) RegisterLLM(name string, factory func(ProviderEntry) (llm.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.llm[name] = factory
}

// RegisterModeration registers a moderation provider factory under name.
func (r *Registry) RegisterModeration(name string, factory func(ProviderEntry) (modprov.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.moderation[name] = factory
}

// RegisterChat registers a chat provider factory under name.
func (r *Registry) RegisterChat(name string, factory func(ProviderEntry) (chat.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chat[name] = factory
}

// RegisterConfigStore registers a remote config store factory under name.
func (r *Registry) RegisterConfigStore(name string, factory func(ProviderEntry) (configstore.Store, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.store[name] = factory
}

// CreateSTT instantiates an STT provider using the factory registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for that name.
func (r *Registry) CreateSTT(entry ProviderEntry) (stt.Provider, error) {
	r.mu.RLock()
	factory, ok := r.stt[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: stt/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateLLM instantiates an LLM provider using the factory registered under entry.Name.
func (r *Registry) CreateLLM(entry ProviderEntry) (llm.Provider, error) {
	r.mu.RLock()
	factory, ok := r.llm[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: llm/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateModeration instantiates a moderation provider using the factory registered under entry.Name.
func (r *Registry) CreateModeration(entry ProviderEntry) (modprov.Provider, error) {
	r.mu.RLock()
	factory, ok := r.moderation[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: moderation/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateChat instantiates a chat provider using the factory registered under entry.Name.
func (r *Registry) CreateChat(entry ProviderEntry) (chat.Provider, error) {
	r.mu.RLock()
	factory, ok := r.chat[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: chat/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateConfigStore instantiates a remote config store using the factory registered under entry.Name.
func (r *Registry) CreateConfigStore(entry ProviderEntry) (configstore.Store, error) {
	r.mu.RLock()
	factory, ok := r.store[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: config_store/%q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

package config

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/narrator/pkg/provider/tts"
	"github.com/MrWong99/narrator/pkg/store"
)

// ErrProviderNotRegistered is returned by [Registry.CreateProvider] when no
// factory has been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// ErrStoreNotRegistered is returned by [Registry.CreateStore] when no factory
// has been registered for the requested backend.
var ErrStoreNotRegistered = errors.New("config: store backend not registered")

// ProviderFactory builds a speech provider from its configuration entry.
type ProviderFactory func(ctx context.Context, entry ProviderEntry) (tts.Synthesizer, error)

// StoreFactory opens a record store. The caller owns the returned store and
// must Close it.
type StoreFactory func(ctx context.Context, cfg StoreConfig) (store.Store, error)

// Registry maps provider names and store backends to their constructors.
// It is safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]ProviderFactory
	stores    map[StoreBackend]StoreFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]ProviderFactory),
		stores:    make(map[StoreBackend]StoreFactory),
	}
}

// RegisterProvider registers a provider factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterProvider(name string, factory ProviderFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[name] = factory
}

// RegisterStore registers a store factory for backend.
func (r *Registry) RegisterStore(backend StoreBackend, factory StoreFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[backend] = factory
}

// CreateProvider instantiates the provider registered under entry.Name.
// Returns [ErrProviderNotRegistered] if no factory has been registered for
// that name.
func (r *Registry) CreateProvider(ctx context.Context, entry ProviderEntry) (tts.Synthesizer, error) {
	r.mu.RLock()
	factory, ok := r.providers[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(ctx, entry)
}

// CreateStore opens the store registered for cfg.Backend.
func (r *Registry) CreateStore(ctx context.Context, cfg StoreConfig) (store.Store, error) {
	r.mu.RLock()
	factory, ok := r.stores[cfg.Backend]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrStoreNotRegistered, cfg.Backend)
	}
	return factory(ctx, cfg)
}

// Providers returns the registered provider names, sorted.
func (r *Registry) Providers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for n := range r.providers {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

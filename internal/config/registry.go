package config

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/MrWong99/lectern/pkg/scripture"
)

// ErrDriverNotRegistered is returned by [Registry.OpenStore] when no factory
// has been registered under the configured driver.
var ErrDriverNotRegistered = errors.New("config: store driver not registered")

// StoreFactory opens a passage store from its configuration.
type StoreFactory func(ctx context.Context, cfg StoreConfig) (scripture.Store, error)

// Registry maps store driver names to their constructors. It is safe for
// concurrent use.
type Registry struct {
	mu     sync.RWMutex
	stores map[StoreDriver]StoreFactory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{stores: make(map[StoreDriver]StoreFactory)}
}

// RegisterStore registers factory under driver, replacing any previous one.
func (r *Registry) RegisterStore(driver StoreDriver, factory StoreFactory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stores[driver] = factory
}

// Drivers returns the registered driver names in sorted order.
func (r *Registry) Drivers() []StoreDriver {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]StoreDriver, 0, len(r.stores))
	for d := range r.stores {
		out = append(out, d)
	}
	slices.Sort(out)
	return out
}

// OpenStore opens the store selected by cfg.Driver.
func (r *Registry) OpenStore(ctx context.Context, cfg StoreConfig) (scripture.Store, error) {
	r.mu.RLock()
	factory, ok := r.stores[cfg.Driver]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrDriverNotRegistered, cfg.Driver)
	}
	store, err := factory(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: open %s store: %w", cfg.Driver, err)
	}
	return store, nil
}

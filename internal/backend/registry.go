package backend

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Factory constructs a backend.
type Factory func(ctx context.Context) (Backend, error)

// Registry maps providers to backend factories.
type Registry struct {
	factories map[Provider]Factory
	mu        sync.RWMutex
}

// NewRegistry creates a new backend registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[Provider]Factory),
	}
}

// Register adds a factory for the given provider.
func (r *Registry) Register(p Provider, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[p]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, p)
	}

	r.factories[p] = f
	return nil
}

// New constructs the backend registered for p.
func (r *Registry) New(ctx context.Context, p Provider) (Backend, error) {
	r.mu.RLock()
	f, ok := r.factories[p]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, p)
	}

	b, err := f(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s backend: %w", p, err)
	}

	return b, nil
}

// Providers returns the registered providers in sorted order.
func (r *Registry) Providers() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]Provider, 0, len(r.factories))
	for p := range r.factories {
		providers = append(providers, p)
	}
	slices.Sort(providers)

	return providers
}

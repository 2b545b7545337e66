package registry

import (
	"fmt"
	"sync"

	"github.com/aretw0/routeflow/pkg/domain"
	"github.com/aretw0/routeflow/pkg/ports"
)

// Registry holds the providers able to execute steps, in registration order.
type Registry struct {
	mu        sync.RWMutex
	providers []ports.Provider
}

// NewRegistry creates a registry with the given providers.
func NewRegistry(providers ...ports.Provider) *Registry {
	r := &Registry{}
	for _, p := range providers {
		r.Register(p)
	}
	return r
}

// Register adds a provider. A provider with the same name is replaced in place.
func (r *Registry) Register(p ports.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, existing := range r.providers {
		if existing.Name() == p.Name() {
			r.providers[i] = p
			return
		}
	}
	r.providers = append(r.providers, p)
}

// Providers returns a snapshot of the registered providers.
func (r *Registry) Providers() []ports.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]ports.Provider(nil), r.providers...)
}

// Lookup returns the first provider that accepts step.
func (r *Registry) Lookup(step *domain.Step) (ports.Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.providers {
		if p.IsProviderStep(step) {
			return p, nil
		}
	}
	return nil, domain.NewExecutionError(domain.CodeProviderUnavailable,
		fmt.Sprintf("No provider can execute step %s.", step.ID), nil)
}

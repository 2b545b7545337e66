package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aretw0/routeflow/pkg/domain"
)

// Store implements ports.RouteStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.Route
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.Route),
	}
}

// Save persists a deep copy of the route, isolating it like serialization would.
func (s *Store) Save(ctx context.Context, routeID string, route *domain.Route) error {
	copied := route.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[routeID] = copied
	return nil
}

// Load returns a copy so callers can't mutate store state through the pointer.
func (s *Store) Load(ctx context.Context, routeID string) (*domain.Route, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	route, ok := s.data[routeID]
	if !ok {
		return nil, domain.ErrRouteNotFound
	}
	return route.Clone(), nil
}

// Delete removes the route.
func (s *Store) Delete(ctx context.Context, routeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, routeID)
	return nil
}

// List returns the stored route IDs in lexical order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	routes := make([]string, 0, len(s.data))
	for id := range s.data {
		routes = append(routes, id)
	}
	sort.Strings(routes)
	return routes, nil
}

package ports

import (
	"context"

	"github.com/aretw0/routeflow/pkg/domain"
)

// RouteStore defines the interface for persisting routes with their executions.
// This allows a route to be resumed after a process restart.
type RouteStore interface {
	// Save persists the route under the given ID.
	Save(ctx context.Context, routeID string, route *domain.Route) error

	// Load retrieves the route for a given ID.
	// Returns domain.ErrRouteNotFound if the route does not exist.
	Load(ctx context.Context, routeID string) (*domain.Route, error)

	// Delete removes the route for a given ID.
	Delete(ctx context.Context, routeID string) error

	// List returns the IDs of all stored routes.
	List(ctx context.Context) ([]string, error)
}

package middleware

import "github.com/aretw0/routeflow/pkg/ports"

// Middleware allows wrapping a RouteStore to add behavior.
type Middleware func(ports.RouteStore) ports.RouteStore

// Chain applies middlewares so that the first one is the outermost.
func Chain(store ports.RouteStore, mws ...Middleware) ports.RouteStore {
	for i := len(mws) - 1; i >= 0; i-- {
		store = mws[i](store)
	}
	return store
}

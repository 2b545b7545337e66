package routeflow

import (
	"context"
	"sync"

	"github.com/aretw0/routeflow/pkg/domain"
	"github.com/aretw0/routeflow/pkg/ports"
)

// activeRoute is the registration of a route with invocations in flight.
// route is owned by the invocation holding the route lock; everything else
// reads snapshot.
type activeRoute struct {
	id string

	mu        sync.Mutex
	route     *domain.Route
	snapshot  *domain.Route
	settings  domain.InteractionSettings
	executors map[string]ports.StepExecutor
	ctx       context.Context
	prepared  bool
	stopped   bool

	// refs is guarded by Executor.mu.
	refs int
}

func newActiveRoute(route *domain.Route) *activeRoute {
	return &activeRoute{
		id:        route.ID,
		route:     route,
		snapshot:  route.Clone(),
		settings:  domain.DefaultInteractionSettings(),
		executors: make(map[string]ports.StepExecutor),
		ctx:       context.Background(),
		refs:      1,
	}
}

// claimPrepare reports whether the caller is the first invocation to run.
func (a *activeRoute) claimPrepare() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.prepared {
		return false
	}
	a.prepared = true
	return true
}

func (a *activeRoute) setRoute(route *domain.Route) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.route = route
	a.snapshot = route.Clone()
}

// begin starts an invocation: executors are rebuilt so that they see the
// invocation's hooks.
func (a *activeRoute) begin(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.executors = make(map[string]ports.StepExecutor)
	a.ctx = context.WithoutCancel(ctx)
}

func (a *activeRoute) persistCtx() context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ctx
}

func (a *activeRoute) applySettings(settings domain.InteractionSettings) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.settings = settings
	for _, se := range a.executors {
		se.SetInteraction(settings)
	}
}

func (a *activeRoute) allowExecution() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings.AllowExecution
}

func (a *activeRoute) allowUpdates() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.settings.AllowUpdates
}

func (a *activeRoute) markStopped() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stopped = true
}

func (a *activeRoute) isStopped() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stopped
}

// swapSnapshot stores snap and returns the previous snapshot.
func (a *activeRoute) swapSnapshot(snap *domain.Route) *domain.Route {
	a.mu.Lock()
	defer a.mu.Unlock()
	prev := a.snapshot
	a.snapshot = snap
	return prev
}

// Snapshot returns a copy of the latest propagated state.
func (a *activeRoute) Snapshot() *domain.Route {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshot.Clone()
}

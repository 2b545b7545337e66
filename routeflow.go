package routeflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/aretw0/routeflow/internal/logging"
	"github.com/aretw0/routeflow/pkg/domain"
	"github.com/aretw0/routeflow/pkg/observability"
	"github.com/aretw0/routeflow/pkg/ports"
	"github.com/aretw0/routeflow/pkg/registry"
	"github.com/aretw0/routeflow/pkg/session"
	"github.com/aretw0/routeflow/pkg/status"
)

var (
	// ErrRouteNotActive is returned when a settings change targets a route
	// that has no invocation in flight.
	ErrRouteNotActive = errors.New("route is not active")
	// ErrInvalidRoute is returned for routes without an id or steps.
	ErrInvalidRoute = errors.New("invalid route")
)

// RouteUpdate is published to subscribers after every propagated change.
type RouteUpdate struct {
	Route *domain.Route
	// Diff is nil when nothing observable changed.
	Diff *domain.RouteDiff
}

// Executor runs routes step by step, keeping their execution state resumable.
// It is safe for concurrent use; invocations of the same route are serialized.
type Executor struct {
	registry  *registry.Registry
	providers []ports.Provider
	sessions  *session.Manager
	store     ports.RouteStore
	metrics   *observability.Metrics
	hooks     ports.ExecutionHooks
	logger    *slog.Logger

	mu     sync.RWMutex
	active map[string]*activeRoute

	subsMu sync.RWMutex
	subs   map[chan RouteUpdate]struct{}
}

// Option defines a functional option for configuring the Executor.
type Option func(*Executor)

// WithProvider registers a chain provider.
func WithProvider(p ports.Provider) Option {
	return func(e *Executor) {
		e.providers = append(e.providers, p)
	}
}

// WithRegistry uses an existing provider registry. Providers passed through
// WithProvider are added to it.
func WithRegistry(r *registry.Registry) Option {
	return func(e *Executor) {
		e.registry = r
	}
}

// WithLogger sets a custom structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Executor) {
		e.logger = logger
	}
}

// WithStore persists every route update in store.
func WithStore(store ports.RouteStore) Option {
	return func(e *Executor) {
		e.store = store
	}
}

// WithSessionManager injects a session manager, for instance one backed by a
// distributed locker. It takes precedence over WithStore.
func WithSessionManager(m *session.Manager) Option {
	return func(e *Executor) {
		e.sessions = m
	}
}

// WithHooks sets hooks used when an invocation does not provide its own.
func WithHooks(hooks ports.ExecutionHooks) Option {
	return func(e *Executor) {
		e.hooks = hooks
	}
}

// WithMetrics feeds route updates into m.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Executor) {
		e.metrics = m
	}
}

// New creates an Executor.
func New(opts ...Option) (*Executor, error) {
	e := &Executor{
		active: make(map[string]*activeRoute),
		subs:   make(map[chan RouteUpdate]struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	if e.registry == nil {
		e.registry = registry.NewRegistry()
	}
	for _, p := range e.providers {
		if p == nil {
			return nil, fmt.Errorf("%w: nil provider", ErrInvalidRoute)
		}
		e.registry.Register(p)
	}
	if e.sessions == nil {
		e.sessions = session.NewManager(e.store, session.WithLogger(e.logger))
	}
	return e, nil
}

// Sessions returns the session manager guarding route state.
func (e *Executor) Sessions() *session.Manager {
	return e.sessions
}

// ExecuteRoute starts executing a route. The route is copied; the returned
// route reflects its state when the invocation ended. A nil error with a
// route that is not DONE means execution paused and can be resumed.
//
// If the route is already being executed, the call waits for the running
// invocation and continues from its state.
func (e *Executor) ExecuteRoute(ctx context.Context, route *domain.Route, hooks *ports.ExecutionHooks) (*domain.Route, error) {
	if err := validateRoute(route); err != nil {
		return nil, err
	}
	ar := e.register(route.Clone())
	defer e.release(ar)

	return e.run(ctx, ar, e.mergeHooks(hooks), func(ctx context.Context) error {
		return e.sessions.Save(ctx, ar.route)
	})
}

// ResumeRoute continues a route that was started before. When a store is
// configured, the stored copy wins over route since it carries the latest
// execution state.
func (e *Executor) ResumeRoute(ctx context.Context, route *domain.Route, hooks *ports.ExecutionHooks) (*domain.Route, error) {
	if err := validateRoute(route); err != nil {
		return nil, err
	}
	ar := e.register(route.Clone())
	defer e.release(ar)

	return e.run(ctx, ar, e.mergeHooks(hooks), func(ctx context.Context) error {
		store := e.sessions.Store()
		if store == nil {
			return nil
		}
		stored, err := store.Load(ctx, ar.id)
		switch {
		case err == nil:
			ar.setRoute(stored)
			return nil
		case errors.Is(err, domain.ErrRouteNotFound):
			return store.Save(ctx, ar.id, ar.route)
		default:
			return fmt.Errorf("failed to load route: %w", err)
		}
	})
}

// ResumeStoredRoute resumes a route by id from the configured store.
func (e *Executor) ResumeStoredRoute(ctx context.Context, routeID string, hooks *ports.ExecutionHooks) (*domain.Route, error) {
	route, err := e.sessions.Load(ctx, routeID)
	if err != nil {
		return nil, err
	}
	return e.ResumeRoute(ctx, route, hooks)
}

// UpdateRouteExecution applies settings to an active route and its executors.
func (e *Executor) UpdateRouteExecution(routeID string, settings domain.InteractionSettings) error {
	ar := e.lookup(routeID)
	if ar == nil {
		return fmt.Errorf("%w: %s", ErrRouteNotActive, routeID)
	}
	ar.applySettings(settings)
	e.logger.Info("route execution updated",
		"route_id", routeID,
		"allow_interaction", settings.AllowInteraction,
		"allow_updates", settings.AllowUpdates,
		"allow_execution", settings.AllowExecution,
	)
	return nil
}

// StopRouteExecution disallows everything on an active route and unregisters
// it. The running invocation, if any, stops before its next user prompt or
// step. It returns the route's latest snapshot.
func (e *Executor) StopRouteExecution(routeID string) (*domain.Route, error) {
	e.mu.Lock()
	ar, ok := e.active[routeID]
	if ok {
		delete(e.active, routeID)
	}
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRouteNotActive, routeID)
	}

	ar.applySettings(domain.StoppedInteractionSettings())
	ar.markStopped()
	if e.metrics != nil {
		e.metrics.RouteStopped()
	}
	e.logger.Info("route execution stopped", "route_id", routeID)
	return ar.Snapshot(), nil
}

// ActiveRoute returns a copy of the route if it has an invocation in flight.
func (e *Executor) ActiveRoute(routeID string) (*domain.Route, bool) {
	ar := e.lookup(routeID)
	if ar == nil {
		return nil, false
	}
	return ar.Snapshot(), true
}

// ActiveRoutes returns copies of every active route, ordered by id.
func (e *Executor) ActiveRoutes() []*domain.Route {
	e.mu.RLock()
	routes := make([]*domain.Route, 0, len(e.active))
	for _, ar := range e.active {
		routes = append(routes, ar.Snapshot())
	}
	e.mu.RUnlock()
	sort.Slice(routes, func(i, j int) bool { return routes[i].ID < routes[j].ID })
	return routes
}

// RouteUpdates subscribes to route updates. Updates are dropped for slow
// subscribers. The returned function unsubscribes and closes the channel.
func (e *Executor) RouteUpdates(buffer int) (<-chan RouteUpdate, func()) {
	if buffer <= 0 {
		buffer = 16
	}
	ch := make(chan RouteUpdate, buffer)
	e.subsMu.Lock()
	e.subs[ch] = struct{}{}
	e.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.subsMu.Lock()
			delete(e.subs, ch)
			e.subsMu.Unlock()
			close(ch)
		})
	}
}

func (e *Executor) publish(update RouteUpdate) {
	e.subsMu.RLock()
	defer e.subsMu.RUnlock()
	for ch := range e.subs {
		select {
		case ch <- update:
		default:
			e.logger.Warn("route update dropped for slow subscriber", "route_id", update.Route.ID)
		}
	}
}

// run executes the route's steps while holding the route lock. prepare runs
// first under the lock and may load or persist the route.
func (e *Executor) run(ctx context.Context, ar *activeRoute, hooks ports.ExecutionHooks, prepare func(context.Context) error) (*domain.Route, error) {
	err := e.sessions.WithLock(ctx, ar.id, func(ctx context.Context) error {
		if ar.claimPrepare() {
			if err := prepare(ctx); err != nil {
				return err
			}
		}
		if ar.isStopped() {
			return nil
		}
		ar.begin(ctx)

		err := e.executeSteps(ctx, ar, hooks)
		// Catches changes made while updates were disabled.
		e.onRouteUpdate(ar)(ar.route)
		return err
	})

	snap := ar.Snapshot()
	logger := logging.ForRoute(e.logger, ar.id)
	switch {
	case err != nil:
		logger.Warn("route execution failed", "err", err)
	default:
		logger.Info("route execution ended", "status", snap.Status())
	}
	return snap, err
}

func (e *Executor) executeSteps(ctx context.Context, ar *activeRoute, hooks ports.ExecutionHooks) error {
	route := ar.route
	mgr := status.New(route,
		status.WithUpdateHook(hooks.UpdateRouteHook),
		status.WithInternalUpdate(e.onRouteUpdate(ar)),
		status.WithLogger(e.logger),
	)
	mgr.SetUpdatesEnabled(ar.allowUpdates())

	for i, step := range route.Steps {
		if step.Execution != nil && step.Execution.Status == domain.ExecutionDone {
			continue
		}
		if !ar.allowExecution() {
			return nil
		}

		// The next step spends what the previous one actually delivered.
		if i > 0 {
			if prev := route.Steps[i-1].Execution; prev != nil {
				mgr.CarryAmount(step, prev.ToAmount)
			}
		}

		provider, err := e.registry.Lookup(step)
		if err != nil {
			return err
		}
		se, err := e.stepExecutor(ar, provider, hooks)
		if err != nil {
			return err
		}

		e.logger.Debug("executing step", "route_id", route.ID, "step_id", step.ID, "provider", provider.Name())
		executed, err := se.ExecuteStep(ctx, step)
		if err != nil {
			return err
		}
		if executed.Execution == nil || executed.Execution.Status != domain.ExecutionDone {
			e.logger.Info("route paused", "route_id", route.ID, "step_id", step.ID)
			return nil
		}
		if !se.AllowExecution() {
			return nil
		}
	}
	return nil
}

// stepExecutor returns the route's executor for provider, creating it on first use.
func (e *Executor) stepExecutor(ar *activeRoute, provider ports.Provider, hooks ports.ExecutionHooks) (ports.StepExecutor, error) {
	ar.mu.Lock()
	defer ar.mu.Unlock()
	if se, ok := ar.executors[provider.Name()]; ok {
		return se, nil
	}
	se, err := provider.NewStepExecutor(ports.StepExecutorOptions{
		Route:         ar.route,
		Hooks:         hooks,
		Settings:      ar.settings,
		OnRouteUpdate: e.onRouteUpdate(ar),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create %s step executor: %w", provider.Name(), err)
	}
	ar.executors[provider.Name()] = se
	return se, nil
}

// onRouteUpdate snapshots, persists and publishes every propagated change.
// It runs on the invocation's goroutine.
func (e *Executor) onRouteUpdate(ar *activeRoute) func(*domain.Route) {
	return func(route *domain.Route) {
		snap := route.Clone()
		prev := ar.swapSnapshot(snap)

		var diff *domain.RouteDiff
		if e.metrics != nil {
			diff = e.metrics.Observe(prev, snap)
		} else {
			diff = domain.Diff(prev, snap)
		}
		if prev != nil && diff == nil {
			return
		}

		if err := e.sessions.Save(ar.persistCtx(), snap); err != nil {
			e.logger.Warn("failed to persist route update", "route_id", route.ID, "err", err)
		}
		e.publish(RouteUpdate{Route: snap, Diff: diff})
	}
}

func (e *Executor) mergeHooks(hooks *ports.ExecutionHooks) ports.ExecutionHooks {
	merged := e.hooks
	if hooks == nil {
		return merged
	}
	if hooks.UpdateRouteHook != nil {
		merged.UpdateRouteHook = hooks.UpdateRouteHook
	}
	if hooks.UpdateTransactionRequestHook != nil {
		merged.UpdateTransactionRequestHook = hooks.UpdateTransactionRequestHook
	}
	if hooks.SwitchChainHook != nil {
		merged.SwitchChainHook = hooks.SwitchChainHook
	}
	if hooks.AcceptExchangeRateUpdateHook != nil {
		merged.AcceptExchangeRateUpdateHook = hooks.AcceptExchangeRateUpdateHook
	}
	return merged
}

func (e *Executor) lookup(routeID string) *activeRoute {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.active[routeID]
}

// register returns the active registration for route.ID. A new
// registration takes ownership of route; an existing one keeps its own.
func (e *Executor) register(route *domain.Route) *activeRoute {
	e.mu.Lock()
	defer e.mu.Unlock()
	if ar, ok := e.active[route.ID]; ok {
		ar.refs++
		return ar
	}
	ar := newActiveRoute(route)
	e.active[route.ID] = ar
	if e.metrics != nil {
		e.metrics.RouteStarted()
	}
	return ar
}

func (e *Executor) release(ar *activeRoute) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ar.refs--
	if ar.refs > 0 {
		return
	}
	if current, ok := e.active[ar.id]; ok && current == ar {
		delete(e.active, ar.id)
		if e.metrics != nil {
			e.metrics.RouteStopped()
		}
	}
}

func validateRoute(route *domain.Route) error {
	switch {
	case route == nil:
		return fmt.Errorf("%w: nil route", ErrInvalidRoute)
	case route.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidRoute)
	case len(route.Steps) == 0:
		return fmt.Errorf("%w: route %s has no steps", ErrInvalidRoute, route.ID)
	}
	return nil
}

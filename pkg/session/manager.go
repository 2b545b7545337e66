package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/routeflow/internal/logging"
	"github.com/aretw0/routeflow/pkg/domain"
	"github.com/aretw0/routeflow/pkg/ports"
)

// DefaultLockTTL bounds how long a crashed replica can hold a route.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager serializes access to routes so that at most one invocation per
// route is in flight. Unused locks are garbage collected by reference count.
type Manager struct {
	store ports.RouteStore

	mu    sync.Mutex            // Global lock for the map
	locks map[string]*lockEntry // Map of active locks

	locker  ports.DistributedLocker // Optional distributed locker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the expiry of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a Manager. store may be nil when routes are only kept in memory.
func NewManager(store ports.RouteStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST Lock the entry.mu, and then call release(routeID) after unlocking.
func (m *Manager) acquire(routeID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[routeID]
	if !exists {
		entry = &lockEntry{}
		m.locks[routeID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(routeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[routeID]
	if !exists {
		return
	}

	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, routeID)
	}
}

// Load retrieves a stored route.
func (m *Manager) Load(ctx context.Context, routeID string) (*domain.Route, error) {
	if m.store == nil {
		return nil, domain.ErrRouteNotFound
	}
	var route *domain.Route
	err := m.WithLock(ctx, routeID, func(ctx context.Context) error {
		var err error
		route, err = m.store.Load(ctx, routeID)
		return err
	})
	return route, err
}

// LoadOrSave returns the stored copy of route if one exists, otherwise it
// persists route and returns it.
func (m *Manager) LoadOrSave(ctx context.Context, route *domain.Route) (*domain.Route, error) {
	if m.store == nil {
		return route, nil
	}
	var out *domain.Route
	err := m.WithLock(ctx, route.ID, func(ctx context.Context) error {
		stored, err := m.store.Load(ctx, route.ID)
		if err == nil {
			out = stored
			return nil
		}
		if !errors.Is(err, domain.ErrRouteNotFound) {
			return fmt.Errorf("failed to check route existence: %w", err)
		}
		if err := m.store.Save(ctx, route.ID, route); err != nil {
			return fmt.Errorf("failed to initialize route: %w", err)
		}
		out = route
		return nil
	})
	return out, err
}

// Save persists the route without taking the route lock. It is meant for
// callers that already hold it through WithLock.
func (m *Manager) Save(ctx context.Context, route *domain.Route) error {
	if m.store == nil {
		return nil
	}
	return m.store.Save(ctx, route.ID, route)
}

// Delete removes the route from the store.
func (m *Manager) Delete(ctx context.Context, routeID string) error {
	if m.store == nil {
		return nil
	}
	return m.WithLock(ctx, routeID, func(ctx context.Context) error {
		return m.store.Delete(ctx, routeID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	if m.store == nil {
		return nil, nil
	}
	return m.store.List(ctx)
}

// Store returns the underlying route store, which may be nil.
func (m *Manager) Store() ports.RouteStore {
	return m.store
}

// WithLock executes fn while holding the lock for the route.
func (m *Manager) WithLock(ctx context.Context, routeID string, fn func(context.Context) error) error {
	entry := m.acquire(routeID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(routeID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, routeID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			// The route's context may be gone by now; the lock must still be released.
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				m.logger.Warn("Failed to release distributed lock (will expire via TTL)",
					"route_id", routeID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/routeflow/internal/config"
	"github.com/aretw0/routeflow/pkg/adapters/chains"
	"github.com/aretw0/routeflow/pkg/adapters/file"
	"github.com/aretw0/routeflow/pkg/adapters/memory"
	"github.com/aretw0/routeflow/pkg/adapters/redis"
	"github.com/aretw0/routeflow/pkg/persistence/middleware"
	"github.com/aretw0/routeflow/pkg/ports"
	"github.com/aretw0/routeflow/pkg/session"
)

// backend is the persistence wiring shared by every command.
type backend struct {
	Store ports.RouteStore
	// Locker is set when routes may be driven by more than one process.
	Locker ports.DistributedLocker
	close  func() error
}

// Sessions builds a session manager over the backend.
func (b *backend) Sessions(cfg config.Config, logger *slog.Logger) *session.Manager {
	opts := []session.Option{
		session.WithLogger(logger),
		session.WithLockTTL(cfg.LockTTL),
	}
	if b.Locker != nil {
		opts = append(opts, session.WithLocker(b.Locker))
	}
	return session.NewManager(b.Store, opts...)
}

// Close releases the backend connections.
func (b *backend) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

func openBackend(cfg config.Config, logger *slog.Logger) (*backend, error) {
	b := &backend{}
	switch cfg.Store {
	case config.StoreMemory:
		b.Store = memory.NewStore()
	case config.StoreFile:
		b.Store = file.New(cfg.StoreDir)
	case config.StoreRedis:
		opts := []redis.Option{redis.WithPrefix(cfg.RedisPrefix)}
		if cfg.RouteTTL > 0 {
			opts = append(opts, redis.WithTTL(cfg.RouteTTL))
		}
		store := redis.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, opts...)
		b.Store = store
		b.Locker = redis.NewLocker(store.Client(), cfg.RedisPrefix)
		b.close = store.Close
	default:
		return nil, fmt.Errorf("unknown store %q", cfg.Store)
	}

	active, fallbacks, err := cfg.Keys()
	if err != nil {
		return nil, errors.Join(err, b.Close())
	}
	if active != nil {
		seal, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    active,
			FallbackKeys: fallbacks,
		})
		if err != nil {
			return nil, errors.Join(err, b.Close())
		}
		b.Store = middleware.Chain(b.Store, seal)
		logger.Debug("Route encryption enabled", "fallback_keys", len(fallbacks))
	}
	return b, nil
}

// loadChains returns the configured chain registry, or the bundled one.
func loadChains(cfg config.Config) (*chains.Registry, error) {
	if cfg.ChainsFile == "" {
		return chains.Default(), nil
	}
	return chains.Load(cfg.ChainsFile)
}

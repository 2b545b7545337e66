package watcher

import (
	"context"
	"log/slog"
	"time"

	"github.com/aretw0/routeflow/internal/logging"
	"github.com/cenkalti/backoff/v5"
)

// Watcher waits for submitted transactions to reach finality.
// It polls with exponential spacing and stops on the first transport error
// or when the context is cancelled; re-invoking the step is the caller's decision.
type Watcher struct {
	initial    time.Duration
	max        time.Duration
	multiplier float64
	logger     *slog.Logger
}

// Option configures the Watcher.
type Option func(*Watcher)

// WithInterval sets the first and the largest delay between polls.
func WithInterval(initial, max time.Duration) Option {
	return func(w *Watcher) {
		w.initial = initial
		w.max = max
	}
}

// WithLogger configures a logger for the Watcher.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// New creates a Watcher. Defaults poll after 1s, growing to 10s.
func New(opts ...Option) *Watcher {
	w := &Watcher{
		initial:    time.Second,
		max:        10 * time.Second,
		multiplier: 1.5,
		logger:     logging.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Watcher) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = w.initial
	b.MaxInterval = w.max
	b.Multiplier = w.multiplier
	b.RandomizationFactor = 0.1
	b.Reset()
	return b
}

// poll calls check until it reports done or fails. The first check runs immediately.
func (w *Watcher) poll(ctx context.Context, check func(ctx context.Context) (bool, error)) error {
	b := w.backOff()
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}

		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		timer.Reset(b.NextBackOff())
	}
}

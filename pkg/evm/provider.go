package evm

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/aretw0/routeflow/internal/logging"
	"github.com/aretw0/routeflow/pkg/domain"
	"github.com/aretw0/routeflow/pkg/ports"
	"github.com/aretw0/routeflow/pkg/status"
	"github.com/aretw0/routeflow/pkg/watcher"
	"github.com/ethereum/go-ethereum/common"
)

// Dependencies are the collaborators shared by every step executor of a provider.
// Relayer is only needed for relayer-assisted permit steps.
type Dependencies struct {
	Wallet  ports.Wallet
	Reader  ports.Reader
	Quotes  ports.QuoteService
	Status  ports.StatusService
	Chains  ports.ChainRegistry
	Relayer ports.Relayer
}

// Provider executes steps whose sender is an EVM account.
type Provider struct {
	deps Dependencies

	watcher    *watcher.Watcher
	classifier ErrorClassifier
	comparator StepComparator
	logger     *slog.Logger
	now        func() time.Time

	disableMessageSigning bool
}

// Option configures the Provider.
type Option func(*Provider)

// WithWatcher overrides the watcher used to await receipts and destinations.
func WithWatcher(w *watcher.Watcher) Option {
	return func(p *Provider) {
		p.watcher = w
	}
}

// WithClassifier overrides the error classifier.
func WithClassifier(c ErrorClassifier) Option {
	return func(p *Provider) {
		p.classifier = c
	}
}

// WithComparator overrides how refreshed quotes are checked against accepted ones.
func WithComparator(c StepComparator) Option {
	return func(p *Provider) {
		p.comparator = c
	}
}

// WithLogger configures a logger for the Provider and its executors.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// WithClock overrides the time source used for permit deadlines and timestamps.
func WithClock(now func() time.Time) Option {
	return func(p *Provider) {
		p.now = now
	}
}

// WithMessageSigningDisabled turns off native permit and Permit2 signatures,
// forcing on-chain approvals.
func WithMessageSigningDisabled(disabled bool) Option {
	return func(p *Provider) {
		p.disableMessageSigning = disabled
	}
}

// NewProvider creates an EVM provider.
func NewProvider(deps Dependencies, opts ...Option) (*Provider, error) {
	switch {
	case deps.Wallet == nil:
		return nil, fmt.Errorf("wallet: %w", ErrMissingDependency)
	case deps.Reader == nil:
		return nil, fmt.Errorf("reader: %w", ErrMissingDependency)
	case deps.Quotes == nil:
		return nil, fmt.Errorf("quote service: %w", ErrMissingDependency)
	case deps.Status == nil:
		return nil, fmt.Errorf("status service: %w", ErrMissingDependency)
	case deps.Chains == nil:
		return nil, fmt.Errorf("chain registry: %w", ErrMissingDependency)
	}

	p := &Provider{
		deps:       deps,
		classifier: ErrorClassifierFunc(ClassifyError),
		comparator: SlippageComparator{},
		logger:     logging.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.watcher == nil {
		p.watcher = watcher.New(watcher.WithLogger(p.logger))
	}
	return p, nil
}

func (p *Provider) Name() string {
	return "EVM"
}

// IsProviderStep accepts steps sent from a hex account address.
func (p *Provider) IsProviderStep(step *domain.Step) bool {
	return common.IsHexAddress(step.Action.FromAddress)
}

// NewStepExecutor binds an executor to one route. The executor owns the
// route's status engine and should be reused for every step of the route.
func (p *Provider) NewStepExecutor(opts ports.StepExecutorOptions) (ports.StepExecutor, error) {
	if opts.Route == nil {
		return nil, fmt.Errorf("route: %w", ErrMissingDependency)
	}

	mgr := status.New(opts.Route,
		status.WithUpdateHook(opts.Hooks.UpdateRouteHook),
		status.WithInternalUpdate(opts.OnRouteUpdate),
		status.WithLogger(p.logger),
		status.WithClock(p.now),
	)

	e := &StepExecutor{
		provider: p,
		mgr:      mgr,
		hooks:    opts.Hooks,
		wallet:   p.deps.Wallet,
		logger:   logging.ForRoute(p.logger, opts.Route.ID),
	}
	e.SetInteraction(opts.Settings)
	return e, nil
}

package ports

import (
	"context"

	"github.com/aretw0/routeflow/pkg/domain"
)

// ExchangeRateUpdate describes a refreshed quote whose minimum output dropped beyond slippage.
type ExchangeRateUpdate struct {
	ToToken        domain.Token
	OldToAmount    string
	NewToAmount    string
	OldToAmountMin string
	NewToAmountMin string
}

// ExecutionHooks are caller-supplied callbacks consulted during execution.
// Every field is optional.
type ExecutionHooks struct {
	// UpdateRouteHook receives the whole route after every propagated change.
	UpdateRouteHook func(route *domain.Route)
	// UpdateTransactionRequestHook may customise a request right before submission.
	UpdateTransactionRequestHook func(ctx context.Context, req *domain.TransactionRequest) (*domain.TransactionRequest, error)
	// SwitchChainHook asks the caller to attach a wallet to chainID.
	// A nil wallet with a nil error means the switch could not happen now.
	SwitchChainHook func(ctx context.Context, chainID uint64) (Wallet, error)
	// AcceptExchangeRateUpdateHook decides whether a worse quote may be used.
	AcceptExchangeRateUpdateHook func(ctx context.Context, update ExchangeRateUpdate) (bool, error)
}

// StepExecutorOptions configure a StepExecutor for one route invocation.
type StepExecutorOptions struct {
	Route    *domain.Route
	Hooks    ExecutionHooks
	Settings domain.InteractionSettings
	// OnRouteUpdate is the internal callback fired alongside UpdateRouteHook.
	OnRouteUpdate func(route *domain.Route)
}

// StepExecutor drives a single step to a terminal or paused state.
type StepExecutor interface {
	// ExecuteStep runs the step protocol. A nil error with a non-DONE execution
	// means the invocation paused and can be resumed later.
	ExecuteStep(ctx context.Context, step *domain.Step) (*domain.Step, error)
	// SetInteraction replaces the interaction settings between invocations.
	SetInteraction(settings domain.InteractionSettings)
	AllowExecution() bool
}

// Provider is a chain family able to execute some steps.
type Provider interface {
	Name() string
	IsProviderStep(step *domain.Step) bool
	NewStepExecutor(opts StepExecutorOptions) (StepExecutor, error)
}

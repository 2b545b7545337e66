package evm

import (
	"context"
	"fmt"

	"github.com/aretw0/routeflow/pkg/domain"
	"github.com/aretw0/routeflow/pkg/ports"
	"github.com/shopspring/decimal"
)

// DefaultSlippage is used when a step does not carry its own slippage.
const DefaultSlippage = 0.005

const exchangeRateMessage = "Exchange rate has changed!\nTransaction was not sent, your funds are still in your wallet.\nThe exchange rate has changed and the previous estimation can not be fulfilled due to value loss."

// AcceptFunc asks the caller whether a worse quote may be used.
type AcceptFunc func(ctx context.Context, update ports.ExchangeRateUpdate) (bool, error)

// StepComparator checks a refreshed quote against the previously accepted one
// and returns the step to commit. accept is nil when the caller cannot be asked.
type StepComparator interface {
	Compare(ctx context.Context, accepted, updated *domain.Step, accept AcceptFunc) (*domain.Step, error)
}

// SlippageComparator accepts refreshed quotes whose minimum output did not drop
// by more than the step's slippage.
type SlippageComparator struct {
	// Default replaces DefaultSlippage when positive.
	Default float64
}

func (c SlippageComparator) Compare(ctx context.Context, accepted, updated *domain.Step, accept AcceptFunc) (*domain.Step, error) {
	within, err := c.withinSlippage(accepted, updated)
	if err != nil {
		return nil, err
	}
	if within {
		return updated, nil
	}

	allowed := false
	if accept != nil {
		allowed, err = accept(ctx, ports.ExchangeRateUpdate{
			ToToken:        updated.Action.ToToken,
			OldToAmount:    accepted.Estimate.ToAmount,
			NewToAmount:    updated.Estimate.ToAmount,
			OldToAmountMin: accepted.Estimate.ToAmountMin,
			NewToAmountMin: updated.Estimate.ToAmountMin,
		})
		if err != nil {
			return nil, fmt.Errorf("exchange rate update hook: %w", err)
		}
	}
	if !allowed {
		return nil, domain.NewExecutionError(domain.CodeExchangeRateUpdateCanceled, exchangeRateMessage, nil)
	}
	return updated, nil
}

func (c SlippageComparator) withinSlippage(accepted, updated *domain.Step) (bool, error) {
	slippage := accepted.Action.Slippage
	if slippage <= 0 {
		slippage = c.Default
	}
	if slippage <= 0 {
		slippage = DefaultSlippage
	}

	oldMin, err := parseDecimal(accepted.Estimate.ToAmountMin)
	if err != nil {
		return false, err
	}
	newMin, err := parseDecimal(updated.Estimate.ToAmountMin)
	if err != nil {
		return false, err
	}
	if oldMin.IsZero() {
		return true, nil
	}

	drop := oldMin.Sub(newMin).Div(oldMin)
	return drop.LessThanOrEqual(decimal.NewFromFloat(slippage)), nil
}

func parseDecimal(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, domain.NewExecutionError(domain.CodeValidationError, fmt.Sprintf("invalid amount %q", s), err)
	}
	return d, nil
}

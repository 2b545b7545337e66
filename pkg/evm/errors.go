package evm

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"

	"github.com/aretw0/routeflow/pkg/domain"
	"github.com/aretw0/routeflow/pkg/permit"
	"github.com/aretw0/routeflow/pkg/watcher"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	// ErrMissingDependency is returned by NewProvider when a required collaborator is nil.
	ErrMissingDependency = errors.New("missing dependency")

	// errPaused unwinds an invocation that stopped at an interaction checkpoint.
	errPaused = errors.New("execution paused")
)

// EIP-1193 provider error codes.
const (
	rpcUserRejected      = 4001
	rpcUnauthorized      = 4100
	rpcUnsupported       = 4200
	rpcUnrecognizedChain = 4902
)

// ErrorClassifier maps low-level wallet and transport failures to domain error codes.
type ErrorClassifier interface {
	Classify(err error) *domain.ExecutionError
}

// ErrorClassifierFunc adapts a function to ErrorClassifier.
type ErrorClassifierFunc func(err error) *domain.ExecutionError

func (f ErrorClassifierFunc) Classify(err error) *domain.ExecutionError {
	return f(err)
}

type messageRule struct {
	fragments []string
	code      domain.ErrorCode
	message   string
}

var messageRules = []messageRule{
	{[]string{"user rejected", "user denied", "rejected the request"}, domain.CodeSignatureRejected, "User rejected the request."},
	{[]string{"insufficient funds"}, domain.CodeInsufficientFunds, "The wallet does not hold enough funds to cover the transaction and its gas."},
	{[]string{"underpriced", "fee too low", "less than block base fee"}, domain.CodeTransactionUnderpriced, "Transaction is underpriced."},
	{[]string{"nonce too low", "already known", "nonce has already been used"}, domain.CodeTransactionConflict, "A conflicting transaction was already submitted."},
	{[]string{"gas required exceeds", "intrinsic gas too low", "out of gas"}, domain.CodeGasLimitError, "Gas limit is too low."},
	{[]string{"execution reverted"}, domain.CodeTransactionSimulationFailed, "Transaction simulation failed."},
	{[]string{"transaction expired", "deadline"}, domain.CodeTransactionExpired, "Transaction has expired."},
	{[]string{"connection refused", "connection reset", "no such host", "broken pipe"}, domain.CodeProviderUnavailable, unreachableMessage},
}

const unreachableMessage = "The chain provider is unreachable."

// ClassifyError is the default EVM classifier.
func ClassifyError(err error) *domain.ExecutionError {
	var execErr *domain.ExecutionError
	if errors.As(err, &execErr) {
		return execErr
	}

	var validation *permit.ValidationError
	switch {
	case errors.As(err, &validation):
		return domain.NewExecutionError(domain.CodeValidationError, validation.Error(), err)
	case errors.Is(err, watcher.ErrCancelled):
		return domain.NewExecutionError(domain.CodeTransactionCanceled, "User canceled transaction.", err)
	case errors.Is(err, watcher.ErrReverted):
		return domain.NewExecutionError(domain.CodeTransactionFailed, "Transaction was reverted.", err)
	case errors.Is(err, watcher.ErrBatchFailed):
		return domain.NewExecutionError(domain.CodeTransactionFailed, "Atomic batch failed.", err)
	case errors.Is(err, watcher.ErrRelayFailed):
		return domain.NewExecutionError(domain.CodeTransactionFailed, "Relayed transaction failed.", err)
	case errors.Is(err, context.DeadlineExceeded):
		return domain.NewExecutionError(domain.CodeTimeout, "Request timed out.", err)
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		switch rpcErr.ErrorCode() {
		case rpcUserRejected:
			return domain.NewExecutionError(domain.CodeSignatureRejected, "User rejected the request.", err)
		case rpcUnauthorized, rpcUnsupported:
			return domain.NewExecutionError(domain.CodeTransactionRejected, "The wallet did not authorize the request.", err)
		case rpcUnrecognizedChain:
			return domain.NewExecutionError(domain.CodeChainSwitchError, "The wallet does not know the requested chain.", err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return domain.NewExecutionError(domain.CodeTimeout, "Request timed out.", err)
		}
		return domain.NewExecutionError(domain.CodeProviderUnavailable, unreachableMessage, err)
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return domain.NewExecutionError(domain.CodeProviderUnavailable, unreachableMessage, err)
	}

	msg := strings.ToLower(err.Error())
	for _, rule := range messageRules {
		for _, fragment := range rule.fragments {
			if strings.Contains(msg, fragment) {
				return domain.NewExecutionError(rule.code, rule.message, err)
			}
		}
	}

	return domain.NewExecutionError(domain.CodeInternalError, err.Error(), err)
}

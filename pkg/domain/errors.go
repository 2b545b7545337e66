package domain

import (
	"errors"
	"fmt"
)

// ErrExecutionNotInitialized is returned when a step has no Execution yet.
var ErrExecutionNotInitialized = errors.New("execution not initialized")

// ErrProcessNotFound is returned when a process type is absent from a step.
var ErrProcessNotFound = errors.New("process not found")

// ErrRouteNotFound is returned when a route ID cannot be found in the store.
var ErrRouteNotFound = errors.New("route not found")

// ErrStepNotFound is returned when a step ID is not part of the route.
var ErrStepNotFound = errors.New("step not found")

// ErrProcessTerminal is returned when a status change targets a terminal process.
var ErrProcessTerminal = errors.New("process already terminal")

// ErrorCode is the closed set of machine-checkable failure codes.
type ErrorCode string

const (
	CodeInternalError                ErrorCode = "InternalError"
	CodeValidationError              ErrorCode = "ValidationError"
	CodeTransactionUnderpriced       ErrorCode = "TransactionUnderpriced"
	CodeTransactionFailed            ErrorCode = "TransactionFailed"
	CodeTimeout                      ErrorCode = "Timeout"
	CodeProviderUnavailable          ErrorCode = "ProviderUnavailable"
	CodeNotFound                     ErrorCode = "NotFound"
	CodeChainSwitchError             ErrorCode = "ChainSwitchError"
	CodeTransactionUnprepared        ErrorCode = "TransactionUnprepared"
	CodeGasLimitError                ErrorCode = "GasLimitError"
	CodeTransactionCanceled          ErrorCode = "TransactionCanceled"
	CodeSlippageError                ErrorCode = "SlippageError"
	CodeSignatureRejected            ErrorCode = "SignatureRejected"
	CodeBalanceError                 ErrorCode = "BalanceError"
	CodeAllowanceRequired            ErrorCode = "AllowanceRequired"
	CodeInsufficientFunds            ErrorCode = "InsufficientFunds"
	CodeExchangeRateUpdateCanceled   ErrorCode = "ExchangeRateUpdateCanceled"
	CodeWalletChangedDuringExecution ErrorCode = "WalletChangedDuringExecution"
	CodeTransactionExpired           ErrorCode = "TransactionExpired"
	CodeTransactionSimulationFailed  ErrorCode = "TransactionSimulationFailed"
	CodeTransactionConflict          ErrorCode = "TransactionConflict"
	CodeTransactionNotFound          ErrorCode = "TransactionNotFound"
	CodeTransactionRejected          ErrorCode = "TransactionRejected"
)

// ExecutionError is a classified failure recorded on a process and returned to the caller.
type ExecutionError struct {
	Code    ErrorCode
	Message string
	Cause   error
}

// NewExecutionError builds an ExecutionError with an optional cause.
func NewExecutionError(code ErrorCode, message string, cause error) *ExecutionError {
	return &ExecutionError{Code: code, Message: message, Cause: cause}
}

func (e *ExecutionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ExecutionError) Unwrap() error { return e.Cause }

// ProcessError converts the error into the shape stored on a FAILED process.
func (e *ExecutionError) ProcessError() *ProcessError {
	return &ProcessError{Code: e.Code, Message: e.Message}
}

// CodeOf extracts the ErrorCode from err, or "" if err carries none.
func CodeOf(err error) ErrorCode {
	var ee *ExecutionError
	if errors.As(err, &ee) {
		return ee.Code
	}
	return ""
}

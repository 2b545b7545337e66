package permit

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	// ErrDeadlineOutOfRange is returned when a signature deadline exceeds the maximum.
	ErrDeadlineOutOfRange = errors.New("signature deadline out of range")
	// ErrNonceOutOfRange is returned when a nonce exceeds the maximum unordered nonce.
	ErrNonceOutOfRange = errors.New("nonce out of range")
	// ErrAmountOutOfRange is returned when a permitted amount exceeds the maximum transferable amount.
	ErrAmountOutOfRange = errors.New("amount out of range")
)

// ValidationError reports which permit field failed range validation.
type ValidationError struct {
	Field string
	Value *big.Int
	Max   *big.Int
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("permit %s %s exceeds %s: %v", e.Field, e.Value, e.Max, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

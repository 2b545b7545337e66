package watcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/aretw0/routeflow/pkg/domain"
	"github.com/aretw0/routeflow/pkg/ports"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrReverted is returned when the awaited transaction was mined but failed.
	ErrReverted = errors.New("transaction reverted")
	// ErrCancelled is returned when the awaited transaction was replaced by a cancellation.
	ErrCancelled = errors.New("transaction cancelled")
	// ErrBatchFailed is returned when an atomic batch did not confirm.
	ErrBatchFailed = errors.New("atomic batch failed")
	// ErrRelayFailed is returned when a relayer reports its task as failed.
	ErrRelayFailed = errors.New("relayed transaction failed")
	// ErrTransferFailed is returned when the status service reports a bridge
	// transfer as failed or invalid.
	ErrTransferFailed = errors.New("transfer failed")
)

// ReplacementReason classifies why a transaction hash was superseded.
type ReplacementReason string

const (
	ReasonRepriced  ReplacementReason = "repriced"
	ReasonCancelled ReplacementReason = "cancelled"
	ReasonReplaced  ReplacementReason = "replaced"
)

// Replacement describes a transaction replaced by another with the same nonce.
type Replacement struct {
	Reason  ReplacementReason
	OldHash common.Hash
	NewHash common.Hash
}

// ReplacedFunc is invoked as soon as a replacement is detected.
type ReplacedFunc func(r Replacement)

// WaitForReceipt waits for hash to be mined on chainID. When the sender's nonce
// is consumed by another transaction, onReplaced is called and the wait follows
// the replacement. A replacement that cancels the original fails with ErrCancelled.
func (w *Watcher) WaitForReceipt(ctx context.Context, reader ports.Reader, chainID uint64, hash common.Hash, onReplaced ReplacedFunc) (*domain.TxReceipt, error) {
	startBlock, err := reader.BlockNumber(ctx, chainID)
	if err != nil {
		return nil, fmt.Errorf("failed to read block number: %w", err)
	}

	var (
		receipt   *domain.TxReceipt
		original  *ports.TxInfo
		cancelled bool
	)

	err = w.poll(ctx, func(ctx context.Context) (bool, error) {
		r, err := reader.TransactionReceipt(ctx, chainID, hash)
		if err == nil {
			receipt = r
			return true, nil
		}
		if !errors.Is(err, ports.ErrTxNotFound) {
			return false, fmt.Errorf("failed to get receipt %s: %w", hash.Hex(), err)
		}

		if original == nil {
			tx, err := reader.TransactionByHash(ctx, chainID, hash)
			if errors.Is(err, ports.ErrTxNotFound) {
				return false, nil
			}
			if err != nil {
				return false, fmt.Errorf("failed to get transaction %s: %w", hash.Hex(), err)
			}
			original = tx
		}

		nonce, err := reader.NonceAt(ctx, chainID, original.From)
		if err != nil {
			return false, fmt.Errorf("failed to get nonce of %s: %w", original.From.Hex(), err)
		}
		if nonce <= original.Nonce {
			return false, nil
		}

		replacement, err := reader.FindTransaction(ctx, chainID, original.From, original.Nonce, startBlock)
		if errors.Is(err, ports.ErrTxNotFound) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("failed to look up replacement: %w", err)
		}
		if replacement.Hash == hash {
			return false, nil
		}

		reason := classifyReplacement(original, replacement)
		w.logger.Info("transaction replaced",
			"chain_id", chainID,
			"tx_hash", hash.Hex(),
			"replacement", replacement.Hash.Hex(),
			"reason", reason,
		)
		if onReplaced != nil {
			onReplaced(Replacement{Reason: reason, OldHash: hash, NewHash: replacement.Hash})
		}
		cancelled = reason == ReasonCancelled
		hash = replacement.Hash
		original = replacement
		return false, nil
	})
	if err != nil {
		return nil, err
	}

	if cancelled {
		return receipt, ErrCancelled
	}
	if !receipt.Success {
		return receipt, fmt.Errorf("%s: %w", receipt.TxHash, ErrReverted)
	}
	return receipt, nil
}

func classifyReplacement(original, replacement *ports.TxInfo) ReplacementReason {
	if sameAddress(original.To, replacement.To) &&
		bigEqual(original.Value, replacement.Value) &&
		bytes.Equal(original.Input, replacement.Input) {
		return ReasonRepriced
	}
	if replacement.To != nil && *replacement.To == replacement.From &&
		(replacement.Value == nil || replacement.Value.Sign() == 0) {
		return ReasonCancelled
	}
	return ReasonReplaced
}

func sameAddress(a, b *common.Address) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func bigEqual(a, b *big.Int) bool {
	if a == nil || b == nil {
		return (a == nil || a.Sign() == 0) && (b == nil || b.Sign() == 0)
	}
	return a.Cmp(b) == 0
}

package watcher

import (
	"context"
	"fmt"

	"github.com/aretw0/routeflow/pkg/domain"
	"github.com/aretw0/routeflow/pkg/ports"
)

// EIP-5792 status code ranges.
const (
	batchConfirmed = 200
	batchFailedMin = 400
)

// WaitForBatch resolves an atomic batch identifier to the receipt of its last call.
func (w *Watcher) WaitForBatch(ctx context.Context, wallet ports.Wallet, batchID string) (*domain.TxReceipt, error) {
	var status *ports.CallsStatus

	err := w.poll(ctx, func(ctx context.Context) (bool, error) {
		s, err := wallet.CallsStatus(ctx, batchID)
		if err != nil {
			return false, fmt.Errorf("failed to get calls status %s: %w", batchID, err)
		}
		if s.Status < batchConfirmed {
			return false, nil
		}
		status = s
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	if status.Status >= batchFailedMin {
		return nil, fmt.Errorf("batch %s status %d: %w", batchID, status.Status, ErrBatchFailed)
	}
	if len(status.Receipts) == 0 {
		return nil, fmt.Errorf("batch %s confirmed without receipts: %w", batchID, ErrBatchFailed)
	}
	for _, r := range status.Receipts {
		if !r.Success {
			return nil, fmt.Errorf("batch %s call %s: %w", batchID, r.TxHash, ErrReverted)
		}
	}

	last := status.Receipts[len(status.Receipts)-1]
	return &last, nil
}

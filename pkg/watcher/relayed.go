package watcher

import (
	"context"
	"fmt"

	"github.com/aretw0/routeflow/pkg/domain"
	"github.com/aretw0/routeflow/pkg/ports"
)

// WaitForRelayed polls a relayer task until it completes. The returned receipt
// carries the hash reported by the relayer.
func (w *Watcher) WaitForRelayed(ctx context.Context, relayer ports.Relayer, taskID string) (*domain.TxReceipt, error) {
	var result *ports.RelayStatus

	err := w.poll(ctx, func(ctx context.Context) (bool, error) {
		s, err := relayer.RelayedTransactionStatus(ctx, taskID)
		if err != nil {
			return false, fmt.Errorf("failed to get relayed task %s: %w", taskID, err)
		}
		switch s.Status {
		case ports.RelayStatusDone:
			result = s
			return true, nil
		case ports.RelayStatusFailed:
			return false, fmt.Errorf("task %s: %s: %w", taskID, s.Message, ErrRelayFailed)
		default:
			return false, nil
		}
	})
	if err != nil {
		return nil, err
	}

	return &domain.TxReceipt{TxHash: result.TxHash, Success: true}, nil
}

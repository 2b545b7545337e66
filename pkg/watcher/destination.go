package watcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/aretw0/routeflow/pkg/domain"
	"github.com/aretw0/routeflow/pkg/ports"
	"github.com/aretw0/routeflow/pkg/status"
)

const receivingFailedMessage = "Failed while waiting for receiving chain."

// WaitForDestination polls the status service until the bridge transfer lands
// on the destination chain. It keeps the RECEIVING_CHAIN process of step current
// and completes the step's execution with the received amounts.
//
// Only a transfer the service reports as failed is recorded on the process.
// Transport errors leave it PENDING and are returned for the caller to classify.
func (w *Watcher) WaitForDestination(
	ctx context.Context,
	svc ports.StatusService,
	mgr *status.Manager,
	step *domain.Step,
	req ports.StatusRequest,
	toChain *domain.Chain,
) (*domain.Step, error) {
	var final *ports.TransferStatus

	err := w.poll(ctx, func(ctx context.Context) (bool, error) {
		s, err := svc.GetStatus(ctx, req)
		if err != nil {
			return false, fmt.Errorf("failed to get transfer status: %w", err)
		}
		switch s.Status {
		case ports.TransferDone:
			final = s
			return true, nil
		case ports.TransferNotFound:
			return false, nil
		case ports.TransferPending:
			return false, w.updateSubstatus(mgr, step, s)
		default:
			return false, fmt.Errorf("%w: %s is %s", ErrTransferFailed, req.TxHash, s.Status)
		}
	})
	if err != nil {
		if !errors.Is(err, ErrTransferFailed) {
			return step, err
		}
		execErr := domain.NewExecutionError(domain.CodeTransactionFailed, receivingFailedMessage, err)
		if _, uerr := mgr.UpdateProcess(step, domain.ProcessReceivingChain, domain.ProcessFailed, domain.ProcessUpdate{
			Error: execErr.ProcessError(),
		}); uerr != nil {
			w.logger.Warn("failed to record destination failure", "step_id", step.ID, "err", uerr)
		}
		return step, execErr
	}

	update := domain.ProcessUpdate{
		Substatus:        final.Substatus,
		SubstatusMessage: substatusMessage(final),
	}
	receipt := &domain.Receipt{}
	if final.Receiving != nil {
		update.TxHash = final.Receiving.TxHash
		update.TxLink = final.Receiving.TxLink
		if toChain != nil {
			if link := toChain.TxLink(final.Receiving.TxHash); link != "" {
				update.TxLink = link
			}
		}
		receipt.ToAmount = final.Receiving.Amount
		receipt.ToToken = final.Receiving.Token
	}
	if final.Sending != nil {
		receipt.FromAmount = final.Sending.Amount
		if final.Sending.GasAmount != "" && final.Sending.GasToken != nil {
			receipt.GasCosts = []domain.GasCost{{
				Type:   "SEND",
				Amount: final.Sending.GasAmount,
				Token:  *final.Sending.GasToken,
			}}
		}
	}

	if _, err := mgr.UpdateProcess(step, domain.ProcessReceivingChain, domain.ProcessDone, update); err != nil {
		return step, err
	}
	return mgr.UpdateExecution(step, domain.ExecutionDone, receipt)
}

func (w *Watcher) updateSubstatus(mgr *status.Manager, step *domain.Step, s *ports.TransferStatus) error {
	p := mgr.FindProcess(step, domain.ProcessReceivingChain)
	if p == nil || (p.Substatus == s.Substatus && p.Status == domain.ProcessPending) {
		return nil
	}
	_, err := mgr.UpdateProcess(step, domain.ProcessReceivingChain, domain.ProcessPending, domain.ProcessUpdate{
		Substatus:        s.Substatus,
		SubstatusMessage: substatusMessage(s),
	})
	return err
}

func substatusMessage(s *ports.TransferStatus) string {
	if s.SubstatusMessage != "" {
		return s.SubstatusMessage
	}
	return domain.SubstatusMessage(s.Substatus)
}

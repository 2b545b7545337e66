package evm

import (
	"context"

	"github.com/aretw0/routeflow/pkg/domain"
	"github.com/aretw0/routeflow/pkg/permit"
	"github.com/aretw0/routeflow/pkg/ports"
	"github.com/aretw0/routeflow/pkg/watcher"
	"github.com/ethereum/go-ethereum/common"
)

// checkAllowance makes sure the spender may move the step's tokens. It
// either finds enough allowance, signs a native permit, queues an approval
// into the atomic batch, or sends an approval transaction and waits for it.
func (e *StepExecutor) checkAllowance(ctx context.Context, inv *invocation) error {
	step := inv.step
	chainID := inv.fromChain.ID

	if err := e.resumeAllowance(step, chainID); err != nil {
		return err
	}

	p, err := e.mgr.FindOrCreateProcess(step, domain.ProcessTokenAllowance, domain.ProcessStarted, chainID)
	if err != nil {
		return err
	}
	if p.Status == domain.ProcessDone {
		return nil
	}
	if p.TxHash != "" {
		return e.awaitApproval(ctx, inv, common.HexToHash(p.TxHash))
	}

	amount, err := parseAmount(step.Action.FromAmount)
	if err != nil {
		return err
	}
	spender := step.Estimate.ApprovalAddress
	approveAmount := amount
	if inv.permit2 {
		spender = inv.fromChain.Permit2
		approveAmount = permit.MaxUint256
	}
	if spender == (common.Address{}) {
		return domain.NewExecutionError(domain.CodeValidationError, "The step has no approval address.", nil)
	}

	token := tokenReader{e: e, chainID: chainID, token: step.Action.FromToken.Address}
	current, err := token.allowance(ctx, inv.account, spender)
	if err != nil {
		return err
	}
	if current.Cmp(amount) >= 0 {
		_, err := e.mgr.UpdateProcess(step, domain.ProcessTokenAllowance, domain.ProcessDone, domain.ProcessUpdate{})
		return err
	}

	if e.nativePermitAllowed(inv) {
		deadline := e.deadline()
		td, err := token.nativePermit(ctx, inv.account, inv.fromChain.Permit2Proxy, amount, deadline)
		if err != nil {
			return err
		}
		if td != nil {
			if err := e.requireInteraction(step, domain.ProcessTokenAllowance); err != nil {
				return err
			}
			sig, err := e.signTypedData(ctx, inv.account, td)
			if err != nil {
				return err
			}
			inv.nativePermit = &signedNativePermit{
				Token:     step.Action.FromToken.Address,
				Amount:    amount,
				Deadline:  deadline,
				Signature: sig,
			}
			_, err = e.mgr.UpdateProcess(step, domain.ProcessTokenAllowance, domain.ProcessDone, domain.ProcessUpdate{})
			return err
		}
	}

	data, err := approveCalldata(spender, approveAmount)
	if err != nil {
		return err
	}

	if inv.atomicBatch {
		inv.queued = append(inv.queued, ports.Call{
			From: inv.account,
			To:   step.Action.FromToken.Address,
			Data: data,
		})
		_, err := e.mgr.UpdateProcess(step, domain.ProcessTokenAllowance, domain.ProcessDone, domain.ProcessUpdate{})
		return err
	}

	if err := e.requireInteraction(step, domain.ProcessTokenAllowance); err != nil {
		return err
	}
	hash, err := e.wallet.SendTransaction(ctx, &domain.TransactionRequest{
		ChainID: chainID,
		From:    inv.account,
		To:      step.Action.FromToken.Address,
		Data:    data,
	})
	if err != nil {
		return err
	}
	if _, err := e.mgr.UpdateProcess(step, domain.ProcessTokenAllowance, domain.ProcessPending, domain.ProcessUpdate{
		TxHash: hash.Hex(),
		TxLink: inv.fromChain.TxLink(hash.Hex()),
	}); err != nil {
		return err
	}
	e.logger.Debug("approval sent", "step_id", step.ID, "tx_hash", hash.Hex(), "spender", spender.Hex())
	return e.awaitApproval(ctx, inv, hash)
}

// resumeAllowance prepares an allowance process left by an earlier invocation.
// Signature and batch approvals are not on chain until the phase lands, so a
// DONE process without a hash is evaluated again. A FAILED process keeps its
// approval hash unless the chain settled it, so the approval is awaited
// instead of sent twice.
func (e *StepExecutor) resumeAllowance(step *domain.Step, chainID uint64) error {
	p := e.mgr.FindProcess(step, domain.ProcessTokenAllowance)
	if p == nil {
		return nil
	}
	switch {
	case p.Status == domain.ProcessDone && p.TxHash == "":
		return e.mgr.RemoveProcess(step, domain.ProcessTokenAllowance)
	case p.Status != domain.ProcessFailed:
		return nil
	}

	carry := domain.ProcessUpdate{}
	if p.TxHash != "" && !settled(p) {
		carry = domain.ProcessUpdate{TxHash: p.TxHash, TxLink: p.TxLink}
	}
	if err := e.mgr.RemoveProcess(step, domain.ProcessTokenAllowance); err != nil {
		return err
	}
	if carry.TxHash == "" {
		return nil
	}
	if _, err := e.mgr.FindOrCreateProcess(step, domain.ProcessTokenAllowance, domain.ProcessPending, chainID); err != nil {
		return err
	}
	_, err := e.mgr.UpdateProcess(step, domain.ProcessTokenAllowance, domain.ProcessPending, carry)
	return err
}

func (e *StepExecutor) nativePermitAllowed(inv *invocation) bool {
	return inv.fromChain.HasPermitProxy() &&
		!inv.atomicBatch &&
		!inv.step.IsRelayerStep() &&
		!e.provider.disableMessageSigning
}

func (e *StepExecutor) awaitApproval(ctx context.Context, inv *invocation, hash common.Hash) error {
	step := inv.step
	receipt, err := e.provider.watcher.WaitForReceipt(ctx, e.provider.deps.Reader, inv.fromChain.ID, hash,
		e.onReplaced(inv, domain.ProcessTokenAllowance))
	if err != nil {
		return err
	}
	_, err = e.mgr.UpdateProcess(step, domain.ProcessTokenAllowance, domain.ProcessDone, domain.ProcessUpdate{
		TxHash: receipt.TxHash,
		TxLink: inv.fromChain.TxLink(receipt.TxHash),
	})
	return err
}

// requireInteraction marks t as waiting for the user and pauses when prompts are disallowed.
func (e *StepExecutor) requireInteraction(step *domain.Step, t domain.ProcessType) error {
	if _, err := e.mgr.UpdateProcess(step, t, domain.ProcessActionRequired, domain.ProcessUpdate{}); err != nil {
		return err
	}
	if !e.allowInteraction() {
		return errPaused
	}
	return nil
}

// onReplaced records a replacement hash on process t as soon as it is seen.
func (e *StepExecutor) onReplaced(inv *invocation, t domain.ProcessType) watcher.ReplacedFunc {
	return func(r watcher.Replacement) {
		hash := r.NewHash.Hex()
		e.logger.Info("transaction replaced", "step_id", inv.step.ID, "process", t,
			"reason", r.Reason, "old_tx_hash", r.OldHash.Hex(), "tx_hash", hash)
		if _, err := e.mgr.UpdateProcess(inv.step, t, domain.ProcessPending, domain.ProcessUpdate{
			TxHash: hash,
			TxLink: inv.fromChain.TxLink(hash),
		}); err != nil {
			e.logger.Warn("failed to record replacement", "step_id", inv.step.ID, "err", err)
		}
	}
}

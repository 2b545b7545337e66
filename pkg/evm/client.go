package evm

import (
	"context"
	"fmt"
	"strings"

	"github.com/aretw0/routeflow/pkg/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/mitchellh/mapstructure"
)

const walletChangedMessage = "The wallet address that requested the quote does not match the wallet address attempting to sign the transaction."

// checkClient makes sure the wallet is on the step's source chain and signs
// for the quoted account. It reports false when the invocation must pause.
func (e *StepExecutor) checkClient(ctx context.Context, inv *invocation) (bool, error) {
	ok, err := e.switchChain(ctx, inv)
	if err != nil || !ok {
		return false, err
	}

	accounts, err := e.wallet.Accounts(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get wallet accounts: %w", err)
	}
	if len(accounts) == 0 || !strings.EqualFold(accounts[0].Hex(), inv.step.Action.FromAddress) {
		return false, e.failWalletChanged(inv)
	}
	inv.account = accounts[0]
	return true, nil
}

// failWalletChanged fails the last open process, or a new TRANSACTION process.
func (e *StepExecutor) failWalletChanged(inv *invocation) error {
	step := inv.step
	execErr := domain.NewExecutionError(domain.CodeWalletChangedDuringExecution, walletChangedMessage, nil)

	target := domain.ProcessTransaction
	for i := len(step.Execution.Process) - 1; i >= 0; i-- {
		if p := step.Execution.Process[i]; !p.Status.IsTerminal() {
			target = p.Type
			break
		}
	}
	if target == domain.ProcessTransaction {
		if _, err := e.mgr.FindOrCreateProcess(step, target, domain.ProcessStarted, inv.fromChain.ID); err != nil {
			return err
		}
	}
	if _, err := e.mgr.UpdateProcess(step, target, domain.ProcessFailed, domain.ProcessUpdate{
		Error: execErr.ProcessError(),
	}); err != nil {
		return err
	}
	e.logger.Warn("wallet changed during execution", "step_id", step.ID, "expected", step.Action.FromAddress)
	return execErr
}

// switchChain attaches the wallet to the source chain through the caller's hook.
func (e *StepExecutor) switchChain(ctx context.Context, inv *invocation) (bool, error) {
	step := inv.step
	chainID := inv.fromChain.ID

	current, err := e.wallet.ChainID(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get wallet chain: %w", err)
	}
	if current == chainID {
		return true, nil
	}

	if p := e.mgr.FindProcess(step, domain.ProcessSwitchChain); p != nil && p.Status.IsTerminal() {
		if err := e.mgr.RemoveProcess(step, domain.ProcessSwitchChain); err != nil {
			return false, err
		}
	}
	if _, err := e.mgr.FindOrCreateProcess(step, domain.ProcessSwitchChain, domain.ProcessActionRequired, chainID); err != nil {
		return false, err
	}
	if _, err := e.mgr.UpdateExecution(step, domain.ExecutionActionRequired, nil); err != nil {
		return false, err
	}

	hook := e.hooks.SwitchChainHook
	if !e.allowInteraction() || hook == nil {
		return false, nil
	}

	wallet, err := hook(ctx, chainID)
	if err == nil && wallet == nil {
		return false, nil
	}
	if err == nil {
		var got uint64
		got, err = wallet.ChainID(ctx)
		if err == nil && got != chainID {
			err = fmt.Errorf("wallet is on chain %d, expected %d", got, chainID)
		}
	}
	if err != nil {
		if ctx.Err() != nil {
			return false, err
		}
		execErr := domain.NewExecutionError(domain.CodeChainSwitchError, "Chain switch required.", err)
		if _, uerr := e.mgr.UpdateProcess(step, domain.ProcessSwitchChain, domain.ProcessFailed, domain.ProcessUpdate{
			Error: execErr.ProcessError(),
		}); uerr != nil {
			return false, uerr
		}
		return false, execErr
	}

	e.wallet = wallet
	if _, err := e.mgr.UpdateProcess(step, domain.ProcessSwitchChain, domain.ProcessDone, domain.ProcessUpdate{}); err != nil {
		return false, err
	}
	if _, err := e.mgr.UpdateExecution(step, domain.ExecutionPending, nil); err != nil {
		return false, err
	}
	e.logger.Debug("chain switched", "step_id", step.ID, "chain_id", chainID)
	return true, nil
}

// walletCapabilities is the subset of an EIP-5792 capability map used here.
// Older wallets report atomicBatch.supported, newer ones atomic.status.
type walletCapabilities struct {
	AtomicBatch struct {
		Supported bool `mapstructure:"supported"`
	} `mapstructure:"atomicBatch"`
	Atomic struct {
		Status string `mapstructure:"status"`
	} `mapstructure:"atomic"`
}

// atomicBatchSupported probes the wallet. Any probe failure means unsupported.
func (e *StepExecutor) atomicBatchSupported(ctx context.Context, inv *invocation) bool {
	raw, err := e.wallet.Capabilities(ctx, common.HexToAddress(inv.step.Action.FromAddress), inv.fromChain.ID)
	if err != nil {
		e.logger.Debug("capability probe failed", "chain_id", inv.fromChain.ID, "err", err)
		return false
	}
	if len(raw) == 0 {
		return false
	}

	var caps walletCapabilities
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &caps,
	})
	if err != nil {
		return false
	}
	if err := dec.Decode(raw); err != nil {
		e.logger.Debug("unreadable capabilities", "chain_id", inv.fromChain.ID, "err", err)
		return false
	}

	switch caps.Atomic.Status {
	case "supported", "ready":
		return true
	}
	return caps.AtomicBatch.Supported
}

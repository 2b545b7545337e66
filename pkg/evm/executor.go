package evm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/aretw0/routeflow/pkg/domain"
	"github.com/aretw0/routeflow/pkg/ports"
	"github.com/aretw0/routeflow/pkg/status"
	"github.com/ethereum/go-ethereum/common"
)

// StepExecutor runs the EVM step protocol for the steps of one route.
// Invocations on the same executor must not overlap.
type StepExecutor struct {
	provider *Provider
	mgr      *status.Manager
	hooks    ports.ExecutionHooks
	settings atomic.Pointer[domain.InteractionSettings]

	// wallet is replaced when the caller switches chains.
	wallet ports.Wallet
	logger *slog.Logger
}

// invocation is the state evaluated once per ExecuteStep call.
type invocation struct {
	step      *domain.Step
	fromChain *domain.Chain
	toChain   *domain.Chain
	bridge    bool
	phase     domain.ProcessType

	// current is the process a failure is recorded on.
	current domain.ProcessType
	account common.Address

	atomicBatch  bool
	permit2      bool
	nativePermit *signedNativePermit
	queued       []ports.Call
}

// Manager exposes the status engine bound to the executor's route.
func (e *StepExecutor) Manager() *status.Manager {
	return e.mgr
}

// SetInteraction replaces the interaction settings. It may be called while a
// step is running; the new values apply at the next checkpoint.
func (e *StepExecutor) SetInteraction(settings domain.InteractionSettings) {
	e.settings.Store(&settings)
	e.mgr.SetUpdatesEnabled(settings.AllowUpdates)
}

func (e *StepExecutor) AllowExecution() bool {
	return e.settings.Load().AllowExecution
}

func (e *StepExecutor) allowInteraction() bool {
	return e.settings.Load().AllowInteraction
}

// ExecuteStep drives step until it is DONE, paused or failed.
func (e *StepExecutor) ExecuteStep(ctx context.Context, step *domain.Step) (*domain.Step, error) {
	e.mgr.InitExecution(step)

	inv, err := e.newInvocation(ctx, step)
	if err != nil {
		return step, err
	}
	logger := e.logger.With("step_id", step.ID)

	if e.awaitingDestination(inv) {
		logger.Debug("source chain already final, waiting for destination")
		return e.waitForDestination(ctx, inv)
	}

	ok, err := e.checkClient(ctx, inv)
	if err != nil || !ok {
		return step, err
	}

	inv.atomicBatch = e.atomicBatchSupported(ctx, inv)
	logger.Debug("capabilities probed", "atomic_batch", inv.atomicBatch)

	if err := e.executeSource(ctx, inv); err != nil {
		if errors.Is(err, errPaused) {
			logger.Debug("execution paused", "process", inv.current)
			return step, nil
		}
		return step, e.fail(ctx, inv, err)
	}

	if !inv.bridge {
		return step, nil
	}
	return e.waitForDestination(ctx, inv)
}

// awaitingDestination reports whether an earlier invocation finished the
// source phase and handed over to the receiving chain.
func (e *StepExecutor) awaitingDestination(inv *invocation) bool {
	if !inv.bridge {
		return false
	}
	source := e.mgr.FindProcess(inv.step, inv.phase)
	if source == nil || source.Status != domain.ProcessDone {
		return false
	}
	rp := e.mgr.FindProcess(inv.step, domain.ProcessReceivingChain)
	if rp == nil {
		return false
	}
	// A terminal destination process is settled by waitForDestination.
	return rp.Status.IsTerminal() || rp.Substatus == domain.SubstatusWaitDestinationTransaction ||
		rp.Status == domain.ProcessPending
}

func (e *StepExecutor) newInvocation(ctx context.Context, step *domain.Step) (*invocation, error) {
	chains := e.provider.deps.Chains
	fromChain, err := chains.ChainByID(ctx, step.Action.FromChainID)
	if err != nil {
		return nil, fmt.Errorf("failed to get source chain %d: %w", step.Action.FromChainID, err)
	}
	toChain, err := chains.ChainByID(ctx, step.Action.ToChainID)
	if err != nil {
		return nil, fmt.Errorf("failed to get destination chain %d: %w", step.Action.ToChainID, err)
	}

	inv := &invocation{
		step:      step,
		fromChain: fromChain,
		toChain:   toChain,
		bridge:    fromChain.ID != toChain.ID,
		phase:     domain.ProcessSwap,
	}
	if inv.bridge {
		inv.phase = domain.ProcessCrossChain
	}
	inv.current = inv.phase
	return inv, nil
}

// executeSource runs allowance, materialization, submission and the wait for
// the source-chain receipt.
func (e *StepExecutor) executeSource(ctx context.Context, inv *invocation) error {
	step := inv.step
	if err := e.resumePhase(inv); err != nil {
		return err
	}

	existing := e.mgr.FindProcess(step, inv.phase)
	submitted := existing != nil && existing.HasSubmission()
	native := step.Action.FromToken.IsNative()
	relayer := step.IsRelayerStep()

	inv.permit2 = inv.fromChain.SupportsPermit2() &&
		!inv.atomicBatch &&
		!native &&
		!relayer &&
		!e.provider.disableMessageSigning

	if !relayer && !native && !submitted {
		inv.current = domain.ProcessTokenAllowance
		if err := e.checkAllowance(ctx, inv); err != nil {
			return err
		}
	}

	inv.current = inv.phase
	if !submitted {
		if err := e.submit(ctx, inv); err != nil {
			return err
		}
	}
	return e.awaitSource(ctx, inv)
}

// resumePhase clears a FAILED phase process left by an earlier invocation.
// A submission handle is carried over unless the chain already settled it as
// failed. Without one, the quoted transaction is dropped so submission
// re-quotes and compares against the accepted estimate again.
func (e *StepExecutor) resumePhase(inv *invocation) error {
	p := e.mgr.FindProcess(inv.step, inv.phase)
	if p == nil || p.Status != domain.ProcessFailed {
		return nil
	}

	carry := domain.ProcessUpdate{}
	if p.HasSubmission() && !settled(p) {
		carry = domain.ProcessUpdate{
			TxHash:         p.TxHash,
			TxLink:         p.TxLink,
			TaskID:         p.TaskID,
			BatchID:        p.BatchID,
			MultisigTxHash: p.MultisigTxHash,
		}
	}
	if err := e.mgr.RemoveProcess(inv.step, inv.phase); err != nil {
		return err
	}
	if carry.TxHash == "" && carry.TaskID == "" && carry.BatchID == "" {
		e.mgr.ClearTransaction(inv.step)
		return nil
	}

	if _, err := e.mgr.FindOrCreateProcess(inv.step, inv.phase, domain.ProcessPending, inv.fromChain.ID); err != nil {
		return err
	}
	_, err := e.mgr.UpdateProcess(inv.step, inv.phase, domain.ProcessPending, carry)
	return err
}

func settled(p *domain.Process) bool {
	if p.Error == nil {
		return false
	}
	switch p.Error.Code {
	case domain.CodeTransactionFailed, domain.CodeTransactionCanceled:
		return true
	}
	return false
}

// fail records err on the current process and fails the execution.
// Failures already recorded where they happened, and failures caused by the
// caller going away, are returned untouched.
func (e *StepExecutor) fail(ctx context.Context, inv *invocation, err error) error {
	if ctx.Err() != nil {
		return err
	}

	classified := e.provider.classifier.Classify(err)
	step := inv.step
	if step.Execution.Status == domain.ExecutionFailed {
		return classified
	}

	if _, ferr := e.mgr.FindOrCreateProcess(step, inv.current, "", inv.fromChain.ID); ferr != nil {
		return errors.Join(classified, ferr)
	}
	if _, uerr := e.mgr.UpdateProcess(step, inv.current, domain.ProcessFailed, domain.ProcessUpdate{
		Error: classified.ProcessError(),
	}); uerr != nil {
		e.logger.Warn("failed to record failure on process", "step_id", step.ID, "process", inv.current, "err", uerr)
		if _, xerr := e.mgr.UpdateExecution(step, domain.ExecutionFailed, nil); xerr != nil {
			return errors.Join(classified, xerr)
		}
	}

	e.logger.Info("step failed", "step_id", step.ID, "process", inv.current, "code", classified.Code, "err", err)
	return classified
}

func (e *StepExecutor) waitForDestination(ctx context.Context, inv *invocation) (*domain.Step, error) {
	step := inv.step

	if rp := e.mgr.FindProcess(step, domain.ProcessReceivingChain); rp != nil {
		switch rp.Status {
		case domain.ProcessDone:
			if step.Execution.Status == domain.ExecutionDone {
				return step, nil
			}
			return e.mgr.UpdateExecution(step, domain.ExecutionDone, nil)
		case domain.ProcessFailed:
			if err := e.mgr.RemoveProcess(step, domain.ProcessReceivingChain); err != nil {
				return step, err
			}
		}
	}

	source := e.mgr.FindProcess(step, inv.phase)
	if source == nil || source.TxHash == "" {
		return step, e.fail(ctx, inv, domain.NewExecutionError(domain.CodeTransactionNotFound,
			"Source transaction is missing, the destination cannot be tracked.", nil))
	}

	if _, err := e.mgr.FindOrCreateProcess(step, domain.ProcessReceivingChain, domain.ProcessPending, inv.toChain.ID); err != nil {
		return step, err
	}

	req := ports.StatusRequest{
		TxHash:    source.TxHash,
		Bridge:    step.Tool,
		FromChain: inv.fromChain.ID,
		ToChain:   inv.toChain.ID,
	}
	inv.current = domain.ProcessReceivingChain
	step, err := e.provider.watcher.WaitForDestination(ctx, e.provider.deps.Status, e.mgr, step, req, inv.toChain)
	if err != nil {
		return step, e.fail(ctx, inv, err)
	}
	return step, nil
}

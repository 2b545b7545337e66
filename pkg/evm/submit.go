package evm

import (
	"context"
	"fmt"
	"math/big"
	"slices"

	"github.com/aretw0/routeflow/pkg/domain"
	"github.com/aretw0/routeflow/pkg/permit"
	"github.com/aretw0/routeflow/pkg/ports"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const unpreparedMessage = "Unable to prepare transaction."

// submit materializes the step's transaction and hands it to the chain
// through exactly one submission path.
func (e *StepExecutor) submit(ctx context.Context, inv *invocation) error {
	step := inv.step
	if _, err := e.mgr.FindOrCreateProcess(step, inv.phase, domain.ProcessStarted, inv.fromChain.ID); err != nil {
		return err
	}

	if err := e.checkBalance(ctx, inv); err != nil {
		return err
	}
	if err := e.materialize(ctx, inv); err != nil {
		return err
	}

	path := SelectPath(PathInputs{
		AtomicBatch:  inv.atomicBatch,
		RelayerStep:  step.IsRelayerStep(),
		NativePermit: inv.nativePermit != nil,
		Permit2:      inv.permit2,
	})

	var req *domain.TransactionRequest
	if path.Permit != PermitRelayed {
		var err error
		if req, err = e.buildRequest(ctx, inv); err != nil {
			return err
		}
	}

	// User interaction may have elapsed since the first check.
	ok, err := e.checkClient(ctx, inv)
	if err != nil {
		return err
	}
	if !ok {
		return errPaused
	}
	if err := e.requireInteraction(step, inv.phase); err != nil {
		return err
	}

	var update domain.ProcessUpdate
	switch path.Kind {
	case PathBatch:
		update, err = e.submitBatch(ctx, inv, req)
	case PathPermitSigned:
		switch path.Permit {
		case PermitNative:
			update, err = e.submitNativePermit(ctx, inv, req)
		case PermitPermit2:
			update, err = e.submitPermit2(ctx, inv, req)
		case PermitRelayed:
			update, err = e.submitRelayed(ctx, inv)
		default:
			err = fmt.Errorf("unknown permit kind %q", path.Permit)
		}
	case PathPlain:
		update, err = e.send(ctx, inv, req)
	default:
		err = fmt.Errorf("unknown submission path %q", path.Kind)
	}
	if err != nil {
		return err
	}

	if _, err := e.mgr.UpdateProcess(step, inv.phase, domain.ProcessPending, update); err != nil {
		return err
	}
	e.logger.Info("step submitted", "step_id", step.ID, "path", path.String(),
		"tx_hash", update.TxHash, "task_id", update.TaskID, "batch_id", update.BatchID)
	return nil
}

// materialize fetches a concrete transaction when the step has none and
// commits it after comparing it with the accepted quote.
func (e *StepExecutor) materialize(ctx context.Context, inv *invocation) error {
	step := inv.step
	relayer := step.IsRelayerStep()

	if !prepared(step) {
		quotes := e.provider.deps.Quotes
		var (
			updated *domain.Step
			err     error
		)
		if relayer {
			updated, err = quotes.GetRelayerQuote(ctx, step)
		} else {
			updated, err = quotes.GetStepTransaction(ctx, step)
		}
		if err != nil {
			return fmt.Errorf("failed to get step transaction: %w", err)
		}

		var accept AcceptFunc
		if e.allowInteraction() && e.hooks.AcceptExchangeRateUpdateHook != nil {
			accept = e.hooks.AcceptExchangeRateUpdateHook
		}
		accepted, err := e.provider.comparator.Compare(ctx, step, updated, accept)
		if err != nil {
			return err
		}
		e.mgr.ApplyQuote(step, accepted)
		if _, err := e.mgr.UpdateExecution(step, domain.ExecutionPending, nil); err != nil {
			return err
		}
	}

	if !prepared(step) {
		return domain.NewExecutionError(domain.CodeTransactionUnprepared, unpreparedMessage, nil)
	}
	return nil
}

func prepared(step *domain.Step) bool {
	if step.IsRelayerStep() {
		return step.Permit.Nonce != "" && step.Permit.Deadline != ""
	}
	return step.TransactionRequest != nil && len(step.TransactionRequest.Data) > 0
}

// buildRequest assembles the final call parameters from the quoted request.
func (e *StepExecutor) buildRequest(ctx context.Context, inv *invocation) (*domain.TransactionRequest, error) {
	req := *inv.step.TransactionRequest
	req.ChainID = inv.fromChain.ID
	req.From = inv.account
	if req.To == (common.Address{}) {
		return nil, domain.NewExecutionError(domain.CodeTransactionUnprepared, unpreparedMessage, nil)
	}

	if e.wallet.LocalAccount() {
		tip, err := e.provider.deps.Reader.SuggestGasTipCap(ctx, inv.fromChain.ID)
		if err != nil {
			e.logger.Debug("keeping quoted priority fee", "chain_id", inv.fromChain.ID, "err", err)
		} else {
			req.MaxPriorityFeePerGas = (*hexutil.Big)(tip)
		}
	}

	if hook := e.hooks.UpdateTransactionRequestHook; hook != nil {
		customized, err := hook(ctx, &req)
		if err != nil {
			return nil, fmt.Errorf("transaction request hook: %w", err)
		}
		if customized != nil {
			req = *customized
		}
	}
	return &req, nil
}

func (e *StepExecutor) send(ctx context.Context, inv *invocation, req *domain.TransactionRequest) (domain.ProcessUpdate, error) {
	hash, err := e.wallet.SendTransaction(ctx, req)
	if err != nil {
		return domain.ProcessUpdate{}, err
	}
	return domain.ProcessUpdate{
		TxHash: hash.Hex(),
		TxLink: inv.fromChain.TxLink(hash.Hex()),
	}, nil
}

func (e *StepExecutor) submitBatch(ctx context.Context, inv *invocation, req *domain.TransactionRequest) (domain.ProcessUpdate, error) {
	calls := append(slices.Clone(inv.queued), ports.Call{
		From:  inv.account,
		To:    req.To,
		Data:  req.Data,
		Value: req.Value.ToInt(),
	})
	id, err := e.wallet.SendCalls(ctx, inv.account, inv.fromChain.ID, calls)
	if err != nil {
		return domain.ProcessUpdate{}, err
	}
	return domain.ProcessUpdate{BatchID: id}, nil
}

func (e *StepExecutor) submitNativePermit(ctx context.Context, inv *invocation, req *domain.TransactionRequest) (domain.ProcessUpdate, error) {
	data, err := nativePermitCalldata(inv.nativePermit, req.Data)
	if err != nil {
		return domain.ProcessUpdate{}, err
	}
	e.redirect(ctx, inv, req, data)
	return e.send(ctx, inv, req)
}

func (e *StepExecutor) submitPermit2(ctx context.Context, inv *invocation, req *domain.TransactionRequest) (domain.ProcessUpdate, error) {
	step := inv.step
	chain := inv.fromChain

	amount, err := parseAmount(step.Action.FromAmount)
	if err != nil {
		return domain.ProcessUpdate{}, err
	}
	nonce, err := e.nextPermit2Nonce(ctx, chain, inv.account)
	if err != nil {
		return domain.ProcessUpdate{}, err
	}
	transfer := permit.TransferFrom{
		Permitted: permit.TokenPermissions{Token: step.Action.FromToken.Address, Amount: amount},
		Spender:   chain.Permit2Proxy,
		Nonce:     nonce,
		Deadline:  e.deadline(),
	}
	sig, err := e.signPermit(ctx, inv, transfer, nil)
	if err != nil {
		return domain.ProcessUpdate{}, err
	}

	data, err := permit2Calldata(transfer, sig, req.Data)
	if err != nil {
		return domain.ProcessUpdate{}, err
	}
	e.redirect(ctx, inv, req, data)
	return e.send(ctx, inv, req)
}

func (e *StepExecutor) submitRelayed(ctx context.Context, inv *invocation) (domain.ProcessUpdate, error) {
	step := inv.step
	relayer := e.provider.deps.Relayer
	if relayer == nil {
		return domain.ProcessUpdate{}, domain.NewExecutionError(domain.CodeProviderUnavailable, "No relayer is configured.", nil)
	}

	amount, err := parseAmount(step.Action.FromAmount)
	if err != nil {
		return domain.ProcessUpdate{}, err
	}
	nonce, err := parseAmount(step.Permit.Nonce)
	if err != nil {
		return domain.ProcessUpdate{}, err
	}
	deadline, err := parseAmount(step.Permit.Deadline)
	if err != nil {
		return domain.ProcessUpdate{}, err
	}
	transfer := permit.TransferFrom{
		Permitted: permit.TokenPermissions{Token: step.Action.FromToken.Address, Amount: amount},
		Spender:   step.Permit.Spender,
		Nonce:     nonce,
		Deadline:  deadline,
	}

	td, sig, err := e.buildAndSignPermit(ctx, inv, transfer, witnessFromDomain(step.Permit.Witness))
	if err != nil {
		return domain.ProcessUpdate{}, err
	}

	taskID, err := relayer.RelayTransaction(ctx, ports.RelayRequest{
		Step:      step,
		TypedData: []ports.SignedTypedData{{TypedData: *td, Signature: sig}},
	})
	if err != nil {
		return domain.ProcessUpdate{}, fmt.Errorf("failed to relay transaction: %w", err)
	}
	return domain.ProcessUpdate{TaskID: taskID}, nil
}

func (e *StepExecutor) signPermit(ctx context.Context, inv *invocation, transfer permit.TransferFrom, witness *permit.Witness) (hexutil.Bytes, error) {
	_, sig, err := e.buildAndSignPermit(ctx, inv, transfer, witness)
	return sig, err
}

// buildAndSignPermit signs a Permit2 transfer under its own PERMIT process.
func (e *StepExecutor) buildAndSignPermit(ctx context.Context, inv *invocation, transfer permit.TransferFrom, witness *permit.Witness) (*apitypes.TypedData, hexutil.Bytes, error) {
	step := inv.step
	chain := inv.fromChain
	if chain.Permit2 == (common.Address{}) {
		return nil, nil, domain.NewExecutionError(domain.CodeValidationError,
			fmt.Sprintf("Permit2 is not available on %s.", chain.Name), nil)
	}

	td, err := permit.NewBuilder(chain.Permit2, chain.ID).Transfer(transfer, witness)
	if err != nil {
		return nil, nil, err
	}

	if p := e.mgr.FindProcess(step, domain.ProcessPermit); p != nil && p.Status.IsTerminal() {
		if err := e.mgr.RemoveProcess(step, domain.ProcessPermit); err != nil {
			return nil, nil, err
		}
	}
	if _, err := e.mgr.FindOrCreateProcess(step, domain.ProcessPermit, domain.ProcessActionRequired, chain.ID); err != nil {
		return nil, nil, err
	}
	inv.current = domain.ProcessPermit

	sig, err := e.signTypedData(ctx, inv.account, td)
	if err != nil {
		return nil, nil, err
	}
	if _, err := e.mgr.UpdateProcess(step, domain.ProcessPermit, domain.ProcessDone, domain.ProcessUpdate{}); err != nil {
		return nil, nil, err
	}
	inv.current = inv.phase
	return td, sig, nil
}

// redirect points req at the permit proxy and re-estimates its gas.
func (e *StepExecutor) redirect(ctx context.Context, inv *invocation, req *domain.TransactionRequest, data []byte) {
	req.To = inv.fromChain.Permit2Proxy
	req.Data = data

	gas, err := e.wallet.EstimateGas(ctx, ports.Call{
		From:  req.From,
		To:    req.To,
		Data:  req.Data,
		Value: req.Value.ToInt(),
	})
	if err == nil {
		limit := hexutil.Uint64(gas)
		req.GasLimit = &limit
		return
	}

	e.logger.Debug("gas estimation failed for proxied call", "step_id", inv.step.ID, "err", err)
	if req.GasLimit != nil {
		limit := *req.GasLimit + permitGasBuffer
		req.GasLimit = &limit
	}
}

// awaitSource waits for the phase submission and closes the phase.
func (e *StepExecutor) awaitSource(ctx context.Context, inv *invocation) error {
	step := inv.step
	p := e.mgr.FindProcess(step, inv.phase)
	if p == nil {
		return fmt.Errorf("step %s, process %s: %w", step.ID, inv.phase, domain.ErrProcessNotFound)
	}

	w := e.provider.watcher
	var (
		receipt *domain.TxReceipt
		err     error
	)
	switch {
	case p.Status == domain.ProcessDone:
		return e.completeSameChain(inv)
	case p.BatchID != "":
		receipt, err = w.WaitForBatch(ctx, e.wallet, p.BatchID)
	case p.TaskID != "":
		if e.provider.deps.Relayer == nil {
			return domain.NewExecutionError(domain.CodeProviderUnavailable, "No relayer is configured.", nil)
		}
		receipt, err = w.WaitForRelayed(ctx, e.provider.deps.Relayer, p.TaskID)
	case p.TxHash != "":
		receipt, err = w.WaitForReceipt(ctx, e.provider.deps.Reader, inv.fromChain.ID, common.HexToHash(p.TxHash),
			e.onReplaced(inv, inv.phase))
	default:
		return domain.NewExecutionError(domain.CodeTransactionUnprepared, unpreparedMessage, nil)
	}
	if err != nil {
		return err
	}

	if _, err := e.mgr.UpdateProcess(step, inv.phase, domain.ProcessDone, domain.ProcessUpdate{
		TxHash: receipt.TxHash,
		TxLink: inv.fromChain.TxLink(receipt.TxHash),
	}); err != nil {
		return err
	}
	e.logger.Debug("source transaction final", "step_id", step.ID, "tx_hash", receipt.TxHash)
	return e.completeSameChain(inv)
}

// completeSameChain finishes the step when no bridge leg follows.
func (e *StepExecutor) completeSameChain(inv *invocation) error {
	if inv.bridge || inv.step.Execution.Status == domain.ExecutionDone {
		return nil
	}
	step := inv.step
	toToken := step.Action.ToToken
	_, err := e.mgr.UpdateExecution(step, domain.ExecutionDone, &domain.Receipt{
		FromAmount: step.Action.FromAmount,
		ToAmount:   step.Estimate.ToAmount,
		ToToken:    &toToken,
	})
	return err
}

// checkBalance fails early when the wallet cannot cover the step's input.
func (e *StepExecutor) checkBalance(ctx context.Context, inv *invocation) error {
	step := inv.step
	token := step.Action.FromToken
	required, err := parseAmount(step.Action.FromAmount)
	if err != nil {
		return err
	}

	var balance *big.Int
	if token.IsNative() {
		balance, err = e.provider.deps.Reader.BalanceAt(ctx, inv.fromChain.ID, inv.account)
	} else {
		balance, err = tokenReader{e: e, chainID: inv.fromChain.ID, token: token.Address}.balanceOf(ctx, inv.account)
	}
	if err != nil {
		return fmt.Errorf("failed to read balance: %w", err)
	}
	if balance.Cmp(required) >= 0 {
		return nil
	}

	return domain.NewExecutionError(domain.CodeBalanceError, fmt.Sprintf(
		"Your %s balance is too low, you try to transfer %s %s, but your wallet only holds %s %s. No funds have been sent.",
		token.Symbol,
		formatUnits(required, token.Decimals), token.Symbol,
		formatUnits(balance, token.Decimals), token.Symbol,
	), nil)
}

package status_test

import (
	"testing"
	"time"

	"github.com/aretw0/routeflow/pkg/domain"
	"github.com/aretw0/routeflow/pkg/status"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	calls int
	last  *domain.Route
}

func (r *recorder) hook(route *domain.Route) {
	r.calls++
	r.last = route
}

func newManager(t *testing.T) (*status.Manager, *domain.Step, *recorder, *recorder) {
	t.Helper()
	step := &domain.Step{ID: "step-1"}
	route := &domain.Route{ID: "route-1", Steps: []*domain.Step{step}}
	clock := time.Unix(1700000000, 0)
	external, internal := &recorder{}, &recorder{}
	m := status.New(route,
		status.WithUpdateHook(external.hook),
		status.WithInternalUpdate(internal.hook),
		status.WithClock(func() time.Time {
			clock = clock.Add(time.Second)
			return clock
		}),
	)
	return m, step, external, internal
}

func TestInitExecution_Idempotent(t *testing.T) {
	m, step, external, internal := newManager(t)

	first := m.InitExecution(step)
	require.NotNil(t, first)
	assert.Equal(t, domain.ExecutionPending, first.Status)
	assert.Empty(t, first.Process)

	_, err := m.FindOrCreateProcess(step, domain.ProcessSwap, "", 1)
	require.NoError(t, err)

	second := m.InitExecution(step)
	assert.Same(t, first, second)
	assert.Equal(t, domain.ExecutionPending, second.Status)
	assert.Len(t, second.Process, 1)

	assert.Equal(t, 3, external.calls)
	assert.Equal(t, 3, internal.calls)
	assert.Same(t, m.Route(), external.last, "hooks receive the whole route")
}

func TestInitExecution_ResumesFailed(t *testing.T) {
	m, step, _, _ := newManager(t)
	m.InitExecution(step)
	_, err := m.FindOrCreateProcess(step, domain.ProcessSwap, "", 1)
	require.NoError(t, err)
	_, err = m.UpdateProcess(step, domain.ProcessSwap, domain.ProcessFailed, domain.ProcessUpdate{
		Error: &domain.ProcessError{Code: domain.CodeTransactionFailed, Message: "reverted"},
	})
	require.NoError(t, err)
	require.Equal(t, domain.ExecutionFailed, step.Execution.Status)

	exec := m.InitExecution(step)
	assert.Equal(t, domain.ExecutionPending, exec.Status)
	require.Len(t, exec.Process, 1)
	assert.Equal(t, domain.ProcessFailed, exec.Process[0].Status, "processes are left untouched")
}

func TestUpdateExecution(t *testing.T) {
	m, step, _, _ := newManager(t)

	_, err := m.UpdateExecution(step, domain.ExecutionDone, nil)
	assert.ErrorIs(t, err, domain.ErrExecutionNotInitialized)

	m.InitExecution(step)
	token := domain.Token{Symbol: "USDC", ChainID: 10}
	_, err = m.UpdateExecution(step, domain.ExecutionDone, &domain.Receipt{
		FromAmount: "100",
		ToAmount:   "99",
		ToToken:    &token,
	})
	require.NoError(t, err)
	assert.Equal(t, domain.ExecutionDone, step.Execution.Status)
	assert.NotNil(t, step.Execution.DoneAt)
	assert.Equal(t, "99", step.Execution.ToAmount)
	assert.Equal(t, "USDC", step.Execution.ToToken.Symbol)
}

func TestFindOrCreateProcess(t *testing.T) {
	m, step, external, _ := newManager(t)

	_, err := m.FindOrCreateProcess(step, domain.ProcessSwap, "", 1)
	assert.ErrorIs(t, err, domain.ErrExecutionNotInitialized)

	m.InitExecution(step)
	p, err := m.FindOrCreateProcess(step, domain.ProcessSwap, "", 1)
	require.NoError(t, err)
	assert.Equal(t, domain.ProcessStarted, p.Status)
	assert.Equal(t, "Preparing swap transaction.", p.Message)
	assert.Equal(t, uint64(1), p.ChainID)
	assert.False(t, p.StartedAt.IsZero())

	calls := external.calls
	same, err := m.FindOrCreateProcess(step, domain.ProcessSwap, domain.ProcessStarted, 1)
	require.NoError(t, err)
	assert.Same(t, p, same)
	assert.Equal(t, calls, external.calls, "no propagation without change")

	_, err = m.FindOrCreateProcess(step, domain.ProcessSwap, domain.ProcessActionRequired, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.ProcessActionRequired, p.Status)
	assert.Equal(t, calls+1, external.calls)
}

func TestFindOrCreateProcess_Uniqueness(t *testing.T) {
	m, step, _, _ := newManager(t)
	m.InitExecution(step)

	for i := 0; i < 3; i++ {
		_, err := m.FindOrCreateProcess(step, domain.ProcessTokenAllowance, "", 1)
		require.NoError(t, err)
		_, err = m.UpdateProcess(step, domain.ProcessTokenAllowance, domain.ProcessPending, domain.ProcessUpdate{})
		require.NoError(t, err)
		_, err = m.FindOrCreateProcess(step, domain.ProcessCrossChain, domain.ProcessPending, 1)
		require.NoError(t, err)
	}

	count := map[domain.ProcessType]int{}
	for _, p := range step.Execution.Process {
		count[p.Type]++
	}
	assert.Equal(t, 1, count[domain.ProcessTokenAllowance])
	assert.Equal(t, 1, count[domain.ProcessCrossChain])
}

func TestUpdateProcess_SideEffects(t *testing.T) {
	tests := []struct {
		name       string
		status     domain.ProcessStatus
		wantExec   domain.ExecutionStatus
		wantDoneAt bool
		check      func(t *testing.T, p *domain.Process)
	}{
		{"pending", domain.ProcessPending, domain.ExecutionPending, false, func(t *testing.T, p *domain.Process) {
			assert.NotNil(t, p.PendingAt)
		}},
		{"action required", domain.ProcessActionRequired, domain.ExecutionActionRequired, false, func(t *testing.T, p *domain.Process) {
			assert.NotNil(t, p.ActionRequiredAt)
			assert.Equal(t, "Please sign the transaction.", p.Message)
		}},
		{"done", domain.ProcessDone, domain.ExecutionPending, true, nil},
		{"cancelled", domain.ProcessCancelled, domain.ExecutionPending, true, nil},
		{"failed", domain.ProcessFailed, domain.ExecutionFailed, true, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, step, _, _ := newManager(t)
			m.InitExecution(step)
			_, err := m.FindOrCreateProcess(step, domain.ProcessCrossChain, "", 1)
			require.NoError(t, err)

			p, err := m.UpdateProcess(step, domain.ProcessCrossChain, tt.status, domain.ProcessUpdate{})
			require.NoError(t, err)
			assert.Equal(t, tt.status, p.Status)
			assert.Equal(t, tt.wantExec, step.Execution.Status)
			assert.Equal(t, tt.wantDoneAt, p.DoneAt != nil)
			if tt.check != nil {
				tt.check(t, p)
			}
		})
	}
}

func TestUpdateProcess_MergesUpdateAfterDefaults(t *testing.T) {
	m, step, _, _ := newManager(t)
	m.InitExecution(step)
	_, err := m.FindOrCreateProcess(step, domain.ProcessSwap, "", 1)
	require.NoError(t, err)

	custom := time.Unix(42, 0)
	p, err := m.UpdateProcess(step, domain.ProcessSwap, domain.ProcessDone, domain.ProcessUpdate{
		DoneAt:  &custom,
		TxHash:  "0xabc",
		TxLink:  "https://explorer/tx/0xabc",
		Message: "custom",
	})
	require.NoError(t, err)
	assert.Equal(t, custom, *p.DoneAt)
	assert.Equal(t, "0xabc", p.TxHash)
	assert.Equal(t, "custom", p.Message)
}

func TestUpdateProcess_FailedCarriesMessage(t *testing.T) {
	m, step, _, _ := newManager(t)
	m.InitExecution(step)
	_, err := m.FindOrCreateProcess(step, domain.ProcessTransaction, "", 1)
	require.NoError(t, err)

	p, err := m.UpdateProcess(step, domain.ProcessTransaction, domain.ProcessFailed, domain.ProcessUpdate{
		Error: &domain.ProcessError{Code: domain.CodeWalletChangedDuringExecution, Message: "wallet changed"},
	})
	require.NoError(t, err)
	assert.Equal(t, "wallet changed", p.Message)
	assert.Equal(t, domain.CodeWalletChangedDuringExecution, p.Error.Code)
}

func TestUpdateProcess_Errors(t *testing.T) {
	m, step, _, _ := newManager(t)

	_, err := m.UpdateProcess(step, domain.ProcessSwap, domain.ProcessDone, domain.ProcessUpdate{})
	assert.ErrorIs(t, err, domain.ErrExecutionNotInitialized)

	m.InitExecution(step)
	_, err = m.UpdateProcess(step, domain.ProcessSwap, domain.ProcessDone, domain.ProcessUpdate{})
	assert.ErrorIs(t, err, domain.ErrProcessNotFound)
}

func TestUpdateProcess_TerminalIsSticky(t *testing.T) {
	for _, terminal := range []domain.ProcessStatus{domain.ProcessDone, domain.ProcessFailed, domain.ProcessCancelled} {
		t.Run(string(terminal), func(t *testing.T) {
			m, step, _, _ := newManager(t)
			m.InitExecution(step)
			_, err := m.FindOrCreateProcess(step, domain.ProcessSwap, "", 1)
			require.NoError(t, err)
			_, err = m.UpdateProcess(step, domain.ProcessSwap, terminal, domain.ProcessUpdate{})
			require.NoError(t, err)

			for _, next := range []domain.ProcessStatus{domain.ProcessPending, domain.ProcessStarted, domain.ProcessActionRequired} {
				_, err = m.UpdateProcess(step, domain.ProcessSwap, next, domain.ProcessUpdate{})
				assert.ErrorIs(t, err, domain.ErrProcessTerminal)
				p, err := m.FindOrCreateProcess(step, domain.ProcessSwap, next, 1)
				require.NoError(t, err)
				assert.Equal(t, terminal, p.Status)
			}
		})
	}
}

func TestUpdateProcess_DoneFirstOrdering(t *testing.T) {
	m, step, _, _ := newManager(t)
	m.InitExecution(step)

	types := []domain.ProcessType{
		domain.ProcessSwitchChain,
		domain.ProcessTokenAllowance,
		domain.ProcessPermit,
		domain.ProcessCrossChain,
	}
	for _, pt := range types {
		_, err := m.FindOrCreateProcess(step, pt, "", 1)
		require.NoError(t, err)
	}

	_, err := m.UpdateProcess(step, domain.ProcessPermit, domain.ProcessDone, domain.ProcessUpdate{})
	require.NoError(t, err)
	_, err = m.UpdateProcess(step, domain.ProcessTokenAllowance, domain.ProcessDone, domain.ProcessUpdate{})
	require.NoError(t, err)

	var got []domain.ProcessType
	for _, p := range step.Execution.Process {
		got = append(got, p.Type)
	}
	assert.Equal(t, []domain.ProcessType{
		domain.ProcessPermit,
		domain.ProcessTokenAllowance,
		domain.ProcessSwitchChain,
		domain.ProcessCrossChain,
	}, got)
}

func TestRemoveProcess(t *testing.T) {
	m, step, external, _ := newManager(t)

	assert.ErrorIs(t, m.RemoveProcess(step, domain.ProcessSwap), domain.ErrExecutionNotInitialized)

	m.InitExecution(step)
	_, err := m.FindOrCreateProcess(step, domain.ProcessTokenAllowance, "", 1)
	require.NoError(t, err)
	_, err = m.FindOrCreateProcess(step, domain.ProcessSwap, "", 1)
	require.NoError(t, err)

	calls := external.calls
	require.NoError(t, m.RemoveProcess(step, domain.ProcessReceivingChain), "absent type is a no-op")
	assert.Equal(t, calls, external.calls)
	assert.Len(t, step.Execution.Process, 2)

	require.NoError(t, m.RemoveProcess(step, domain.ProcessTokenAllowance))
	require.Len(t, step.Execution.Process, 1)
	assert.Equal(t, domain.ProcessSwap, step.Execution.Process[0].Type)
	assert.Nil(t, m.FindProcess(step, domain.ProcessTokenAllowance))
}

func TestSetUpdatesEnabled(t *testing.T) {
	m, step, external, internal := newManager(t)
	m.SetUpdatesEnabled(false)
	assert.False(t, m.UpdatesEnabled())

	m.InitExecution(step)
	_, err := m.FindOrCreateProcess(step, domain.ProcessSwap, "", 1)
	require.NoError(t, err)
	_, err = m.UpdateProcess(step, domain.ProcessSwap, domain.ProcessPending, domain.ProcessUpdate{TxHash: "0x1"})
	require.NoError(t, err)

	assert.Zero(t, external.calls)
	assert.Zero(t, internal.calls)
	assert.Equal(t, "0x1", step.Execution.Process[0].TxHash, "state is still mutated")

	m.SetUpdatesEnabled(true)
	_, err = m.UpdateExecution(step, domain.ExecutionDone, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, external.calls)
}

func TestApplyQuote(t *testing.T) {
	m, step, _, _ := newManager(t)
	m.InitExecution(step)
	exec := step.Execution

	updated := &domain.Step{
		ID:                 "step-1",
		Tool:               "hop",
		Estimate:           domain.Estimate{ToAmountMin: "95"},
		TransactionRequest: &domain.TransactionRequest{ChainID: 1},
	}
	m.ApplyQuote(step, updated)
	assert.Equal(t, "hop", step.Tool)
	assert.Equal(t, "95", step.Estimate.ToAmountMin)
	assert.NotNil(t, step.TransactionRequest)
	assert.Same(t, exec, step.Execution)
}

func TestClearTransaction(t *testing.T) {
	t.Run("Plain", func(t *testing.T) {
		m, step, external, _ := newManager(t)
		step.TransactionRequest = &domain.TransactionRequest{ChainID: 1}
		m.ClearTransaction(step)
		assert.Nil(t, step.TransactionRequest)
		assert.Equal(t, 1, external.calls)
	})

	t.Run("Relayer", func(t *testing.T) {
		m, step, _, _ := newManager(t)
		step.Permit = &domain.PermitPayload{Nonce: "7", Deadline: "1700000600"}
		m.ClearTransaction(step)
		require.NotNil(t, step.Permit)
		assert.True(t, step.IsRelayerStep())
		assert.Empty(t, step.Permit.Nonce)
		assert.Empty(t, step.Permit.Deadline)
	})
}

func TestCarryAmount(t *testing.T) {
	m, step, external, internal := newManager(t)
	step.Action.FromAmount = "1000"

	m.CarryAmount(step, "950")
	assert.Equal(t, "950", step.Action.FromAmount)
	assert.Equal(t, 1, external.calls)
	assert.Equal(t, 1, internal.calls)
	assert.Equal(t, "950", internal.last.Steps[0].Action.FromAmount)

	m.CarryAmount(step, "950")
	m.CarryAmount(step, "")
	assert.Equal(t, "950", step.Action.FromAmount)
	assert.Equal(t, 1, external.calls, "unchanged amounts are not propagated")

	m.SetUpdatesEnabled(false)
	m.CarryAmount(step, "900")
	assert.Equal(t, "900", step.Action.FromAmount)
	assert.Equal(t, 1, external.calls)
}

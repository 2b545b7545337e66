package status

import (
	"fmt"
	"log/slog"
	"slices"
	"sync/atomic"
	"time"

	"github.com/aretw0/routeflow/internal/logging"
	"github.com/aretw0/routeflow/pkg/domain"
)

// Manager is the single authority over the Execution and Process records of one route.
// Every mutation goes through it so that the propagation hooks see every change.
//
// Manager is not safe for concurrent mutation: callers serialize invocations per route.
// SetUpdatesEnabled may be called from any goroutine.
type Manager struct {
	route *domain.Route

	updatesEnabled atomic.Bool
	updateHook     func(*domain.Route)
	internalUpdate func(*domain.Route)

	now    func() time.Time
	logger *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithUpdateHook sets the caller-supplied route update hook.
func WithUpdateHook(fn func(*domain.Route)) Option {
	return func(m *Manager) {
		m.updateHook = fn
	}
}

// WithInternalUpdate sets the internal route update callback (persistence, fan-out).
func WithInternalUpdate(fn func(*domain.Route)) Option {
	return func(m *Manager) {
		m.internalUpdate = fn
	}
}

// WithClock overrides the time source used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) {
		m.now = now
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// New creates a Manager bound to route. The route is referenced, not copied.
func New(route *domain.Route, opts ...Option) *Manager {
	m := &Manager{
		route:  route,
		now:    time.Now,
		logger: logging.NewNop(),
	}
	m.updatesEnabled.Store(true)
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Route returns the managed route.
func (m *Manager) Route() *domain.Route {
	return m.route
}

// SetUpdatesEnabled toggles propagation. Mutations still happen while disabled.
func (m *Manager) SetUpdatesEnabled(enabled bool) {
	m.updatesEnabled.Store(enabled)
}

// UpdatesEnabled reports whether mutations are propagated.
func (m *Manager) UpdatesEnabled() bool {
	return m.updatesEnabled.Load()
}

// InitExecution creates the step's Execution on first call and flips a FAILED
// one back to PENDING so the step can be resumed. Processes are left untouched.
func (m *Manager) InitExecution(step *domain.Step) *domain.Execution {
	if step.Execution == nil {
		step.Execution = &domain.Execution{
			Status:    domain.ExecutionPending,
			Process:   []*domain.Process{},
			StartedAt: m.now(),
		}
	} else if step.Execution.Status == domain.ExecutionFailed {
		step.Execution.Status = domain.ExecutionPending
		m.logger.Debug("resuming failed execution", "route_id", m.route.ID, "step_id", step.ID)
	}
	m.propagate()
	return step.Execution
}

// UpdateExecution sets the execution status and merges the receipt, if any.
func (m *Manager) UpdateExecution(step *domain.Step, status domain.ExecutionStatus, receipt *domain.Receipt) (*domain.Step, error) {
	if step.Execution == nil {
		return nil, fmt.Errorf("step %s: %w", step.ID, domain.ErrExecutionNotInitialized)
	}
	step.Execution.Status = status
	if status == domain.ExecutionDone {
		t := m.now()
		step.Execution.DoneAt = &t
	}
	step.Execution.MergeReceipt(receipt)

	m.logger.Debug("execution updated", "route_id", m.route.ID, "step_id", step.ID, "status", status)
	m.propagate()
	return step, nil
}

// FindProcess returns the process of the given type, or nil.
func (m *Manager) FindProcess(step *domain.Step, t domain.ProcessType) *domain.Process {
	return step.Execution.FindProcess(t)
}

// FindOrCreateProcess looks a process up by type, creating it when absent.
// An empty status means STARTED on creation and "unchanged" on lookup.
// Terminal processes are returned as they are.
func (m *Manager) FindOrCreateProcess(step *domain.Step, t domain.ProcessType, status domain.ProcessStatus, chainID uint64) (*domain.Process, error) {
	if step.Execution == nil {
		return nil, fmt.Errorf("step %s: %w", step.ID, domain.ErrExecutionNotInitialized)
	}

	if p := step.Execution.FindProcess(t); p != nil {
		if status != "" && status != p.Status && !p.Status.IsTerminal() {
			p.Status = status
			if msg := domain.ProcessMessage(t, status); msg != "" {
				p.Message = msg
			}
			m.propagate()
		}
		return p, nil
	}

	if status == "" {
		status = domain.ProcessStarted
	}
	p := &domain.Process{
		Type:      t,
		Status:    status,
		Message:   domain.ProcessMessage(t, status),
		ChainID:   chainID,
		StartedAt: m.now(),
	}
	step.Execution.Process = append(step.Execution.Process, p)

	m.logger.Debug("process created", "route_id", m.route.ID, "step_id", step.ID, "process", t, "status", status)
	m.propagate()
	return p, nil
}

// UpdateProcess moves a process to status and merges the update fields.
//
// CANCELLED and DONE stamp DoneAt. FAILED stamps DoneAt and fails the Execution.
// PENDING and ACTION_REQUIRED are mirrored onto the Execution. Update fields are
// merged after these defaults. A terminal process only accepts its own status.
func (m *Manager) UpdateProcess(step *domain.Step, t domain.ProcessType, status domain.ProcessStatus, update domain.ProcessUpdate) (*domain.Process, error) {
	if step.Execution == nil {
		return nil, fmt.Errorf("step %s: %w", step.ID, domain.ErrExecutionNotInitialized)
	}
	p := step.Execution.FindProcess(t)
	if p == nil {
		return nil, fmt.Errorf("step %s, process %s: %w", step.ID, t, domain.ErrProcessNotFound)
	}
	if p.Status.IsTerminal() && p.Status != status {
		return nil, fmt.Errorf("step %s, process %s is %s: %w", step.ID, t, p.Status, domain.ErrProcessTerminal)
	}

	now := m.now()
	switch status {
	case domain.ProcessCancelled, domain.ProcessDone:
		p.DoneAt = &now
	case domain.ProcessFailed:
		p.DoneAt = &now
		step.Execution.Status = domain.ExecutionFailed
	case domain.ProcessPending:
		step.Execution.Status = domain.ExecutionPending
		p.PendingAt = &now
	case domain.ProcessActionRequired:
		step.Execution.Status = domain.ExecutionActionRequired
		p.ActionRequiredAt = &now
	}

	p.Status = status
	if msg := domain.ProcessMessage(t, status); msg != "" {
		p.Message = msg
	} else if status == domain.ProcessFailed && update.Error != nil {
		p.Message = update.Error.Message
	}
	update.Apply(p)

	slices.SortStableFunc(step.Execution.Process, doneFirst)

	m.logger.Debug("process updated", "route_id", m.route.ID, "step_id", step.ID, "process", t, "status", status)
	m.propagate()
	return p, nil
}

// RemoveProcess deletes the process of the given type. Removing an absent type is a no-op.
func (m *Manager) RemoveProcess(step *domain.Step, t domain.ProcessType) error {
	if step.Execution == nil {
		return fmt.Errorf("step %s: %w", step.ID, domain.ErrExecutionNotInitialized)
	}
	idx := slices.IndexFunc(step.Execution.Process, func(p *domain.Process) bool { return p.Type == t })
	if idx < 0 {
		return nil
	}
	step.Execution.Process = slices.Delete(step.Execution.Process, idx, idx+1)

	m.logger.Debug("process removed", "route_id", m.route.ID, "step_id", step.ID, "process", t)
	m.propagate()
	return nil
}

// ApplyQuote commits a refreshed quote onto step, keeping its Execution.
func (m *Manager) ApplyQuote(step *domain.Step, updated *domain.Step) *domain.Step {
	step.Tool = updated.Tool
	step.Action = updated.Action
	step.Estimate = updated.Estimate
	if updated.TransactionRequest != nil {
		step.TransactionRequest = updated.TransactionRequest
	}
	if updated.Permit != nil {
		step.Permit = updated.Permit
	}
	m.propagate()
	return step
}

// ClearTransaction drops the materialized transaction of step so the next
// submission fetches and compares a fresh quote. A relayer step keeps its
// permit marker but loses the signed nonce and deadline.
func (m *Manager) ClearTransaction(step *domain.Step) *domain.Step {
	step.TransactionRequest = nil
	if step.Permit != nil {
		permit := *step.Permit
		permit.Nonce, permit.Deadline = "", ""
		step.Permit = &permit
	}
	m.logger.Debug("transaction cleared", "route_id", m.route.ID, "step_id", step.ID)
	m.propagate()
	return step
}

// CarryAmount sets the amount step spends, usually what the previous step
// delivered. Nothing is propagated when the amount is unchanged.
func (m *Manager) CarryAmount(step *domain.Step, amount string) *domain.Step {
	if amount == "" || step.Action.FromAmount == amount {
		return step
	}
	step.Action.FromAmount = amount
	m.logger.Debug("amount carried", "route_id", m.route.ID, "step_id", step.ID, "from_amount", amount)
	m.propagate()
	return step
}

func (m *Manager) propagate() {
	if !m.updatesEnabled.Load() {
		return
	}
	if m.updateHook != nil {
		m.updateHook(m.route)
	}
	if m.internalUpdate != nil {
		m.internalUpdate(m.route)
	}
}

func doneFirst(a, b *domain.Process) int {
	aDone := a.Status == domain.ProcessDone
	bDone := b.Status == domain.ProcessDone
	switch {
	case aDone && !bDone:
		return -1
	case !aDone && bDone:
		return 1
	}
	return 0
}

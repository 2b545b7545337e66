package domain

import "time"

// ExecutionStatus is the coarse status of a step's execution.
type ExecutionStatus string

const (
	ExecutionPending        ExecutionStatus = "PENDING"
	ExecutionActionRequired ExecutionStatus = "ACTION_REQUIRED"
	ExecutionFailed         ExecutionStatus = "FAILED"
	ExecutionDone           ExecutionStatus = "DONE"
)

// ProcessType identifies a tracked phase of a step. It is unique within a step.
type ProcessType string

const (
	ProcessTokenAllowance ProcessType = "TOKEN_ALLOWANCE"
	ProcessSwitchChain    ProcessType = "SWITCH_CHAIN"
	ProcessPermit         ProcessType = "PERMIT"
	ProcessSwap           ProcessType = "SWAP"
	ProcessCrossChain     ProcessType = "CROSS_CHAIN"
	ProcessReceivingChain ProcessType = "RECEIVING_CHAIN"
	ProcessTransaction    ProcessType = "TRANSACTION"
)

// ProcessStatus is the status of a single Process.
type ProcessStatus string

const (
	ProcessStarted        ProcessStatus = "STARTED"
	ProcessActionRequired ProcessStatus = "ACTION_REQUIRED"
	ProcessPending        ProcessStatus = "PENDING"
	ProcessFailed         ProcessStatus = "FAILED"
	ProcessDone           ProcessStatus = "DONE"
	ProcessCancelled      ProcessStatus = "CANCELLED"
)

// IsTerminal reports whether no further status change is allowed in the same phase.
func (s ProcessStatus) IsTerminal() bool {
	return s == ProcessDone || s == ProcessFailed || s == ProcessCancelled
}

// Substatus refines a RECEIVING_CHAIN process while a bridge is in flight.
type Substatus string

const (
	SubstatusWaitSourceConfirmations    Substatus = "WAIT_SOURCE_CONFIRMATIONS"
	SubstatusWaitDestinationTransaction Substatus = "WAIT_DESTINATION_TRANSACTION"
	SubstatusBridgeNotAvailable         Substatus = "BRIDGE_NOT_AVAILABLE"
	SubstatusChainNotAvailable          Substatus = "CHAIN_NOT_AVAILABLE"
	SubstatusRefundInProgress           Substatus = "REFUND_IN_PROGRESS"
	SubstatusUnknownError               Substatus = "UNKNOWN_ERROR"
	SubstatusCompleted                  Substatus = "COMPLETED"
	SubstatusPartial                    Substatus = "PARTIAL"
	SubstatusRefunded                   Substatus = "REFUNDED"
)

// ProcessError is the structured failure recorded on a FAILED process.
type ProcessError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	HTML    string    `json:"htmlMessage,omitempty"`
}

// Process is a tracked sub-phase of a step.
type Process struct {
	Type             ProcessType   `json:"type"`
	Status           ProcessStatus `json:"status"`
	Message          string        `json:"message,omitempty"`
	ChainID          uint64        `json:"chainId,omitempty"`
	StartedAt        time.Time     `json:"startedAt"`
	DoneAt           *time.Time    `json:"doneAt,omitempty"`
	PendingAt        *time.Time    `json:"pendingAt,omitempty"`
	ActionRequiredAt *time.Time    `json:"actionRequiredAt,omitempty"`
	TxHash           string        `json:"txHash,omitempty"`
	TxLink           string        `json:"txLink,omitempty"`
	// TaskID is the relayer handle of a relayed submission.
	TaskID string `json:"taskId,omitempty"`
	// BatchID is the wallet handle of an atomic batch submission.
	BatchID          string        `json:"batchId,omitempty"`
	MultisigTxHash   string        `json:"multisigTxHash,omitempty"`
	Substatus        Substatus     `json:"substatus,omitempty"`
	SubstatusMessage string        `json:"substatusMessage,omitempty"`
	Error            *ProcessError `json:"error,omitempty"`
}

// HasSubmission reports whether a submission handle is already recorded.
func (p *Process) HasSubmission() bool {
	return p.TxHash != "" || p.TaskID != "" || p.BatchID != ""
}

// ProcessUpdate enumerates every optional field an update may set.
// Zero values mean "leave unchanged".
type ProcessUpdate struct {
	DoneAt           *time.Time
	TxHash           string
	TxLink           string
	TaskID           string
	BatchID          string
	MultisigTxHash   string
	Substatus        Substatus
	SubstatusMessage string
	Message          string
	Error            *ProcessError
}

// Apply merges the non-zero fields of u into p.
func (u ProcessUpdate) Apply(p *Process) {
	if u.DoneAt != nil {
		t := *u.DoneAt
		p.DoneAt = &t
	}
	if u.TxHash != "" {
		p.TxHash = u.TxHash
	}
	if u.TxLink != "" {
		p.TxLink = u.TxLink
	}
	if u.TaskID != "" {
		p.TaskID = u.TaskID
	}
	if u.BatchID != "" {
		p.BatchID = u.BatchID
	}
	if u.MultisigTxHash != "" {
		p.MultisigTxHash = u.MultisigTxHash
	}
	if u.Substatus != "" {
		p.Substatus = u.Substatus
	}
	if u.SubstatusMessage != "" {
		p.SubstatusMessage = u.SubstatusMessage
	}
	if u.Message != "" {
		p.Message = u.Message
	}
	if u.Error != nil {
		e := *u.Error
		p.Error = &e
	}
}

// Receipt holds the amounts and costs observed when a step completes.
// It is merged into Execution and never stored on its own.
type Receipt struct {
	FromAmount string
	ToAmount   string
	ToToken    *Token
	GasCosts   []GasCost
	FeeCosts   []FeeCost
}

// Execution is the resumable execution record of a step.
type Execution struct {
	Status     ExecutionStatus `json:"status"`
	Process    []*Process      `json:"process"`
	StartedAt  time.Time       `json:"startedAt"`
	DoneAt     *time.Time      `json:"doneAt,omitempty"`
	FromAmount string          `json:"fromAmount,omitempty"`
	ToAmount   string          `json:"toAmount,omitempty"`
	ToToken    *Token          `json:"toToken,omitempty"`
	GasCosts   []GasCost       `json:"gasCosts,omitempty"`
	FeeCosts   []FeeCost       `json:"feeCosts,omitempty"`
}

// FindProcess returns the process of the given type, or nil.
func (e *Execution) FindProcess(t ProcessType) *Process {
	if e == nil {
		return nil
	}
	for _, p := range e.Process {
		if p.Type == t {
			return p
		}
	}
	return nil
}

// LastProcess returns the most recently appended process, or nil.
func (e *Execution) LastProcess() *Process {
	if e == nil || len(e.Process) == 0 {
		return nil
	}
	return e.Process[len(e.Process)-1]
}

// MergeReceipt copies the non-empty receipt fields onto the execution.
func (e *Execution) MergeReceipt(r *Receipt) {
	if r == nil {
		return
	}
	if r.FromAmount != "" {
		e.FromAmount = r.FromAmount
	}
	if r.ToAmount != "" {
		e.ToAmount = r.ToAmount
	}
	if r.ToToken != nil {
		tok := *r.ToToken
		e.ToToken = &tok
	}
	if len(r.GasCosts) > 0 {
		e.GasCosts = append([]GasCost(nil), r.GasCosts...)
	}
	if len(r.FeeCosts) > 0 {
		e.FeeCosts = append([]FeeCost(nil), r.FeeCosts...)
	}
}

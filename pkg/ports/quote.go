package ports

import (
	"context"

	"github.com/aretw0/routeflow/pkg/domain"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// QuoteService materializes concrete transactions for steps.
type QuoteService interface {
	// GetStepTransaction returns the step refreshed with a TransactionRequest.
	GetStepTransaction(ctx context.Context, step *domain.Step) (*domain.Step, error)
	// GetRelayerQuote returns the step refreshed for the relayer-assisted permit flow.
	GetRelayerQuote(ctx context.Context, step *domain.Step) (*domain.Step, error)
}

// SignedTypedData is a typed-data message together with its signature.
type SignedTypedData struct {
	TypedData apitypes.TypedData `json:"typedData"`
	Signature hexutil.Bytes      `json:"signature"`
}

// RelayRequest is the payload handed to a relayer.
type RelayRequest struct {
	Step      *domain.Step      `json:"step"`
	TypedData []SignedTypedData `json:"typedData"`
}

// RelayTaskStatus values reported by a relayer.
const (
	RelayStatusPending = "PENDING"
	RelayStatusDone    = "DONE"
	RelayStatusFailed  = "FAILED"
)

// RelayStatus is the state of a relayed task.
type RelayStatus struct {
	Status  string `json:"status"`
	TxHash  string `json:"transactionHash,omitempty"`
	Message string `json:"message,omitempty"`
}

// Relayer submits signed payloads on the user's behalf.
type Relayer interface {
	RelayTransaction(ctx context.Context, req RelayRequest) (taskID string, err error)
	RelayedTransactionStatus(ctx context.Context, taskID string) (*RelayStatus, error)
}

// Transfer status values reported by the status service.
const (
	TransferNotFound = "NOT_FOUND"
	TransferInvalid  = "INVALID"
	TransferPending  = "PENDING"
	TransferDone     = "DONE"
	TransferFailed   = "FAILED"
)

// StatusRequest identifies a bridge transfer by its source transaction.
type StatusRequest struct {
	TxHash    string `json:"txHash"`
	Bridge    string `json:"bridge,omitempty"`
	FromChain uint64 `json:"fromChain"`
	ToChain   uint64 `json:"toChain"`
}

// TransferLeg describes one side of a bridge transfer.
type TransferLeg struct {
	TxHash    string           `json:"txHash"`
	TxLink    string           `json:"txLink"`
	ChainID   uint64           `json:"chainId"`
	Amount    string           `json:"amount,omitempty"`
	Token     *domain.Token    `json:"token,omitempty"`
	GasAmount string           `json:"gasAmount,omitempty"`
	GasToken  *domain.Token    `json:"gasToken,omitempty"`
	GasCosts  []domain.GasCost `json:"gasCosts,omitempty"`
}

// TransferStatus is the status of a bridge transfer.
type TransferStatus struct {
	Status           string           `json:"status"`
	Substatus        domain.Substatus `json:"substatus,omitempty"`
	SubstatusMessage string           `json:"substatusMessage,omitempty"`
	Sending          *TransferLeg     `json:"sending,omitempty"`
	Receiving        *TransferLeg     `json:"receiving,omitempty"`
}

// StatusService reports the progress of cross-chain transfers.
type StatusService interface {
	GetStatus(ctx context.Context, req StatusRequest) (*TransferStatus, error)
}

// ChainRegistry resolves chain metadata.
type ChainRegistry interface {
	ChainByID(ctx context.Context, id uint64) (*domain.Chain, error)
	Chains(ctx context.Context) ([]*domain.Chain, error)
}

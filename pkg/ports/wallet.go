package ports

import (
	"context"
	"errors"
	"math/big"

	"github.com/aretw0/routeflow/pkg/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// ErrTxNotFound is returned by Reader lookups for unknown or not-yet-mined transactions.
var ErrTxNotFound = errors.New("transaction not found")

// Call is a single contract call, used for gas estimation and atomic batches.
type Call struct {
	From  common.Address `json:"from,omitempty"`
	To    common.Address `json:"to"`
	Data  hexutil.Bytes  `json:"data,omitempty"`
	Value *big.Int       `json:"value,omitempty"`
}

// CallsStatus is the wallet-reported status of an atomic batch (EIP-5792).
type CallsStatus struct {
	// Status follows EIP-5792: 1xx pending, 200 confirmed, 4xx/5xx/6xx failed.
	Status   int                `json:"status"`
	Receipts []domain.TxReceipt `json:"receipts,omitempty"`
}

// Wallet is the signing side of the transport. It never exposes keys.
type Wallet interface {
	// Accounts returns the addresses the wallet currently signs for; the first is active.
	Accounts(ctx context.Context) ([]common.Address, error)
	// ChainID returns the chain the wallet is currently attached to.
	ChainID(ctx context.Context) (uint64, error)
	// Capabilities returns the raw EIP-5792 capability map for the account and chain.
	Capabilities(ctx context.Context, account common.Address, chainID uint64) (map[string]any, error)
	EstimateGas(ctx context.Context, call Call) (uint64, error)
	SendTransaction(ctx context.Context, req *domain.TransactionRequest) (common.Hash, error)
	// SendCalls submits calls as one atomic batch and returns the batch identifier.
	SendCalls(ctx context.Context, account common.Address, chainID uint64, calls []Call) (string, error)
	CallsStatus(ctx context.Context, batchID string) (*CallsStatus, error)
	SignTypedData(ctx context.Context, account common.Address, data apitypes.TypedData) (hexutil.Bytes, error)
	// LocalAccount reports whether signing happens in-process, in which case fees are recomputed live.
	LocalAccount() bool
}

// TxInfo is the subset of a transaction needed to detect replacements.
type TxInfo struct {
	Hash  common.Hash
	From  common.Address
	To    *common.Address
	Nonce uint64
	Value *big.Int
	Input []byte
}

// Reader is read-only access to a chain through a public RPC.
type Reader interface {
	Call(ctx context.Context, chainID uint64, to common.Address, data []byte) ([]byte, error)
	BalanceAt(ctx context.Context, chainID uint64, account common.Address) (*big.Int, error)
	SuggestGasTipCap(ctx context.Context, chainID uint64) (*big.Int, error)
	BlockNumber(ctx context.Context, chainID uint64) (uint64, error)
	// NonceAt returns the latest confirmed nonce of the account.
	NonceAt(ctx context.Context, chainID uint64, account common.Address) (uint64, error)
	// TransactionByHash returns ErrTxNotFound if the node does not know the hash.
	TransactionByHash(ctx context.Context, chainID uint64, hash common.Hash) (*TxInfo, error)
	// TransactionReceipt returns ErrTxNotFound while the transaction is not mined.
	TransactionReceipt(ctx context.Context, chainID uint64, hash common.Hash) (*domain.TxReceipt, error)
	// FindTransaction scans blocks from fromBlock to head for a transaction
	// from the account with the given nonce. Returns ErrTxNotFound if none.
	FindTransaction(ctx context.Context, chainID uint64, from common.Address, nonce uint64, fromBlock uint64) (*TxInfo, error)
}

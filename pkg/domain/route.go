package domain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// StepType identifies the kind of action a step performs.
type StepType string

const (
	StepTypeSwap     StepType = "swap"
	StepTypeCross    StepType = "cross"
	StepTypeLifi     StepType = "lifi"
	StepTypeProtocol StepType = "protocol"
)

// Token describes an asset on a specific chain.
// The zero address denotes the chain's native token.
type Token struct {
	Address  common.Address `json:"address" yaml:"address"`
	ChainID  uint64         `json:"chainId" yaml:"chain_id"`
	Symbol   string         `json:"symbol" yaml:"symbol"`
	Decimals int            `json:"decimals" yaml:"decimals"`
	Name     string         `json:"name,omitempty" yaml:"name,omitempty"`
}

// IsNative reports whether the token is the chain's native currency.
func (t Token) IsNative() bool {
	return t.Address == (common.Address{})
}

// GasCost is a gas expense estimated or paid for a step.
type GasCost struct {
	Type   string `json:"type"`
	Amount string `json:"amount"`
	Limit  string `json:"limit,omitempty"`
	Token  Token  `json:"token"`
}

// FeeCost is a protocol or integrator fee charged by a step.
type FeeCost struct {
	Name     string `json:"name"`
	Amount   string `json:"amount"`
	Included bool   `json:"included"`
	Token    Token  `json:"token"`
}

// Action is the immutable intent of a step: what moves from where to where.
type Action struct {
	FromChainID uint64 `json:"fromChainId"`
	ToChainID   uint64 `json:"toChainId"`
	FromToken   Token  `json:"fromToken"`
	ToToken     Token  `json:"toToken"`
	FromAmount  string `json:"fromAmount"`
	// Addresses stay as strings: provider selection happens on their format.
	FromAddress string `json:"fromAddress"`
	ToAddress   string `json:"toAddress,omitempty"`
	// Slippage is a fraction (0.005 == 0.5%). Zero means the default threshold.
	Slippage float64 `json:"slippage,omitempty"`
}

// IsCrossChain reports whether the action bridges between two chains.
func (a Action) IsCrossChain() bool {
	return a.FromChainID != a.ToChainID
}

// Estimate is the quoted outcome of a step.
type Estimate struct {
	Tool              string         `json:"tool"`
	ApprovalAddress   common.Address `json:"approvalAddress"`
	FromAmount        string         `json:"fromAmount"`
	ToAmount          string         `json:"toAmount"`
	ToAmountMin       string         `json:"toAmountMin"`
	GasCosts          []GasCost      `json:"gasCosts,omitempty"`
	FeeCosts          []FeeCost      `json:"feeCosts,omitempty"`
	ExecutionDuration float64        `json:"executionDuration,omitempty"`
}

// TransactionRequest is a concrete on-chain call prepared by the quote service.
type TransactionRequest struct {
	ChainID              uint64          `json:"chainId"`
	From                 common.Address  `json:"from"`
	To                   common.Address  `json:"to"`
	Data                 hexutil.Bytes   `json:"data"`
	Value                *hexutil.Big    `json:"value,omitempty"`
	GasLimit             *hexutil.Uint64 `json:"gasLimit,omitempty"`
	GasPrice             *hexutil.Big    `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
}

// TypedField is one member of an EIP-712 struct type.
type TypedField struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Witness is business data bound into a Permit2 signature.
type Witness struct {
	// TypeName is the struct type of the witness value, e.g. "Order".
	TypeName string `json:"typeName"`
	// Types holds TypeName and any nested struct types it references.
	Types map[string][]TypedField `json:"types"`
	Value map[string]any          `json:"value"`
}

// PermitPayload is the relayer-provided data for a signature-transfer step.
type PermitPayload struct {
	Spender  common.Address `json:"spender"`
	Nonce    string         `json:"nonce"`
	Deadline string         `json:"deadline"`
	Witness  *Witness       `json:"witness,omitempty"`
}

// Step is one atomic action in a Route plus its execution state.
type Step struct {
	ID                 string              `json:"id"`
	Type               StepType            `json:"type"`
	Tool               string              `json:"tool"`
	Action             Action              `json:"action"`
	Estimate           Estimate            `json:"estimate"`
	TransactionRequest *TransactionRequest `json:"transactionRequest,omitempty"`
	// Permit marks a relayer-assisted signature-transfer step.
	Permit    *PermitPayload `json:"permit,omitempty"`
	Execution *Execution     `json:"execution,omitempty"`
}

// IsRelayerStep reports whether the step is submitted through a relayer.
func (s *Step) IsRelayerStep() bool {
	return s.Permit != nil
}

// Route is an ordered plan of steps accomplishing a transfer or swap.
type Route struct {
	ID          string  `json:"id"`
	FromChainID uint64  `json:"fromChainId"`
	ToChainID   uint64  `json:"toChainId"`
	FromAddress string  `json:"fromAddress"`
	ToAddress   string  `json:"toAddress"`
	FromAmount  string  `json:"fromAmount"`
	ToAmount    string  `json:"toAmount"`
	Steps       []*Step `json:"steps"`
	// Envelope holds the sealed form of the route when a storage middleware
	// encrypts it. It is empty on routes handed to the executor.
	Envelope string `json:"envelope,omitempty"`
}

// Step returns the step with the given id, or nil.
func (r *Route) Step(id string) *Step {
	for _, s := range r.Steps {
		if s.ID == id {
			return s
		}
	}
	return nil
}

// Status summarises the route from its steps' executions.
// A route with no started step is PENDING.
func (r *Route) Status() ExecutionStatus {
	done := 0
	for _, s := range r.Steps {
		if s.Execution == nil {
			continue
		}
		switch s.Execution.Status {
		case ExecutionFailed:
			return ExecutionFailed
		case ExecutionActionRequired:
			return ExecutionActionRequired
		case ExecutionDone:
			done++
		}
	}
	if len(r.Steps) > 0 && done == len(r.Steps) {
		return ExecutionDone
	}
	return ExecutionPending
}

// ParseAmount parses a base-unit decimal (or 0x-prefixed hex) amount.
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 0)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", s)
	}
	return v, nil
}

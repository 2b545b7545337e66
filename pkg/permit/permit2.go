package permit

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Primary type labels of the Permit2 signature-transfer messages.
const (
	PrimaryTypeTransfer             = "PermitTransferFrom"
	PrimaryTypeBatchTransfer        = "PermitBatchTransferFrom"
	PrimaryTypeWitnessTransfer      = "PermitWitnessTransferFrom"
	PrimaryTypeBatchWitnessTransfer = "PermitBatchWitnessTransferFrom"

	domainName = "Permit2"
)

// MaxUint256 is the largest value representable by a uint256.
var MaxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Limits bound the values accepted into a permit message.
type Limits struct {
	MaxDeadline *big.Int
	MaxNonce    *big.Int
	MaxAmount   *big.Int
}

// DefaultLimits are the Permit2 signature-transfer bounds.
func DefaultLimits() Limits {
	return Limits{MaxDeadline: MaxUint256, MaxNonce: MaxUint256, MaxAmount: MaxUint256}
}

// TokenPermissions is a token and the amount the spender may transfer.
type TokenPermissions struct {
	Token  common.Address
	Amount *big.Int
}

// TransferFrom is a single-token signature transfer.
type TransferFrom struct {
	Permitted TokenPermissions
	Spender   common.Address
	Nonce     *big.Int
	Deadline  *big.Int
}

// BatchTransferFrom is a multi-token signature transfer.
type BatchTransferFrom struct {
	Permitted []TokenPermissions
	Spender   common.Address
	Nonce     *big.Int
	Deadline  *big.Int
}

// Witness is extra typed data bound into the signature.
type Witness struct {
	// TypeName is the struct type of Value, e.g. "ExactInputSingle".
	TypeName string
	// Types defines TypeName and every struct type it references.
	Types apitypes.Types
	Value map[string]interface{}
}

// Builder produces Permit2 typed data for one Permit2 deployment.
type Builder struct {
	permit2 common.Address
	chainID uint64
	limits  Limits
}

// NewBuilder returns a Builder for the Permit2 contract on chainID.
func NewBuilder(permit2 common.Address, chainID uint64) *Builder {
	return &Builder{permit2: permit2, chainID: chainID, limits: DefaultLimits()}
}

// WithLimits returns a copy of b using the given bounds.
func (b *Builder) WithLimits(l Limits) *Builder {
	out := *b
	out.limits = l
	return &out
}

// PrimaryType selects the message label for the batch and witness combination.
func PrimaryType(batch, witness bool) string {
	switch {
	case batch && witness:
		return PrimaryTypeBatchWitnessTransfer
	case batch:
		return PrimaryTypeBatchTransfer
	case witness:
		return PrimaryTypeWitnessTransfer
	default:
		return PrimaryTypeTransfer
	}
}

// Transfer builds the typed data of a single-token transfer, with an optional witness.
func (b *Builder) Transfer(p TransferFrom, witness *Witness) (*apitypes.TypedData, error) {
	if err := b.validate(p.Deadline, p.Nonce, p.Permitted); err != nil {
		return nil, err
	}
	message := map[string]interface{}{
		"permitted": tokenPermissions(p.Permitted),
		"spender":   p.Spender.Hex(),
		"nonce":     p.Nonce.String(),
		"deadline":  p.Deadline.String(),
	}
	return b.typedData(false, "TokenPermissions", message, witness)
}

// BatchTransfer builds the typed data of a multi-token transfer, with an optional witness.
func (b *Builder) BatchTransfer(p BatchTransferFrom, witness *Witness) (*apitypes.TypedData, error) {
	if len(p.Permitted) == 0 {
		return nil, fmt.Errorf("batch permit requires at least one token")
	}
	if err := b.validate(p.Deadline, p.Nonce, p.Permitted...); err != nil {
		return nil, err
	}
	permitted := make([]interface{}, len(p.Permitted))
	for i, tp := range p.Permitted {
		permitted[i] = tokenPermissions(tp)
	}
	message := map[string]interface{}{
		"permitted": permitted,
		"spender":   p.Spender.Hex(),
		"nonce":     p.Nonce.String(),
		"deadline":  p.Deadline.String(),
	}
	return b.typedData(true, "TokenPermissions[]", message, witness)
}

func (b *Builder) typedData(batch bool, permittedType string, message map[string]interface{}, witness *Witness) (*apitypes.TypedData, error) {
	primary := PrimaryType(batch, witness != nil)
	fields := []apitypes.Type{
		{Name: "permitted", Type: permittedType},
		{Name: "spender", Type: "address"},
		{Name: "nonce", Type: "uint256"},
		{Name: "deadline", Type: "uint256"},
	}

	types := apitypes.Types{
		"EIP712Domain": {
			{Name: "name", Type: "string"},
			{Name: "chainId", Type: "uint256"},
			{Name: "verifyingContract", Type: "address"},
		},
		"TokenPermissions": {
			{Name: "token", Type: "address"},
			{Name: "amount", Type: "uint256"},
		},
	}

	if witness != nil {
		if witness.TypeName == "" {
			return nil, fmt.Errorf("witness type name is required")
		}
		if _, ok := witness.Types[witness.TypeName]; !ok {
			return nil, fmt.Errorf("witness types do not define %q", witness.TypeName)
		}
		for name, def := range witness.Types {
			if _, clash := types[name]; clash {
				return nil, fmt.Errorf("witness type %q collides with a Permit2 type", name)
			}
			types[name] = def
		}
		fields = append(fields, apitypes.Type{Name: "witness", Type: witness.TypeName})
		message["witness"] = witness.Value
	}
	types[primary] = fields

	return &apitypes.TypedData{
		Types:       types,
		PrimaryType: primary,
		Domain: apitypes.TypedDataDomain{
			Name:              domainName,
			ChainId:           math.NewHexOrDecimal256(int64(b.chainID)),
			VerifyingContract: b.permit2.Hex(),
		},
		Message: message,
	}, nil
}

func (b *Builder) validate(deadline, nonce *big.Int, permitted ...TokenPermissions) error {
	if err := checkRange("deadline", deadline, b.limits.MaxDeadline, ErrDeadlineOutOfRange); err != nil {
		return err
	}
	if err := checkRange("nonce", nonce, b.limits.MaxNonce, ErrNonceOutOfRange); err != nil {
		return err
	}
	for _, tp := range permitted {
		if err := checkRange("amount", tp.Amount, b.limits.MaxAmount, ErrAmountOutOfRange); err != nil {
			return err
		}
	}
	return nil
}

func checkRange(field string, v, max *big.Int, sentinel error) error {
	if v == nil || v.Sign() < 0 || v.Cmp(max) > 0 {
		return &ValidationError{Field: field, Value: v, Max: max, Err: sentinel}
	}
	return nil
}

func tokenPermissions(tp TokenPermissions) map[string]interface{} {
	return map[string]interface{}{
		"token":  tp.Token.Hex(),
		"amount": tp.Amount.String(),
	}
}

// Hash returns the EIP-712 digest to be signed for td.
func Hash(td *apitypes.TypedData) (common.Hash, error) {
	digest, _, err := apitypes.TypedDataAndHash(*td)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash typed data: %w", err)
	}
	return common.BytesToHash(digest), nil
}

// DomainSeparator returns the EIP-712 domain hash of td.
func DomainSeparator(td *apitypes.TypedData) (common.Hash, error) {
	h, err := td.HashStruct("EIP712Domain", td.Domain.Map())
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash domain: %w", err)
	}
	return common.BytesToHash(h), nil
}

package permit

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// PrimaryTypeNative is the EIP-2612 message label.
const PrimaryTypeNative = "Permit"

// NativeDomain identifies an EIP-2612 token's signing domain.
type NativeDomain struct {
	Name    string
	Version string
	ChainID uint64
	Token   common.Address
}

// NativePermit is an EIP-2612 approval by signature.
type NativePermit struct {
	Owner    common.Address
	Spender  common.Address
	Value    *big.Int
	Nonce    *big.Int
	Deadline *big.Int
}

// Native builds the EIP-2612 typed data for a token's own permit function.
func Native(d NativeDomain, p NativePermit) (*apitypes.TypedData, error) {
	limits := DefaultLimits()
	if err := checkRange("deadline", p.Deadline, limits.MaxDeadline, ErrDeadlineOutOfRange); err != nil {
		return nil, err
	}
	if err := checkRange("nonce", p.Nonce, limits.MaxNonce, ErrNonceOutOfRange); err != nil {
		return nil, err
	}
	if err := checkRange("amount", p.Value, limits.MaxAmount, ErrAmountOutOfRange); err != nil {
		return nil, err
	}

	domainFields := []apitypes.Type{{Name: "name", Type: "string"}}
	if d.Version != "" {
		domainFields = append(domainFields, apitypes.Type{Name: "version", Type: "string"})
	}
	domainFields = append(domainFields,
		apitypes.Type{Name: "chainId", Type: "uint256"},
		apitypes.Type{Name: "verifyingContract", Type: "address"},
	)

	return &apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": domainFields,
			PrimaryTypeNative: {
				{Name: "owner", Type: "address"},
				{Name: "spender", Type: "address"},
				{Name: "value", Type: "uint256"},
				{Name: "nonce", Type: "uint256"},
				{Name: "deadline", Type: "uint256"},
			},
		},
		PrimaryType: PrimaryTypeNative,
		Domain: apitypes.TypedDataDomain{
			Name:              d.Name,
			Version:           d.Version,
			ChainId:           math.NewHexOrDecimal256(int64(d.ChainID)),
			VerifyingContract: d.Token.Hex(),
		},
		Message: map[string]interface{}{
			"owner":    p.Owner.Hex(),
			"spender":  p.Spender.Hex(),
			"value":    p.Value.String(),
			"nonce":    p.Nonce.String(),
			"deadline": p.Deadline.String(),
		},
	}, nil
}

package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/aretw0/routeflow/pkg/domain"
	"github.com/aretw0/routeflow/pkg/permit"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/shopspring/decimal"
)

// tokenReader reads ERC-20 state through a chain Reader.
type tokenReader struct {
	e       *StepExecutor
	chainID uint64
	token   common.Address
}

func (t tokenReader) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := erc20ABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", method, err)
	}
	out, err := t.e.provider.deps.Reader.Call(ctx, t.chainID, t.token, data)
	if err != nil {
		return nil, fmt.Errorf("%s on %s: %w", method, t.token.Hex(), err)
	}
	values, err := erc20ABI.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("failed to decode %s: %d values", method, len(values))
	}
	return values, nil
}

func (t tokenReader) uint256(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	values, err := t.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: unexpected %T", method, values[0])
	}
	return v, nil
}

func (t tokenReader) str(ctx context.Context, method string) (string, error) {
	values, err := t.call(ctx, method)
	if err != nil {
		return "", err
	}
	s, ok := values[0].(string)
	if !ok {
		return "", fmt.Errorf("%s: unexpected %T", method, values[0])
	}
	return s, nil
}

func (t tokenReader) allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return t.uint256(ctx, "allowance", owner, spender)
}

func (t tokenReader) balanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return t.uint256(ctx, "balanceOf", owner)
}

func (t tokenReader) domainSeparator(ctx context.Context) (common.Hash, error) {
	values, err := t.call(ctx, "DOMAIN_SEPARATOR")
	if err != nil {
		return common.Hash{}, err
	}
	b, ok := values[0].([32]byte)
	if !ok {
		return common.Hash{}, fmt.Errorf("DOMAIN_SEPARATOR: unexpected %T", values[0])
	}
	return common.Hash(b), nil
}

// nativePermit returns the EIP-2612 typed data for the token, or nil when the
// token does not expose a permit whose domain can be reproduced.
func (t tokenReader) nativePermit(ctx context.Context, owner, spender common.Address, value, deadline *big.Int) (*apitypes.TypedData, error) {
	separator, err := t.domainSeparator(ctx)
	if err != nil {
		return nil, nil
	}
	name, err := t.str(ctx, "name")
	if err != nil {
		return nil, nil
	}
	nonce, err := t.uint256(ctx, "nonces", owner)
	if err != nil {
		return nil, nil
	}

	versions := []string{"1", ""}
	if v, err := t.str(ctx, "version"); err == nil {
		versions = []string{v}
	}

	for _, version := range versions {
		td, err := permit.Native(
			permit.NativeDomain{Name: name, Version: version, ChainID: t.chainID, Token: t.token},
			permit.NativePermit{Owner: owner, Spender: spender, Value: value, Nonce: nonce, Deadline: deadline},
		)
		if err != nil {
			return nil, err
		}
		candidate, err := permit.DomainSeparator(td)
		if err != nil {
			return nil, err
		}
		if candidate == separator {
			return td, nil
		}
	}
	return nil, nil
}

func approveCalldata(spender common.Address, amount *big.Int) ([]byte, error) {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to encode approve: %w", err)
	}
	return data, nil
}

// formatUnits renders a base-unit amount with the token's decimals.
func formatUnits(v *big.Int, decimals int) string {
	return decimal.NewFromBigInt(v, -int32(decimals)).String()
}

func parseAmount(s string) (*big.Int, error) {
	v, err := domain.ParseAmount(s)
	if err != nil {
		return nil, domain.NewExecutionError(domain.CodeValidationError, fmt.Sprintf("invalid amount %q", s), err)
	}
	return v, nil
}

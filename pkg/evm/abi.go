package evm

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20JSON = `[
	{"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
	{"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"account","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"name","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"version","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
	{"type":"function","name":"nonces","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"DOMAIN_SEPARATOR","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"bytes32"}]}
]`

const permitProxyJSON = `[
	{"type":"function","name":"callDiamondWithEIP2612Signature","stateMutability":"payable","inputs":[
		{"name":"tokenAddress","type":"address"},
		{"name":"amount","type":"uint256"},
		{"name":"deadline","type":"uint256"},
		{"name":"v","type":"uint8"},
		{"name":"r","type":"bytes32"},
		{"name":"s","type":"bytes32"},
		{"name":"diamondCalldata","type":"bytes"}
	],"outputs":[{"name":"","type":"bytes"}]},
	{"type":"function","name":"callDiamondWithPermit2","stateMutability":"payable","inputs":[
		{"name":"diamondCalldata","type":"bytes"},
		{"name":"permit","type":"tuple","components":[
			{"name":"permitted","type":"tuple","components":[
				{"name":"token","type":"address"},
				{"name":"amount","type":"uint256"}
			]},
			{"name":"nonce","type":"uint256"},
			{"name":"deadline","type":"uint256"}
		]},
		{"name":"signature","type":"bytes"}
	],"outputs":[{"name":"","type":"bytes"}]},
	{"type":"function","name":"nextNonce","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

var (
	erc20ABI       = mustParseABI(erc20JSON)
	permitProxyABI = mustParseABI(permitProxyJSON)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("invalid abi: %v", err))
	}
	return parsed
}

// tokenPermissions mirrors the Permit2 TokenPermissions tuple.
type tokenPermissions struct {
	Token  common.Address
	Amount *big.Int
}

// permitTransferFrom mirrors the Permit2 PermitTransferFrom tuple.
type permitTransferFrom struct {
	Permitted tokenPermissions
	Nonce     *big.Int
	Deadline  *big.Int
}

func unpackBigInt(a abi.ABI, method string, out []byte) (*big.Int, error) {
	values, err := a.Unpack(method, out)
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", method, err)
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("failed to decode %s: %d values", method, len(values))
	}
	v, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("failed to decode %s: unexpected %T", method, values[0])
	}
	return v, nil
}

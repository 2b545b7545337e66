package chains

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFile = `
chains:
  - id: 1
    key: eth
    name: Ethereum
    native_token: {symbol: ETH, decimals: 18}
    permit2: "0x000000000022D473030F116dDEE9F6B43aC78BA3"
    permit2_proxy: "0x4444444444444444444444444444444444444444"
    explorer_urls: ["https://etherscan.io"]
    rpc_urls: ["https://rpc.example"]
  - id: 137
    key: pol
    name: Polygon
    native_token: {symbol: POL, decimals: 18}
    explorer_urls: ["https://polygonscan.com/"]
`

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chains.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testFile), 0o600))

	reg, err := Load(path)
	require.NoError(t, err)
	ctx := context.Background()

	eth, err := reg.ChainByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Ethereum", eth.Name)
	assert.Equal(t, uint64(1), eth.NativeToken.ChainID, "native token inherits the chain id")
	assert.Equal(t, common.HexToAddress("0x4444444444444444444444444444444444444444"), eth.Permit2Proxy)
	assert.True(t, eth.SupportsPermit2())
	assert.Equal(t, "https://etherscan.io/tx/0xabc", eth.TxLink("0xabc"))

	pol, err := reg.ChainByID(ctx, 137)
	require.NoError(t, err)
	assert.False(t, pol.HasPermitProxy())

	_, err = reg.ChainByID(ctx, 56)
	assert.ErrorIs(t, err, ErrUnknownChain)

	all, err := reg.Chains(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, uint64(1), all[0].ID)
	assert.Equal(t, uint64(137), all[1].ID)
}

func TestChainByIDReturnsCopy(t *testing.T) {
	reg, err := Parse([]byte(testFile))
	require.NoError(t, err)

	c, err := reg.ChainByID(context.Background(), 1)
	require.NoError(t, err)
	c.Name = "changed"

	again, err := reg.ChainByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Ethereum", again.Name)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse([]byte("chains:\n  - id: 1\n  - id: 1\n"))
	assert.ErrorContains(t, err, "duplicate chain 1")

	_, err = Parse([]byte("chains:\n  - key: eth\n"))
	assert.ErrorContains(t, err, "chain id is required")

	_, err = Parse([]byte("chains: ["))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	reg := Default()
	all, err := reg.Chains(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, all)

	eth, err := reg.ChainByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3"), eth.Permit2)
	assert.False(t, eth.SupportsPermit2(), "no proxy is configured by default")
}

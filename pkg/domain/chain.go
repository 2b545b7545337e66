package domain

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// Chain is the metadata of an EVM chain needed to execute steps on it.
type Chain struct {
	ID          uint64 `json:"id" yaml:"id"`
	Key         string `json:"key" yaml:"key"`
	Name        string `json:"name" yaml:"name"`
	NativeToken Token  `json:"nativeToken" yaml:"native_token"`
	// Permit2 is the universal signature-transfer contract, zero if unsupported.
	Permit2 common.Address `json:"permit2,omitempty" yaml:"permit2,omitempty"`
	// Permit2Proxy consumes permit signatures and forwards the call to the router.
	Permit2Proxy common.Address `json:"permit2Proxy,omitempty" yaml:"permit2_proxy,omitempty"`
	ExplorerURLs []string       `json:"blockExplorerUrls" yaml:"explorer_urls"`
	RPCURLs      []string       `json:"rpcUrls,omitempty" yaml:"rpc_urls,omitempty"`
}

// SupportsPermit2 reports whether both the Permit2 contract and its proxy are configured.
func (c *Chain) SupportsPermit2() bool {
	return c.Permit2 != (common.Address{}) && c.Permit2Proxy != (common.Address{})
}

// HasPermitProxy reports whether signed permits can be forwarded on this chain.
func (c *Chain) HasPermitProxy() bool {
	return c.Permit2Proxy != (common.Address{})
}

// TxLink builds the explorer link for a transaction hash ("{base}tx/{hash}").
func (c *Chain) TxLink(hash string) string {
	if len(c.ExplorerURLs) == 0 || hash == "" {
		return ""
	}
	base := c.ExplorerURLs[0]
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return base + "tx/" + hash
}

// TxReceipt is the chain-level outcome of a submitted transaction or batch.
type TxReceipt struct {
	TxHash      string `json:"transactionHash"`
	BlockNumber uint64 `json:"blockNumber"`
	Success     bool   `json:"success"`
	GasUsed     uint64 `json:"gasUsed,omitempty"`
}

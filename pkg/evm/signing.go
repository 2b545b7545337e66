package evm

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/aretw0/routeflow/pkg/domain"
	"github.com/aretw0/routeflow/pkg/permit"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

const (
	// permitValidity is how long a permit signature stays usable.
	permitValidity = 30 * time.Minute
	// permitGasBuffer is added to the quoted gas limit when a proxied call cannot be estimated.
	permitGasBuffer = 80_000
)

// signedNativePermit is an EIP-2612 signature ready to be forwarded by the permit proxy.
type signedNativePermit struct {
	Token     common.Address
	Amount    *big.Int
	Deadline  *big.Int
	Signature hexutil.Bytes
}

func (e *StepExecutor) deadline() *big.Int {
	return big.NewInt(e.provider.now().Add(permitValidity).Unix())
}

// signTypedData asks the wallet for a signature. Signatures from in-process
// accounts are checked against the expected signer.
func (e *StepExecutor) signTypedData(ctx context.Context, account common.Address, td *apitypes.TypedData) (hexutil.Bytes, error) {
	sig, err := e.wallet.SignTypedData(ctx, account, *td)
	if err != nil {
		return nil, err
	}
	if e.wallet.LocalAccount() {
		if err := verifySignature(td, sig, account); err != nil {
			return nil, err
		}
	}
	return sig, nil
}

func verifySignature(td *apitypes.TypedData, sig hexutil.Bytes, account common.Address) error {
	hash, err := permit.Hash(td)
	if err != nil {
		return err
	}
	if len(sig) != crypto.SignatureLength {
		return domain.NewExecutionError(domain.CodeSignatureRejected, "Signature has an invalid length.", nil)
	}
	normalized := make([]byte, crypto.SignatureLength)
	copy(normalized, sig)
	if normalized[crypto.RecoveryIDOffset] >= 27 {
		normalized[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(hash.Bytes(), normalized)
	if err != nil {
		return domain.NewExecutionError(domain.CodeSignatureRejected, "Signature could not be recovered.", err)
	}
	if signer := crypto.PubkeyToAddress(*pub); signer != account {
		return domain.NewExecutionError(domain.CodeSignatureRejected,
			fmt.Sprintf("Signature was produced by %s instead of %s.", signer.Hex(), account.Hex()), nil)
	}
	return nil
}

// splitSignature returns the v, r, s components, with v in the 27/28 form ecrecover expects.
func splitSignature(sig []byte) (uint8, [32]byte, [32]byte, error) {
	var r, s [32]byte
	if len(sig) != crypto.SignatureLength {
		return 0, r, s, fmt.Errorf("signature length %d", len(sig))
	}
	copy(r[:], sig[:32])
	copy(s[:], sig[32:64])
	v := sig[crypto.RecoveryIDOffset]
	if v < 27 {
		v += 27
	}
	return v, r, s, nil
}

func nativePermitCalldata(p *signedNativePermit, diamondCalldata []byte) ([]byte, error) {
	v, r, s, err := splitSignature(p.Signature)
	if err != nil {
		return nil, fmt.Errorf("native permit: %w", err)
	}
	data, err := permitProxyABI.Pack("callDiamondWithEIP2612Signature", p.Token, p.Amount, p.Deadline, v, r, s, diamondCalldata)
	if err != nil {
		return nil, fmt.Errorf("failed to encode native permit call: %w", err)
	}
	return data, nil
}

func permit2Calldata(transfer permit.TransferFrom, sig hexutil.Bytes, diamondCalldata []byte) ([]byte, error) {
	data, err := permitProxyABI.Pack("callDiamondWithPermit2", diamondCalldata, permitTransferFrom{
		Permitted: tokenPermissions{
			Token:  transfer.Permitted.Token,
			Amount: transfer.Permitted.Amount,
		},
		Nonce:    transfer.Nonce,
		Deadline: transfer.Deadline,
	}, []byte(sig))
	if err != nil {
		return nil, fmt.Errorf("failed to encode permit2 call: %w", err)
	}
	return data, nil
}

// nextPermit2Nonce reads the proxy's next unused Permit2 nonce for owner.
func (e *StepExecutor) nextPermit2Nonce(ctx context.Context, chain *domain.Chain, owner common.Address) (*big.Int, error) {
	data, err := permitProxyABI.Pack("nextNonce", owner)
	if err != nil {
		return nil, fmt.Errorf("failed to encode nextNonce: %w", err)
	}
	out, err := e.provider.deps.Reader.Call(ctx, chain.ID, chain.Permit2Proxy, data)
	if err != nil {
		return nil, fmt.Errorf("nextNonce on %s: %w", chain.Permit2Proxy.Hex(), err)
	}
	return unpackBigInt(permitProxyABI, "nextNonce", out)
}

// witnessFromDomain converts a relayer-provided witness into builder form.
func witnessFromDomain(w *domain.Witness) *permit.Witness {
	if w == nil {
		return nil
	}
	types := make(apitypes.Types, len(w.Types))
	for name, fields := range w.Types {
		converted := make([]apitypes.Type, 0, len(fields))
		for _, f := range fields {
			converted = append(converted, apitypes.Type{Name: f.Name, Type: f.Type})
		}
		types[name] = converted
	}
	return &permit.Witness{
		TypeName: w.TypeName,
		Types:    types,
		Value:    w.Value,
	}
}

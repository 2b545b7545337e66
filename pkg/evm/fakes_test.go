package evm

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/routeflow/pkg/domain"
	"github.com/aretw0/routeflow/pkg/permit"
	"github.com/aretw0/routeflow/pkg/ports"
	"github.com/aretw0/routeflow/pkg/watcher"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/require"
)

var (
	user        = common.HexToAddress("0x1111111111111111111111111111111111111111")
	router      = common.HexToAddress("0x2222222222222222222222222222222222222222")
	usdc        = common.HexToAddress("0x3333333333333333333333333333333333333333")
	permit2Addr = common.HexToAddress("0x000000000022D473030F116dDEE9F6B43aC78BA3")
	proxyAddr   = common.HexToAddress("0x4444444444444444444444444444444444444444")

	testNow = time.Unix(1_700_000_000, 0)
)

func ethereum() *domain.Chain {
	return &domain.Chain{
		ID:           1,
		Key:          "eth",
		Name:         "Ethereum",
		NativeToken:  domain.Token{ChainID: 1, Symbol: "ETH", Decimals: 18},
		ExplorerURLs: []string{"https://etherscan.io"},
	}
}

func polygon() *domain.Chain {
	return &domain.Chain{
		ID:           137,
		Key:          "pol",
		Name:         "Polygon",
		NativeToken:  domain.Token{ChainID: 137, Symbol: "POL", Decimals: 18},
		ExplorerURLs: []string{"https://polygonscan.com/"},
	}
}

func withPermit2(c *domain.Chain) *domain.Chain {
	c.Permit2 = permit2Addr
	c.Permit2Proxy = proxyAddr
	return c
}

func nativeSwapStep() *domain.Step {
	return &domain.Step{
		ID:   "step-swap",
		Type: domain.StepTypeSwap,
		Tool: "uniswap",
		Action: domain.Action{
			FromChainID: 1,
			ToChainID:   1,
			FromToken:   domain.Token{ChainID: 1, Symbol: "ETH", Decimals: 18},
			ToToken:     domain.Token{Address: usdc, ChainID: 1, Symbol: "USDC", Decimals: 6},
			FromAmount:  "1000",
			FromAddress: user.Hex(),
		},
		Estimate: domain.Estimate{
			Tool:            "uniswap",
			ApprovalAddress: router,
			FromAmount:      "1000",
			ToAmount:        "2000",
			ToAmountMin:     "1990",
		},
		TransactionRequest: &domain.TransactionRequest{
			To:       router,
			Data:     hexutil.Bytes{0xde, 0xad, 0xbe, 0xef},
			Value:    (*hexutil.Big)(big.NewInt(1000)),
			GasLimit: gasLimit(21_000),
		},
	}
}

func tokenBridgeStep() *domain.Step {
	return &domain.Step{
		ID:   "step-bridge",
		Type: domain.StepTypeCross,
		Tool: "stargate",
		Action: domain.Action{
			FromChainID: 1,
			ToChainID:   137,
			FromToken:   domain.Token{Address: usdc, ChainID: 1, Symbol: "USDC", Decimals: 6},
			ToToken:     domain.Token{Address: usdc, ChainID: 137, Symbol: "USDC", Decimals: 6},
			FromAmount:  "1000",
			FromAddress: user.Hex(),
		},
		Estimate: domain.Estimate{
			Tool:            "stargate",
			ApprovalAddress: router,
			FromAmount:      "1000",
			ToAmount:        "995",
			ToAmountMin:     "990",
		},
		TransactionRequest: &domain.TransactionRequest{
			To:       router,
			Data:     hexutil.Bytes{0xca, 0xfe},
			GasLimit: gasLimit(150_000),
		},
	}
}

func gasLimit(v uint64) *hexutil.Uint64 {
	g := hexutil.Uint64(v)
	return &g
}

// fakeChains is an in-memory chain registry.
type fakeChains map[uint64]*domain.Chain

func (f fakeChains) ChainByID(_ context.Context, id uint64) (*domain.Chain, error) {
	c, ok := f[id]
	if !ok {
		return nil, fmt.Errorf("unknown chain %d", id)
	}
	return c, nil
}

func (f fakeChains) Chains(context.Context) ([]*domain.Chain, error) {
	out := make([]*domain.Chain, 0, len(f))
	for _, c := range f {
		out = append(out, c)
	}
	return out, nil
}

// fakeWallet records what it was asked to sign and send.
type fakeWallet struct {
	mu sync.Mutex

	accounts []common.Address
	chainID  uint64
	caps     map[string]any
	capsErr  error
	key      *ecdsa.PrivateKey

	sendErr     error
	estimate    uint64
	estimateErr error
	callsStatus *ports.CallsStatus

	sent    []*domain.TransactionRequest
	batches [][]ports.Call
	signed  []apitypes.TypedData
}

func newWallet() *fakeWallet {
	return &fakeWallet{accounts: []common.Address{user}, chainID: 1, estimateErr: errors.New("estimation unavailable")}
}

func sentHash(n int) common.Hash {
	return common.BigToHash(big.NewInt(int64(0x1000 + n)))
}

func (w *fakeWallet) Accounts(context.Context) ([]common.Address, error) {
	return w.accounts, nil
}

func (w *fakeWallet) ChainID(context.Context) (uint64, error) {
	return w.chainID, nil
}

func (w *fakeWallet) Capabilities(context.Context, common.Address, uint64) (map[string]any, error) {
	return w.caps, w.capsErr
}

func (w *fakeWallet) EstimateGas(context.Context, ports.Call) (uint64, error) {
	return w.estimate, w.estimateErr
}

func (w *fakeWallet) SendTransaction(_ context.Context, req *domain.TransactionRequest) (common.Hash, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.sendErr != nil {
		return common.Hash{}, w.sendErr
	}
	copied := *req
	w.sent = append(w.sent, &copied)
	return sentHash(len(w.sent)), nil
}

func (w *fakeWallet) SendCalls(_ context.Context, _ common.Address, _ uint64, calls []ports.Call) (string, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches = append(w.batches, calls)
	return fmt.Sprintf("batch-%d", len(w.batches)), nil
}

func (w *fakeWallet) CallsStatus(context.Context, string) (*ports.CallsStatus, error) {
	return w.callsStatus, nil
}

func (w *fakeWallet) SignTypedData(_ context.Context, _ common.Address, td apitypes.TypedData) (hexutil.Bytes, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.signed = append(w.signed, td)
	if w.key == nil {
		sig := make([]byte, crypto.SignatureLength)
		sig[0] = 0x01
		sig[crypto.RecoveryIDOffset] = 27
		return sig, nil
	}
	hash, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return nil, err
	}
	sig, err := crypto.Sign(hash, w.key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

func (w *fakeWallet) LocalAccount() bool {
	return w.key != nil
}

// fakeToken is ERC-20 state served by fakeReader.
type fakeToken struct {
	balance   *big.Int
	allowance *big.Int
	// permitName enables EIP-2612 with version "1".
	permitName string
}

// fakeReader serves chain reads. Every sent hash is mined successfully
// unless receipt is overridden.
type fakeReader struct {
	mu sync.Mutex

	native     *big.Int
	tokens     map[common.Address]*fakeToken
	proxyNonce *big.Int

	receipt     func(hash common.Hash) (*domain.TxReceipt, error)
	txs         map[common.Hash]*ports.TxInfo
	nonce       uint64
	replacement *ports.TxInfo
}

func newReader() *fakeReader {
	return &fakeReader{
		native:     big.NewInt(1_000_000_000_000_000_000),
		tokens:     map[common.Address]*fakeToken{},
		proxyNonce: big.NewInt(0),
		txs:        map[common.Hash]*ports.TxInfo{},
	}
}

func (r *fakeReader) Call(_ context.Context, chainID uint64, to common.Address, data []byte) ([]byte, error) {
	if to == proxyAddr {
		method, err := permitProxyABI.MethodById(data[:4])
		if err != nil || method.Name != "nextNonce" {
			return nil, errors.New("execution reverted")
		}
		return method.Outputs.Pack(r.proxyNonce)
	}

	tok, ok := r.tokens[to]
	if !ok {
		return nil, errors.New("execution reverted")
	}
	method, err := erc20ABI.MethodById(data[:4])
	if err != nil {
		return nil, err
	}
	switch method.Name {
	case "allowance":
		return method.Outputs.Pack(tok.allowance)
	case "balanceOf":
		return method.Outputs.Pack(tok.balance)
	}

	if tok.permitName == "" {
		return nil, errors.New("execution reverted")
	}
	switch method.Name {
	case "name":
		return method.Outputs.Pack(tok.permitName)
	case "version":
		return method.Outputs.Pack("1")
	case "nonces":
		return method.Outputs.Pack(big.NewInt(0))
	case "DOMAIN_SEPARATOR":
		td, err := permit.Native(
			permit.NativeDomain{Name: tok.permitName, Version: "1", ChainID: chainID, Token: to},
			permit.NativePermit{Value: big.NewInt(0), Nonce: big.NewInt(0), Deadline: big.NewInt(0)},
		)
		if err != nil {
			return nil, err
		}
		sep, err := permit.DomainSeparator(td)
		if err != nil {
			return nil, err
		}
		return method.Outputs.Pack([32]byte(sep))
	}
	return nil, errors.New("execution reverted")
}

func (r *fakeReader) BalanceAt(context.Context, uint64, common.Address) (*big.Int, error) {
	return r.native, nil
}

func (r *fakeReader) SuggestGasTipCap(context.Context, uint64) (*big.Int, error) {
	return big.NewInt(2_000_000_000), nil
}

func (r *fakeReader) BlockNumber(context.Context, uint64) (uint64, error) {
	return 100, nil
}

func (r *fakeReader) NonceAt(context.Context, uint64, common.Address) (uint64, error) {
	return r.nonce, nil
}

func (r *fakeReader) TransactionByHash(_ context.Context, _ uint64, hash common.Hash) (*ports.TxInfo, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.txs[hash]
	if !ok {
		return nil, ports.ErrTxNotFound
	}
	return tx, nil
}

func (r *fakeReader) TransactionReceipt(_ context.Context, _ uint64, hash common.Hash) (*domain.TxReceipt, error) {
	if r.receipt != nil {
		return r.receipt(hash)
	}
	return &domain.TxReceipt{TxHash: hash.Hex(), BlockNumber: 101, Success: true}, nil
}

func (r *fakeReader) FindTransaction(context.Context, uint64, common.Address, uint64, uint64) (*ports.TxInfo, error) {
	if r.replacement == nil {
		return nil, ports.ErrTxNotFound
	}
	return r.replacement, nil
}

// fakeQuotes returns a fixed refreshed step.
type fakeQuotes struct {
	step    *domain.Step
	relayer *domain.Step
	err     error
	calls   int
}

func (q *fakeQuotes) GetStepTransaction(_ context.Context, step *domain.Step) (*domain.Step, error) {
	q.calls++
	if q.err != nil {
		return nil, q.err
	}
	if q.step == nil {
		return step.Clone(), nil
	}
	return q.step.Clone(), nil
}

func (q *fakeQuotes) GetRelayerQuote(_ context.Context, step *domain.Step) (*domain.Step, error) {
	q.calls++
	if q.err != nil {
		return nil, q.err
	}
	if q.relayer == nil {
		return step.Clone(), nil
	}
	return q.relayer.Clone(), nil
}

type fakeRelayer struct {
	requests []ports.RelayRequest
	status   *ports.RelayStatus
}

func (f *fakeRelayer) RelayTransaction(_ context.Context, req ports.RelayRequest) (string, error) {
	f.requests = append(f.requests, req)
	return "task-1", nil
}

func (f *fakeRelayer) RelayedTransactionStatus(context.Context, string) (*ports.RelayStatus, error) {
	return f.status, nil
}

// fakeStatus replays responses, repeating the last one.
type fakeStatus struct {
	responses []*ports.TransferStatus
	err       error
	requests  []ports.StatusRequest
}

func (f *fakeStatus) GetStatus(_ context.Context, req ports.StatusRequest) (*ports.TransferStatus, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return &ports.TransferStatus{Status: ports.TransferNotFound}, nil
	}
	next := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return next, nil
}

// harness wires a provider to the fakes and records every propagated route.
type harness struct {
	wallet  *fakeWallet
	reader  *fakeReader
	quotes  *fakeQuotes
	relayer *fakeRelayer
	status  *fakeStatus
	chains  fakeChains

	route   *domain.Route
	updates []*domain.Route
	hooks   ports.ExecutionHooks
}

func newHarness(steps ...*domain.Step) *harness {
	h := &harness{
		wallet:  newWallet(),
		reader:  newReader(),
		quotes:  &fakeQuotes{},
		relayer: &fakeRelayer{},
		status:  &fakeStatus{},
		chains:  fakeChains{1: ethereum(), 137: polygon()},
		route:   &domain.Route{ID: "route-1", Steps: steps},
	}
	h.hooks.UpdateRouteHook = func(r *domain.Route) {
		h.updates = append(h.updates, r.Clone())
	}
	return h
}

func (h *harness) executor(t *testing.T, settings domain.InteractionSettings, opts ...Option) *StepExecutor {
	t.Helper()
	opts = append([]Option{
		WithWatcher(watcher.New(watcher.WithInterval(time.Millisecond, 2*time.Millisecond))),
		WithClock(func() time.Time { return testNow }),
	}, opts...)

	p, err := NewProvider(Dependencies{
		Wallet:  h.wallet,
		Reader:  h.reader,
		Quotes:  h.quotes,
		Status:  h.status,
		Chains:  h.chains,
		Relayer: h.relayer,
	}, opts...)
	require.NoError(t, err)

	se, err := p.NewStepExecutor(ports.StepExecutorOptions{
		Route:    h.route,
		Hooks:    h.hooks,
		Settings: settings,
	})
	require.NoError(t, err)
	return se.(*StepExecutor)
}

func processTypes(step *domain.Step) []domain.ProcessType {
	var out []domain.ProcessType
	for _, p := range step.Execution.Process {
		out = append(out, p.Type)
	}
	return out
}

// sawProcess reports whether any propagated snapshot matched the predicate.
func (h *harness) sawProcess(stepID string, match func(exec *domain.Execution) bool) bool {
	for _, r := range h.updates {
		s := r.Step(stepID)
		if s != nil && s.Execution != nil && match(s.Execution) {
			return true
		}
	}
	return false
}

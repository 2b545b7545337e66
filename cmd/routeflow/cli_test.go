package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/aretw0/routeflow/internal/config"
	"github.com/aretw0/routeflow/internal/logging"
	"github.com/aretw0/routeflow/pkg/adapters/chains"
	"github.com/aretw0/routeflow/pkg/adapters/file"
	"github.com/aretw0/routeflow/pkg/adapters/memory"
	"github.com/aretw0/routeflow/pkg/adapters/quoteapi"
	"github.com/aretw0/routeflow/pkg/domain"
	"github.com/aretw0/routeflow/pkg/ports"
	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(store string) config.Config {
	return config.Config{
		LogLevel:    "info",
		LogFormat:   "text",
		Store:       store,
		RedisPrefix: "routeflow:route:",
		Integrator:  "routeflow",
	}
}

func bridgeRoute(id string) *domain.Route {
	return &domain.Route{
		ID:          id,
		FromChainID: 1,
		ToChainID:   137,
		Steps: []*domain.Step{
			{
				ID:   "s1",
				Type: domain.StepTypeSwap,
				Tool: "uniswap",
				Action: domain.Action{
					FromChainID: 1, ToChainID: 1,
					ToToken: domain.Token{Symbol: "USDC", ChainID: 1},
				},
				Execution: &domain.Execution{
					Status:   domain.ExecutionDone,
					ToAmount: "1000000",
					Process: []*domain.Process{
						{Type: domain.ProcessSwap, Status: domain.ProcessDone, ChainID: 1, TxHash: "0xaaa"},
					},
				},
			},
			{
				ID:     "s2",
				Type:   domain.StepTypeCross,
				Tool:   "stargate",
				Action: domain.Action{FromChainID: 1, ToChainID: 137},
				Execution: &domain.Execution{
					Status: domain.ExecutionPending,
					Process: []*domain.Process{
						{Type: domain.ProcessCrossChain, Status: domain.ProcessDone, ChainID: 1, TxHash: "0xbbb"},
						{Type: domain.ProcessReceivingChain, Status: domain.ProcessPending, ChainID: 137, Message: "Waiting for destination chain."},
					},
				},
			},
			{ID: "s3", Type: domain.StepTypeSwap, Tool: "quickswap", Action: domain.Action{FromChainID: 137, ToChainID: 137}},
		},
	}
}

func TestOpenBackend(t *testing.T) {
	logger := logging.NewNop()

	t.Run("Memory", func(t *testing.T) {
		b, err := openBackend(testConfig(config.StoreMemory), logger)
		require.NoError(t, err)
		assert.IsType(t, &memory.Store{}, b.Store)
		assert.Nil(t, b.Locker)
		assert.NoError(t, b.Close())
	})

	t.Run("File", func(t *testing.T) {
		cfg := testConfig(config.StoreFile)
		cfg.StoreDir = t.TempDir()
		b, err := openBackend(cfg, logger)
		require.NoError(t, err)
		assert.IsType(t, &file.Store{}, b.Store)
		ports.RunRouteStoreContract(t, b.Store)
	})

	t.Run("Redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg := testConfig(config.StoreRedis)
		cfg.RedisAddr = mr.Addr()
		b, err := openBackend(cfg, logger)
		require.NoError(t, err)
		defer b.Close()

		require.NotNil(t, b.Locker)
		ctx := context.Background()
		require.NoError(t, b.Store.Save(ctx, "r1", bridgeRoute("r1")))
		assert.True(t, mr.Exists("routeflow:route:r1"))

		// The session manager serializes through the shared lock.
		var ran bool
		err = b.Sessions(cfg, logger).WithLock(ctx, "r1", func(context.Context) error {
			ran = true
			return nil
		})
		require.NoError(t, err)
		assert.True(t, ran)
	})

	t.Run("Encrypted", func(t *testing.T) {
		key := bytes.Repeat([]byte{7}, 32)
		cfg := testConfig(config.StoreFile)
		cfg.StoreDir = t.TempDir()
		cfg.EncryptionKey = hex.EncodeToString(key)

		b, err := openBackend(cfg, logger)
		require.NoError(t, err)
		ctx := context.Background()
		require.NoError(t, b.Store.Save(ctx, "r1", bridgeRoute("r1")))

		// The raw file store sees only the sealed envelope.
		raw, err := file.New(cfg.StoreDir).Load(ctx, "r1")
		require.NoError(t, err)
		assert.Empty(t, raw.Steps)

		got, err := b.Store.Load(ctx, "r1")
		require.NoError(t, err)
		assert.Len(t, got.Steps, 3)
	})

	t.Run("BadKey", func(t *testing.T) {
		cfg := testConfig(config.StoreMemory)
		cfg.EncryptionKey = "short"
		_, err := openBackend(cfg, logger)
		assert.Error(t, err)
	})
}

func TestListRoutes(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()

	var out bytes.Buffer
	require.NoError(t, listRoutes(ctx, &out, store))
	assert.Equal(t, "No stored routes found.\n", out.String())

	require.NoError(t, store.Save(ctx, "r1", bridgeRoute("r1")))
	out.Reset()
	require.NoError(t, listRoutes(ctx, &out, store))
	assert.Equal(t, "Stored Routes:\n- r1 PENDING\n", out.String())
}

func TestRemoveRoutes(t *testing.T) {
	store := file.New(t.TempDir())
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "r1", bridgeRoute("r1")))

	var out bytes.Buffer
	err := removeRoutes(ctx, &out, store, []string{"r1", "../escape"})
	assert.Error(t, err)
	assert.Contains(t, out.String(), "Removed route 'r1'")
	assert.Contains(t, out.String(), "Error removing '../escape'")

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func plainPrinter(buf *bytes.Buffer) *statusPrinter {
	return &statusPrinter{
		out:    termenv.NewOutput(buf, termenv.WithProfile(termenv.Ascii)),
		chains: chains.Default(),
	}
}

func TestStatusPrinter(t *testing.T) {
	route := bridgeRoute("r1")
	route.Steps[0].Execution.Process[0].Message = "\x1b[2Jswapped"

	var buf bytes.Buffer
	require.NoError(t, plainPrinter(&buf).Print(context.Background(), route))
	out := buf.String()

	assert.Contains(t, out, "r1  PENDING  Ethereum -> Polygon")
	assert.Contains(t, out, "[1] swap via uniswap  DONE")
	assert.Contains(t, out, "received 1000000 USDC")
	assert.Contains(t, out, "https://etherscan.io/tx/0xaaa")
	assert.Contains(t, out, "Waiting for destination chain.")
	assert.Contains(t, out, "[3] swap via quickswap  NOT_STARTED")
	assert.Contains(t, out, "[2Jswapped")
	assert.NotContains(t, out, "\x1b", "ascii output carries no escape sequences")
}

func TestStatusPrinter_CheckTransfer(t *testing.T) {
	var query string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(ports.TransferStatus{
			Status:           ports.TransferPending,
			SubstatusMessage: "Bridge is confirming.",
			Receiving:        &ports.TransferLeg{TxLink: "https://polygonscan.com/tx/0xccc"},
		})
	}))
	defer srv.Close()

	var buf bytes.Buffer
	printer := plainPrinter(&buf)
	printer.transfers = quoteapi.New(srv.URL, quoteapi.WithHTTPClient(srv.Client()))
	require.NoError(t, printer.Print(context.Background(), bridgeRoute("r1")))

	assert.Contains(t, query, "txHash=0xbbb")
	assert.Contains(t, buf.String(), "destination      PENDING  Bridge is confirming.")
	assert.Contains(t, buf.String(), "https://polygonscan.com/tx/0xccc")
}

package ports

import (
	"context"
	"testing"
	"time"

	"github.com/aretw0/routeflow/pkg/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func contractRoute(id string) *domain.Route {
	return &domain.Route{
		ID:          id,
		FromChainID: 1,
		ToChainID:   10,
		FromAmount:  "1000000",
		Steps: []*domain.Step{{
			ID:   id + "-step-0",
			Type: domain.StepTypeCross,
			Tool: "stargate",
			Action: domain.Action{
				FromChainID: 1,
				ToChainID:   10,
				FromToken:   domain.Token{Address: common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48"), ChainID: 1, Symbol: "USDC", Decimals: 6},
				FromAmount:  "1000000",
			},
			Execution: &domain.Execution{
				Status:    domain.ExecutionPending,
				StartedAt: time.Unix(1700000000, 0).UTC(),
				Process: []*domain.Process{{
					Type:      domain.ProcessCrossChain,
					Status:    domain.ProcessPending,
					TxHash:    "0xabc",
					StartedAt: time.Unix(1700000000, 0).UTC(),
				}},
			},
		}},
	}
}

// RunRouteStoreContract runs a suite of tests to verify that a RouteStore implementation
// adheres to the defined interface contract.
func RunRouteStoreContract(t *testing.T, store RouteStore) {
	ctx := context.Background()
	routeID := "contract-test-route-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		route := contractRoute(routeID)

		err := store.Save(ctx, routeID, route)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, routeID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, route.ID, loaded.ID)
		require.Len(t, loaded.Steps, 1)
		assert.Equal(t, route.Steps[0].Action.FromToken.Address, loaded.Steps[0].Action.FromToken.Address)
		require.NotNil(t, loaded.Steps[0].Execution)
		require.Len(t, loaded.Steps[0].Execution.Process, 1)
		assert.Equal(t, "0xabc", loaded.Steps[0].Execution.Process[0].TxHash)
		assert.Equal(t, domain.ProcessPending, loaded.Steps[0].Execution.Process[0].Status)
	})

	t.Run("Load returns a copy", func(t *testing.T) {
		loaded, err := store.Load(ctx, routeID)
		require.NoError(t, err)
		loaded.Steps[0].Execution.Status = domain.ExecutionFailed

		again, err := store.Load(ctx, routeID)
		require.NoError(t, err)
		assert.Equal(t, domain.ExecutionPending, again.Steps[0].Execution.Status)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+routeID)
		assert.ErrorIs(t, err, domain.ErrRouteNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, routeID, contractRoute(routeID))
		require.NoError(t, err)

		err = store.Delete(ctx, routeID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, routeID)
		assert.ErrorIs(t, err, domain.ErrRouteNotFound, "Load after Delete should return ErrRouteNotFound")
	})

	t.Run("List", func(t *testing.T) {
		id1 := routeID + "-1"
		id2 := routeID + "-2"
		require.NoError(t, store.Save(ctx, id1, contractRoute(id1)))
		require.NoError(t, store.Save(ctx, id2, contractRoute(id2)))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		routes, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, routes, id1)
		assert.Contains(t, routes, id2)
	})
}

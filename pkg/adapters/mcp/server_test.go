package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/aretw0/routeflow"
	"github.com/aretw0/routeflow/pkg/adapters/memory"
	"github.com/aretw0/routeflow/pkg/domain"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExecutor struct {
	active   map[string]*domain.Route
	settings map[string]domain.InteractionSettings
}

func newFakeExecutor(active ...*domain.Route) *fakeExecutor {
	f := &fakeExecutor{active: map[string]*domain.Route{}, settings: map[string]domain.InteractionSettings{}}
	for _, r := range active {
		f.active[r.ID] = r
	}
	return f
}

func (f *fakeExecutor) ActiveRoute(id string) (*domain.Route, bool) {
	r, ok := f.active[id]
	return r, ok
}

func (f *fakeExecutor) ActiveRoutes() []*domain.Route {
	var out []*domain.Route
	for _, r := range f.active {
		out = append(out, r)
	}
	return out
}

func (f *fakeExecutor) UpdateRouteExecution(id string, settings domain.InteractionSettings) error {
	if _, ok := f.active[id]; !ok {
		return fmt.Errorf("%w: %s", routeflow.ErrRouteNotActive, id)
	}
	f.settings[id] = settings
	return nil
}

func (f *fakeExecutor) StopRouteExecution(id string) (*domain.Route, error) {
	r, ok := f.active[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", routeflow.ErrRouteNotActive, id)
	}
	delete(f.active, id)
	return r, nil
}

func route(id string, status domain.ExecutionStatus) *domain.Route {
	return &domain.Route{ID: id, Steps: []*domain.Step{{
		ID:        id + "-step",
		Execution: &domain.Execution{Status: status},
	}}}
}

// newCallToolRequest builds a tool call request with arguments.
func newCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func newTestServer(t *testing.T, exec *fakeExecutor) *Server {
	t.Helper()
	store := memory.NewStore()
	require.NoError(t, store.Save(context.Background(), "stored", route("stored", domain.ExecutionDone)))
	return NewServer(exec, store, nil)
}

func TestListRoutes(t *testing.T) {
	s := newTestServer(t, newFakeExecutor(route("live", domain.ExecutionPending)))

	result, err := s.handleListRoutes(context.Background(), newCallToolRequest("list_routes", nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Equal(t, ListRoutesResult{Routes: []RouteSummary{
		{ID: "live", Status: "PENDING", Active: true},
		{ID: "stored", Status: "DONE"},
	}}, result.StructuredContent)
}

func TestGetRoute(t *testing.T) {
	s := newTestServer(t, newFakeExecutor())

	result, err := s.handleGetRoute(context.Background(), newCallToolRequest("get_route", map[string]any{"route_id": "stored"}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	require.Len(t, result.Content, 1)

	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	var got domain.Route
	require.NoError(t, json.Unmarshal([]byte(text.Text), &got))
	assert.Equal(t, domain.ExecutionDone, got.Status())

	result, err = s.handleGetRoute(context.Background(), newCallToolRequest("get_route", map[string]any{"route_id": "missing"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleGetRoute(context.Background(), newCallToolRequest("get_route", nil))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestSetInteraction(t *testing.T) {
	exec := newFakeExecutor(route("live", domain.ExecutionPending))
	s := newTestServer(t, exec)

	result, err := s.handleSetInteraction(context.Background(), newCallToolRequest("set_interaction", map[string]any{
		"route_id":        "live",
		"allow_updates":   true,
		"allow_execution": true,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, domain.InteractionSettings{AllowUpdates: true, AllowExecution: true}, exec.settings["live"])

	result, err = s.handleSetInteraction(context.Background(), newCallToolRequest("set_interaction", map[string]any{
		"route_id": "stored",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError, "stored routes are not active")
}

func TestStopRoute(t *testing.T) {
	exec := newFakeExecutor(route("live", domain.ExecutionPending))
	s := newTestServer(t, exec)

	result, err := s.handleStopRoute(context.Background(), newCallToolRequest("stop_route", map[string]any{"route_id": "live"}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Empty(t, exec.active)

	result, err = s.handleStopRoute(context.Background(), newCallToolRequest("stop_route", map[string]any{"route_id": "live"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aretw0/routeflow"
	"github.com/aretw0/routeflow/pkg/adapters/memory"
	"github.com/aretw0/routeflow/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockExecutor for testing
type MockExecutor struct {
	active   map[string]*domain.Route
	settings map[string]domain.InteractionSettings
	stopped  []string
	updates  chan routeflow.RouteUpdate
}

func newMockExecutor(active ...*domain.Route) *MockExecutor {
	m := &MockExecutor{
		active:   map[string]*domain.Route{},
		settings: map[string]domain.InteractionSettings{},
		updates:  make(chan routeflow.RouteUpdate, 8),
	}
	for _, r := range active {
		m.active[r.ID] = r
	}
	return m
}

func (m *MockExecutor) ActiveRoute(id string) (*domain.Route, bool) {
	r, ok := m.active[id]
	return r, ok
}

func (m *MockExecutor) ActiveRoutes() []*domain.Route {
	var out []*domain.Route
	for _, r := range m.active {
		out = append(out, r)
	}
	return out
}

func (m *MockExecutor) UpdateRouteExecution(id string, settings domain.InteractionSettings) error {
	if _, ok := m.active[id]; !ok {
		return fmt.Errorf("%w: %s", routeflow.ErrRouteNotActive, id)
	}
	m.settings[id] = settings
	return nil
}

func (m *MockExecutor) StopRouteExecution(id string) (*domain.Route, error) {
	r, ok := m.active[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", routeflow.ErrRouteNotActive, id)
	}
	delete(m.active, id)
	m.stopped = append(m.stopped, id)
	return r, nil
}

func (m *MockExecutor) RouteUpdates(int) (<-chan routeflow.RouteUpdate, func()) {
	return m.updates, func() {}
}

func pendingRoute(id string) *domain.Route {
	return &domain.Route{
		ID: id,
		Steps: []*domain.Step{{
			ID:        id + "-step",
			Execution: &domain.Execution{Status: domain.ExecutionPending},
		}},
	}
}

func doneRoute(id string) *domain.Route {
	r := pendingRoute(id)
	r.Steps[0].Execution.Status = domain.ExecutionDone
	return r
}

func serve(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestGetHealth(t *testing.T) {
	handler := NewHandler(newMockExecutor(), nil)
	w := serve(t, handler, "GET", "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestListRoutes(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "b", doneRoute("b")))
	require.NoError(t, store.Save(ctx, "a", doneRoute("a")))

	// "a" is active: its live status wins over the stored one.
	handler := NewHandler(newMockExecutor(pendingRoute("a")), store)
	w := serve(t, handler, "GET", "/routes", "")
	require.Equal(t, http.StatusOK, w.Code)

	var got []RouteSummary
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
	assert.Equal(t, []RouteSummary{
		{ID: "a", Status: domain.ExecutionPending, Active: true},
		{ID: "b", Status: domain.ExecutionDone},
	}, got)
}

func TestGetRoute(t *testing.T) {
	store := memory.NewStore()
	require.NoError(t, store.Save(context.Background(), "stored", doneRoute("stored")))
	handler := NewHandler(newMockExecutor(pendingRoute("live")), store)

	t.Run("Active", func(t *testing.T) {
		w := serve(t, handler, "GET", "/routes/live", "")
		require.Equal(t, http.StatusOK, w.Code)
		var r domain.Route
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &r))
		assert.Equal(t, domain.ExecutionPending, r.Status())
	})

	t.Run("Stored", func(t *testing.T) {
		w := serve(t, handler, "GET", "/routes/stored", "")
		require.Equal(t, http.StatusOK, w.Code)
		var r domain.Route
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &r))
		assert.Equal(t, domain.ExecutionDone, r.Status())
	})

	t.Run("Missing", func(t *testing.T) {
		w := serve(t, handler, "GET", "/routes/missing", "")
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestDeleteRoute(t *testing.T) {
	store := memory.NewStore()
	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "live", pendingRoute("live")))
	exec := newMockExecutor(pendingRoute("live"))
	handler := NewHandler(exec, store)

	w := serve(t, handler, "DELETE", "/routes/live", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"live"}, exec.stopped)

	_, err := store.Load(ctx, "live")
	assert.ErrorIs(t, err, domain.ErrRouteNotFound)

	// Deleting an inactive, unknown route is not an error.
	w = serve(t, handler, "DELETE", "/routes/other", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestSetInteraction(t *testing.T) {
	exec := newMockExecutor(pendingRoute("live"))
	handler := NewHandler(exec, nil)

	w := serve(t, handler, "PUT", "/routes/live/interaction",
		`{"allowInteraction":false,"allowUpdates":true,"allowExecution":true}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.InteractionSettings{AllowUpdates: true, AllowExecution: true}, exec.settings["live"])

	w = serve(t, handler, "PUT", "/routes/other/interaction", `{}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = serve(t, handler, "PUT", "/routes/live/interaction", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubscribeEvents(t *testing.T) {
	statusDone := domain.ExecutionDone
	exec := newMockExecutor()
	exec.updates <- routeflow.RouteUpdate{
		Route: pendingRoute("other"),
		Diff:  &domain.RouteDiff{RouteID: "other", Status: &statusDone},
	}
	exec.updates <- routeflow.RouteUpdate{
		Route: pendingRoute("r1"),
		Diff: &domain.RouteDiff{RouteID: "r1", Steps: []domain.StepDiff{{
			StepID:    "r1-step",
			Processes: []domain.ProcessChange{{Type: domain.ProcessSwap, Status: domain.ProcessPending, TxHash: "0xfeed"}},
		}}},
	}
	exec.updates <- routeflow.RouteUpdate{
		Route: doneRoute("r1"),
		Diff:  &domain.RouteDiff{RouteID: "r1", Status: &statusDone},
	}
	close(exec.updates)

	handler := NewHandler(exec, nil)

	t.Run("AllDiffs", func(t *testing.T) {
		w := serve(t, handler, "GET", "/routes/r1/events", "")
		body := w.Body.String()
		assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
		assert.Contains(t, body, "event: ping")
		assert.Contains(t, body, `"tx_hash":"0xfeed"`)
		assert.Contains(t, body, `"status":"DONE"`)
		assert.NotContains(t, body, `"route_id":"other"`)
	})
}

func TestSubscribeEvents_Watch(t *testing.T) {
	statusDone := domain.ExecutionDone
	exec := newMockExecutor()
	exec.updates <- routeflow.RouteUpdate{
		Route: pendingRoute("r1"),
		Diff: &domain.RouteDiff{RouteID: "r1", Steps: []domain.StepDiff{{
			StepID:    "r1-step",
			Processes: []domain.ProcessChange{{Type: domain.ProcessSwap, Status: domain.ProcessPending, TxHash: "0xfeed"}},
		}}},
	}
	exec.updates <- routeflow.RouteUpdate{
		Route: doneRoute("r1"),
		Diff:  &domain.RouteDiff{RouteID: "r1", Status: &statusDone},
	}
	close(exec.updates)

	w := serve(t, NewHandler(exec, nil), "GET", "/routes/r1/events?watch=status", "")
	body := w.Body.String()
	assert.Contains(t, body, `"status":"DONE"`)
	assert.NotContains(t, body, "0xfeed")
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "routeflow_test_total"})
	reg.MustRegister(counter)
	counter.Inc()

	w := serve(t, NewHandler(newMockExecutor(), nil, WithGatherer(reg)), "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "routeflow_test_total 1")
}

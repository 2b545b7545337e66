package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"

	"github.com/aretw0/routeflow"
	"github.com/aretw0/routeflow/internal/logging"
	"github.com/aretw0/routeflow/pkg/domain"
	"github.com/aretw0/routeflow/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Executor defines what the status API needs from the route executor.
type Executor interface {
	ActiveRoute(routeID string) (*domain.Route, bool)
	ActiveRoutes() []*domain.Route
	UpdateRouteExecution(routeID string, settings domain.InteractionSettings) error
	StopRouteExecution(routeID string) (*domain.Route, error)
	RouteUpdates(buffer int) (<-chan routeflow.RouteUpdate, func())
}

// Server serves route status, interaction changes and live updates.
type Server struct {
	Executor Executor
	// Store may be nil, in which case only active routes are visible.
	Store    ports.RouteStore
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithGatherer exposes the given registry on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// RouteSummary is a list entry of GET /routes.
type RouteSummary struct {
	ID     string                 `json:"id"`
	Status domain.ExecutionStatus `json:"status"`
	Active bool                   `json:"active"`
}

// NewHandler creates a new HTTP handler for the executor.
func NewHandler(exec Executor, store ports.RouteStore, opts ...Option) http.Handler {
	server := &Server{
		Executor: exec,
		Store:    store,
		gatherer: prometheus.DefaultGatherer,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(server)
	}

	r := chi.NewRouter()
	r.Get("/health", server.GetHealth)
	r.Get("/info", server.GetInfo)
	r.Handle("/metrics", promhttp.HandlerFor(server.gatherer, promhttp.HandlerOpts{}))
	r.Route("/routes", func(r chi.Router) {
		r.Get("/", server.ListRoutes)
		r.Get("/{id}", server.GetRoute)
		r.Delete("/{id}", server.DeleteRoute)
		r.Put("/{id}/interaction", server.SetInteraction)
		r.Get("/{id}/events", server.SubscribeEvents)
	})
	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Custom-Header")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "routeflow-http",
		"version": strings.TrimSpace(routeflow.Version),
	})
}

// ListRoutes handles the GET /routes request. Active routes are listed with
// their live status, stored ones with their persisted status.
func (s *Server) ListRoutes(w http.ResponseWriter, r *http.Request) {
	byID := make(map[string]RouteSummary)
	for _, route := range s.Executor.ActiveRoutes() {
		byID[route.ID] = RouteSummary{ID: route.ID, Status: route.Status(), Active: true}
	}

	if s.Store != nil {
		ids, err := s.Store.List(r.Context())
		if err != nil {
			http.Error(w, fmt.Sprintf("List error: %v", err), http.StatusInternalServerError)
			s.logger.Error("List routes failed", "err", err)
			return
		}
		for _, id := range ids {
			if _, ok := byID[id]; ok {
				continue
			}
			route, err := s.Store.Load(r.Context(), id)
			if err != nil {
				// Expired or deleted between List and Load.
				s.logger.Debug("Skipping unreadable route", "route_id", id, "err", err)
				continue
			}
			byID[id] = RouteSummary{ID: id, Status: route.Status()}
		}
	}

	out := make([]RouteSummary, 0, len(byID))
	for _, summary := range byID {
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	s.writeJSON(w, http.StatusOK, out)
}

// GetRoute handles the GET /routes/{id} request.
func (s *Server) GetRoute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if route, ok := s.Executor.ActiveRoute(id); ok {
		s.writeJSON(w, http.StatusOK, route)
		return
	}
	if s.Store == nil {
		http.Error(w, "Route not found", http.StatusNotFound)
		return
	}
	route, err := s.Store.Load(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrRouteNotFound) {
			http.Error(w, "Route not found", http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("Load error: %v", err), http.StatusInternalServerError)
		s.logger.Error("Load route failed", "route_id", id, "err", err)
		return
	}
	s.writeJSON(w, http.StatusOK, route)
}

// DeleteRoute handles the DELETE /routes/{id} request. An active route is
// stopped before its stored copy is removed.
func (s *Server) DeleteRoute(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.Executor.StopRouteExecution(id); err != nil && !errors.Is(err, routeflow.ErrRouteNotActive) {
		http.Error(w, fmt.Sprintf("Stop error: %v", err), http.StatusInternalServerError)
		return
	}
	if s.Store != nil {
		if err := s.Store.Delete(r.Context(), id); err != nil {
			http.Error(w, fmt.Sprintf("Delete error: %v", err), http.StatusInternalServerError)
			s.logger.Error("Delete route failed", "route_id", id, "err", err)
			return
		}
	}
	s.logger.Info("Route deleted", "route_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// SetInteraction handles the PUT /routes/{id}/interaction request.
func (s *Server) SetInteraction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var settings domain.InteractionSettings
	if err := json.NewDecoder(r.Body).Decode(&settings); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("SetInteraction: Invalid request body", "err", err)
		return
	}
	if err := s.Executor.UpdateRouteExecution(id, settings); err != nil {
		if errors.Is(err, routeflow.ErrRouteNotActive) {
			http.Error(w, "Route is not active", http.StatusNotFound)
			return
		}
		http.Error(w, fmt.Sprintf("Update error: %v", err), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, settings)
}

// SubscribeEvents handles the GET /routes/{id}/events request (SSE). Each
// event carries a domain.RouteDiff. The optional "watch" query parameter
// ("status", "processes") filters the diffs forwarded.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}
	routeID := chi.URLParam(r, "id")

	var watchList []string
	if watch := r.URL.Query().Get("watch"); watch != "" {
		for _, field := range strings.Split(watch, ",") {
			watchList = append(watchList, strings.TrimSpace(field))
		}
	}

	updates, cancel := s.Executor.RouteUpdates(32)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	s.logger.Info("SSE: Subscribing to route updates", "route_id", routeID)
	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE Client Disconnected", "route_id", routeID)
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Route.ID != routeID || update.Diff == nil || !matchesWatch(update.Diff, watchList) {
				continue
			}
			payload, err := json.Marshal(update.Diff)
			if err != nil {
				s.logger.Error("SSE: Diff encode failed", "route_id", routeID, "err", err)
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func matchesWatch(diff *domain.RouteDiff, watchList []string) bool {
	if len(watchList) == 0 {
		return true
	}
	for _, field := range watchList {
		switch field {
		case "status":
			if diff.Status != nil {
				return true
			}
			for _, sd := range diff.Steps {
				if sd.Status != nil {
					return true
				}
			}
		case "processes":
			for _, sd := range diff.Steps {
				if len(sd.Processes) > 0 || len(sd.Removed) > 0 {
					return true
				}
			}
		}
	}
	return false
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "err", err)
	}
}

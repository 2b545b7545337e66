package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/aretw0/routeflow"
	"github.com/aretw0/routeflow/internal/logging"
	"github.com/aretw0/routeflow/pkg/domain"
	"github.com/aretw0/routeflow/pkg/ports"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Executor defines what the MCP server needs from the route executor.
type Executor interface {
	ActiveRoute(routeID string) (*domain.Route, bool)
	ActiveRoutes() []*domain.Route
	UpdateRouteExecution(routeID string, settings domain.InteractionSettings) error
	StopRouteExecution(routeID string) (*domain.Route, error)
}

// RouteSummary is one entry of the list_routes result.
type RouteSummary struct {
	ID     string `json:"id" jsonschema_description:"Route identifier"`
	Status string `json:"status" jsonschema_description:"PENDING, ACTION_REQUIRED, DONE or FAILED"`
	Active bool   `json:"active" jsonschema_description:"Whether an execution is in flight"`
}

// ListRoutesResult is the output of list_routes.
type ListRoutesResult struct {
	Routes []RouteSummary `json:"routes"`
}

// RouteInput identifies a route.
type RouteInput struct {
	RouteID string `json:"route_id" jsonschema:"required" jsonschema_description:"Route identifier"`
}

// InteractionInput is the input of set_interaction.
type InteractionInput struct {
	RouteID          string `json:"route_id" jsonschema:"required"`
	AllowInteraction bool   `json:"allow_interaction"`
	AllowUpdates     bool   `json:"allow_updates"`
	AllowExecution   bool   `json:"allow_execution"`
}

// Server exposes route status and control as MCP tools.
type Server struct {
	executor  Executor
	store     ports.RouteStore
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP Server instance. store may be nil.
func NewServer(exec Executor, store ports.RouteStore, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		executor: exec,
		store:    store,
		logger:   logger,
		mcpServer: server.NewMCPServer("routeflow-mcp", strings.TrimSpace(routeflow.Version),
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, false),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE and stops when ctx is done.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_routes",
		mcp.WithDescription("List known routes with their execution status."),
		mcp.WithOutputSchema[ListRoutesResult](),
	), s.handleListRoutes)

	s.mcpServer.AddTool(mcp.NewTool("get_route",
		mcp.WithDescription("Get a route with the execution record of every step."),
		mcp.WithString("route_id", mcp.Required(), mcp.Description("Route identifier")),
	), s.handleGetRoute)

	s.mcpServer.AddTool(mcp.NewTool("set_interaction",
		mcp.WithDescription("Change what an active route may do: prompt the wallet, publish updates, advance steps."),
		mcp.WithInputSchema[InteractionInput](),
		mcp.WithOutputSchema[domain.InteractionSettings](),
	), s.handleSetInteraction)

	s.mcpServer.AddTool(mcp.NewTool("stop_route",
		mcp.WithDescription("Stop an active route. It can be resumed later from its stored state."),
		mcp.WithString("route_id", mcp.Required(), mcp.Description("Route identifier")),
	), s.handleStopRoute)
}

func (s *Server) handleListRoutes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	routes, err := s.listRoutes(ctx)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("list routes failed", err), nil
	}
	return mcp.NewToolResultStructuredOnly(ListRoutesResult{Routes: routes}), nil
}

func (s *Server) listRoutes(ctx context.Context) ([]RouteSummary, error) {
	byID := make(map[string]RouteSummary)
	for _, r := range s.executor.ActiveRoutes() {
		byID[r.ID] = RouteSummary{ID: r.ID, Status: string(r.Status()), Active: true}
	}
	if s.store != nil {
		ids, err := s.store.List(ctx)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if _, ok := byID[id]; ok {
				continue
			}
			r, err := s.store.Load(ctx, id)
			if err != nil {
				continue
			}
			byID[id] = RouteSummary{ID: id, Status: string(r.Status())}
		}
	}
	out := make([]RouteSummary, 0, len(byID))
	for _, summary := range byID {
		out = append(out, summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Server) loadRoute(ctx context.Context, id string) (*domain.Route, error) {
	if r, ok := s.executor.ActiveRoute(id); ok {
		return r, nil
	}
	if s.store == nil {
		return nil, domain.ErrRouteNotFound
	}
	return s.store.Load(ctx, id)
}

func (s *Server) handleGetRoute(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input RouteInput
	if err := request.BindArguments(&input); err != nil || input.RouteID == "" {
		return mcp.NewToolResultError("route_id is required"), nil
	}
	route, err := s.loadRoute(ctx, input.RouteID)
	if err != nil {
		return mcp.NewToolResultErrorFromErr("get route failed", err), nil
	}
	payload, err := json.Marshal(route)
	if err != nil {
		return nil, fmt.Errorf("failed to encode route: %w", err)
	}
	return mcp.NewToolResultText(string(payload)), nil
}

func (s *Server) handleSetInteraction(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input InteractionInput
	if err := request.BindArguments(&input); err != nil {
		return mcp.NewToolResultErrorFromErr("invalid set_interaction arguments", err), nil
	}
	if input.RouteID == "" {
		return mcp.NewToolResultError("route_id is required"), nil
	}
	settings := domain.InteractionSettings{
		AllowInteraction: input.AllowInteraction,
		AllowUpdates:     input.AllowUpdates,
		AllowExecution:   input.AllowExecution,
	}
	if err := s.executor.UpdateRouteExecution(input.RouteID, settings); err != nil {
		return mcp.NewToolResultErrorFromErr("set interaction failed", err), nil
	}
	s.logger.Info("MCP: interaction updated", "route_id", input.RouteID)
	return mcp.NewToolResultStructuredOnly(settings), nil
}

func (s *Server) handleStopRoute(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var input RouteInput
	if err := request.BindArguments(&input); err != nil || input.RouteID == "" {
		return mcp.NewToolResultError("route_id is required"), nil
	}
	route, err := s.executor.StopRouteExecution(input.RouteID)
	if err != nil {
		if errors.Is(err, routeflow.ErrRouteNotActive) {
			return mcp.NewToolResultError(fmt.Sprintf("route %s is not active", input.RouteID)), nil
		}
		return mcp.NewToolResultErrorFromErr("stop route failed", err), nil
	}
	return mcp.NewToolResultStructuredOnly(RouteSummary{ID: route.ID, Status: string(route.Status())}), nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource("routeflow://routes", "Known routes",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		routes, err := s.listRoutes(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to list routes: %w", err)
		}
		jsonBytes, _ := json.Marshal(routes)
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "routeflow://routes",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}

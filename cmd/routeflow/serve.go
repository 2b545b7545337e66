package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aretw0/routeflow"
	"github.com/aretw0/routeflow/internal/config"
	"github.com/aretw0/routeflow/internal/presentation/tui"
	httpAdapter "github.com/aretw0/routeflow/pkg/adapters/http"
	"github.com/aretw0/routeflow/pkg/observability"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the route status HTTP server",
	Long: `Starts the HTTP status API over the configured route store.

Endpoints: /health, /info, /metrics, /routes, /routes/{id},
/routes/{id}/interaction and /routes/{id}/events (SSE).`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, logger, b := mustSetup(cmd)
		defer b.Close()
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.HTTPAddr = addr
		}
		logger = logger.With("instance", uuid.NewString())

		reg := prometheus.NewRegistry()
		exec, err := newExecutor(cfg, logger, b, reg)
		if err != nil {
			fmt.Printf("Error initializing executor: %v\n", err)
			os.Exit(1)
		}

		handler := httpAdapter.NewHandler(exec, b.Store,
			httpAdapter.WithGatherer(reg),
			httpAdapter.WithLogger(logger),
		)

		srv := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}

		tui.PrintBanner(newOutput(os.Stdout, false))

		// Channel to listen for errors coming from the listener.
		serverErrors := make(chan error, 1)

		go func() {
			logger.Info("Starting routeflow server", "address", srv.Addr, "store", cfg.Store)
			serverErrors <- srv.ListenAndServe()
		}()

		// Channel to listen for interrupt or terminate signals.
		shutdown := make(chan os.Signal, 1)
		signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serverErrors:
			logger.Error("Server error", "err", err)
			os.Exit(1)

		case sig := <-shutdown:
			logger.Info("Start shutdown", "signal", sig.String())

			// Give outstanding requests (and SSE streams) a deadline for completion.
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			if err := srv.Shutdown(ctx); err != nil {
				logger.Warn("Graceful shutdown did not complete", "timeout", 5*time.Second, "err", err)
				if err := srv.Close(); err != nil {
					logger.Error("Error killing server", "err", err)
				}
			}
			logger.Info("Routeflow server stopped gracefully")
		}
	},
}

// newExecutor builds the executor that backs the status surfaces. Routes
// driven by this process share the store, lock and metrics wiring.
func newExecutor(cfg config.Config, logger *slog.Logger, b *backend, reg *prometheus.Registry) (*routeflow.Executor, error) {
	opts := []routeflow.Option{
		routeflow.WithLogger(logger),
		routeflow.WithStore(b.Store),
		routeflow.WithSessionManager(b.Sessions(cfg, logger)),
	}
	if reg != nil {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics, err := observability.NewMetrics(reg)
		if err != nil {
			return nil, err
		}
		opts = append(opts, routeflow.WithMetrics(metrics))
	}
	return routeflow.New(opts...)
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("addr", "", "Address to listen on (env ROUTEFLOW_HTTP_ADDR)")
}

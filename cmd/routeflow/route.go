package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/aretw0/routeflow/internal/presentation/graph"
	"github.com/aretw0/routeflow/pkg/adapters/quoteapi"
	"github.com/aretw0/routeflow/pkg/ports"
	"github.com/spf13/cobra"
)

var routeCmd = &cobra.Command{
	Use:   "route",
	Short: "Inspect and manage stored routes",
	Long:  `List, inspect, and remove routes kept in the configured route store.`,
}

var routeLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored routes",
	Run: func(cmd *cobra.Command, args []string) {
		_, _, b := mustSetup(cmd)
		defer b.Close()

		if err := listRoutes(cmd.Context(), os.Stdout, b.Store); err != nil {
			fmt.Printf("Error listing routes: %v\n", err)
			os.Exit(1)
		}
	},
}

var routeInspectCmd = &cobra.Command{
	Use:   "inspect <route-id>",
	Short: "Print the stored JSON of a route",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		routeID := args[0]
		_, _, b := mustSetup(cmd)
		defer b.Close()

		route, err := b.Store.Load(cmd.Context(), routeID)
		if err != nil {
			fmt.Printf("Error loading route '%s': %v\n", routeID, err)
			os.Exit(1)
		}

		data, err := json.MarshalIndent(route, "", "  ")
		if err != nil {
			fmt.Printf("Error marshaling route: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(string(data))
	},
}

var routeStatusCmd = &cobra.Command{
	Use:   "status <route-id>",
	Short: "Show the progress of a route",
	Long: `Shows each step and process of a stored route with explorer links.

With --check, unfinished bridge transfers are looked up on the status API.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		routeID := args[0]
		cfg, logger, b := mustSetup(cmd)
		defer b.Close()

		route, err := b.Store.Load(cmd.Context(), routeID)
		if err != nil {
			fmt.Printf("Error loading route '%s': %v\n", routeID, err)
			os.Exit(1)
		}
		registry, err := loadChains(cfg)
		if err != nil {
			fmt.Printf("Error loading chains: %v\n", err)
			os.Exit(1)
		}

		noColor, _ := cmd.Flags().GetBool("no-color")
		printer := &statusPrinter{out: newOutput(os.Stdout, noColor), chains: registry}
		if check, _ := cmd.Flags().GetBool("check"); check {
			printer.transfers = quoteapi.New(cfg.APIURL,
				quoteapi.WithAPIKey(cfg.APIKey),
				quoteapi.WithIntegrator(cfg.Integrator),
				quoteapi.WithLogger(logger),
			)
		}
		if err := printer.Print(cmd.Context(), route); err != nil {
			fmt.Printf("Error: %v\n", err)
			os.Exit(1)
		}
	},
}

var routeGraphCmd = &cobra.Command{
	Use:   "graph <route-id>",
	Short: "Print a route as a Mermaid flowchart",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		routeID := args[0]
		_, _, b := mustSetup(cmd)
		defer b.Close()

		route, err := b.Store.Load(cmd.Context(), routeID)
		if err != nil {
			fmt.Printf("Error loading route '%s': %v\n", routeID, err)
			os.Exit(1)
		}
		fmt.Print(graph.GenerateMermaid(route))
	},
}

var routeRmCmd = &cobra.Command{
	Use:   "rm [route-id]...",
	Short: "Remove one or more routes",
	Args: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		if all && len(args) > 0 {
			return errors.New("--all does not take route ids")
		}
		if !all && len(args) == 0 {
			return errors.New("requires at least 1 route id, or --all")
		}
		return nil
	},
	Run: func(cmd *cobra.Command, args []string) {
		_, _, b := mustSetup(cmd)
		defer b.Close()

		if all, _ := cmd.Flags().GetBool("all"); all {
			ids, err := b.Store.List(cmd.Context())
			if err != nil {
				fmt.Printf("Error listing routes: %v\n", err)
				os.Exit(1)
			}
			args = ids
		}
		if err := removeRoutes(cmd.Context(), os.Stdout, b.Store, args); err != nil {
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(routeCmd)
	routeCmd.AddCommand(routeLsCmd)
	routeCmd.AddCommand(routeInspectCmd)
	routeCmd.AddCommand(routeStatusCmd)
	routeCmd.AddCommand(routeGraphCmd)
	routeCmd.AddCommand(routeRmCmd)

	routeStatusCmd.Flags().Bool("check", false, "Query the status API for unfinished bridge transfers")
	routeStatusCmd.Flags().Bool("no-color", false, "Disable coloured output")
	routeRmCmd.Flags().Bool("all", false, "Remove every stored route")
}

func listRoutes(ctx context.Context, w io.Writer, store ports.RouteStore) error {
	ids, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		fmt.Fprintln(w, "No stored routes found.")
		return nil
	}

	fmt.Fprintln(w, "Stored Routes:")
	for _, id := range ids {
		route, err := store.Load(ctx, id)
		if err != nil {
			fmt.Fprintf(w, "- %s (unreadable: %v)\n", id, err)
			continue
		}
		fmt.Fprintf(w, "- %s %s\n", id, route.Status())
	}
	return nil
}

// removeRoutes deletes every id, reporting each outcome. The returned error
// joins the failures.
func removeRoutes(ctx context.Context, w io.Writer, store ports.RouteStore, ids []string) error {
	var errs []error
	for _, id := range ids {
		if err := store.Delete(ctx, id); err != nil {
			fmt.Fprintf(w, "Error removing '%s': %v\n", id, err)
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(w, "Removed route '%s'\n", id)
	}
	return errors.Join(errs...)
}

/*
Package routeflow executes multi-step cross-chain routes (swaps and bridges) so
that they can be paused, persisted and resumed at any point.

A route is an ordered list of steps. Each step carries an Execution record made
of typed processes (allowance, swap, cross-chain, receiving chain, ...) whose
status is driven by a status engine. Every change is propagated to the caller
and to the Executor, which persists the route and fans the change out to
subscribers.

# Architecture

The Executor is chain agnostic. Steps are executed by providers registered
through WithProvider; pkg/evm implements the EVM family. External systems
(wallet, chain reads, quote API, relayer, bridge status) are ports that the
host supplies, so the same core runs in a CLI, an HTTP service or an agent.

# Usage

	provider, err := evm.NewProvider(evm.Dependencies{
		Wallet: wallet,
		Reader: reader,
		Quotes: quotes,
		Status: status,
		Chains: chains,
	})
	if err != nil {
		log.Fatal(err)
	}

	exec, err := routeflow.New(
		routeflow.WithProvider(provider),
		routeflow.WithStore(file.New(".routeflow/routes")),
	)
	if err != nil {
		log.Fatal(err)
	}

	route, err := exec.ExecuteRoute(ctx, quotedRoute, &ports.ExecutionHooks{
		UpdateRouteHook: func(r *domain.Route) { log.Println(r.Status()) },
	})
	if err != nil {
		log.Fatal(err)
	}

	// A route that is not DONE paused waiting for the user.
	if route.Status() != domain.ExecutionDone {
		route, err = exec.ResumeRoute(ctx, route, nil)
	}

Settings of a running route can be changed with UpdateRouteExecution, for
instance to keep it running in the background without prompting the user.
*/
package routeflow

/*
Package ports defines the driven ports (interfaces) for the routeflow executor.

These interfaces decouple the execution core from wallets, RPC nodes, quoting
services and storage backends, so each can be replaced without touching the
status engine or the step protocol.

# Key Interfaces

  - Wallet: Signs and submits transactions on behalf of the route owner.
  - Reader: Read-only chain access (calls, balances, receipts, replacements).
  - QuoteService, Relayer, StatusService: The remote quoting and relaying API.
  - ChainRegistry: Chain metadata lookup.
  - Provider / StepExecutor: Chain-family specific step execution.
  - RouteStore: Persists routes for resumption after a restart.
  - DistributedLocker: Serializes route invocations across instances.
*/
package ports

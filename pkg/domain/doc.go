/*
Package domain contains the core models of the routeflow executor.

It defines the plan being executed (Route, Step, Action, Estimate) and the
resumable execution record attached to each step (Execution, Process). This
package is kept pure and free of I/O, following Hexagonal Architecture
principles: wallets, quote services and stores live behind the ports package.

# Key Entities

  - Route: An ordered plan of Steps, owned by the caller and mutated in place.
  - Step: One swap or bridge leg plus its mutable Execution.
  - Execution: The step status and its ordered list of Processes.
  - Process: A tracked sub-phase (allowance, permit, swap, destination wait), unique per type.
  - ExecutionError: A failure carrying a machine-checkable ErrorCode.
*/
package domain

/*
Package watcher waits for submitted work to become final.

Four waits are provided, one per submission handle:

  - WaitForReceipt: a transaction hash, following fee bumps and cancellations.
  - WaitForBatch: an EIP-5792 atomic batch identifier.
  - WaitForRelayed: a relayer task identifier.
  - WaitForDestination: the counterpart leg of a bridge transfer.

All waits honour context cancellation and return transport errors instead of
retrying them.
*/
package watcher

/*
Package evm executes route steps whose source chain is EVM compatible.

A StepExecutor is created per route through Provider.NewStepExecutor and
drives each step through the same resumable protocol:

 1. Initialize or resume the step's Execution.
 2. Skip straight to destination tracking when the source leg is final.
 3. Attach the wallet to the source chain and check the signing account.
 4. Probe the wallet for atomic batching (EIP-5792).
 5. Ensure allowance: existing approval, native permit (EIP-2612), a queued
    batch approval, or an approval transaction.
 6. Materialize the transaction and compare it with the accepted quote.
 7. Submit through exactly one SubmissionPath.
 8. Await the receipt, following replacements.
 9. Close the SWAP or CROSS_CHAIN phase.
 10. For bridges, wait for the destination chain.

Every stop before submission that needs the user honours
InteractionSettings.AllowInteraction: the step is returned unchanged and can be
executed again later. Failures are classified into domain error codes,
recorded on the active process and returned.
*/
package evm

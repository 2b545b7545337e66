/*
Package permit builds EIP-712 typed data for signature-based token approvals.

It covers Permit2 signature transfers (single and batched, with or without a
witness) and EIP-2612 native permits. All functions are pure: values are range
checked before any message is produced, and the caller signs the result.
*/
package permit

/*
Package session serializes route invocations and orchestrates their persistence.

A Manager keeps one in-process mutex per route, optionally backed by a
ports.DistributedLocker so that several executor replicas sharing a store
never run the same route concurrently.
*/
package session

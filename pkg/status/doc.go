// Package status implements the execution status engine: the resumable state
// machine of a route's step executions and their processes.
package status

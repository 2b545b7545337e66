/*
Package observability turns route updates into Prometheus metrics.

Metrics is fed with consecutive snapshots of a route, typically from the
executor's update callback, and counts what changed between them.
*/
package observability

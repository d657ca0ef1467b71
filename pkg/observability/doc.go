/*
Package observability provides tools for monitoring the conduit runtime.

Metrics binds Prometheus collectors to the engine's lifecycle hooks: node
rounds and their duration, ticks, published tokens and node errors.
*/
package observability

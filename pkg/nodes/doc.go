// Package nodes provides the built-in node bodies shipped with conduit:
// counter, constant, add, relay, printer, delay and pulse. Register adds them
// to a registry.
package nodes

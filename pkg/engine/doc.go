/*
Package engine implements the dataflow execution core: connectors, the
connection handshake, the per-node input and output transitions and the
NodeWorker that drives a node body through its process/tick lifecycle.

# Message flow

An Output commits a Token, its Connection moves to Unread and notifies the
receiving Input. The owning NodeWorker reads the token, waits until every
mandatory input holds one (the join barrier), runs the node body and publishes
through its OutputTransition. Acknowledging a token moves the Connection back
to Done, which is what lets the producer publish its next round.

# Concurrency

Every worker serialises its own event handlers through a mailbox. Handlers are
run by an Executor: Inline (the default) runs them on the caller's goroutine,
while the scheduler package binds workers to thread groups. Locks are never
held while calling into another connector or worker.
*/
package engine

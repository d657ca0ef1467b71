// Package scheduler runs node workers on goroutines.
//
// A Pool owns a set of groups. Each group is one goroutine draining a task
// queue and serves as the engine.Executor of the workers bound to it, so the
// workers of one group never run concurrently with each other. A clock
// goroutine ticks source workers at the configured frequency; Step drives the
// clock by hand and waits until every queue has drained.
//
// Panics escaping a worker are contained at the group boundary: an invariant
// violation or a foreign panic halts the whole pool and Wait reports it.
package scheduler

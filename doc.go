/*
Package conduit is a dataflow execution runtime: nodes exchange typed tokens
over connections, and a scheduler drives them on a fixed set of goroutines.

# Concept

A graph is a set of node workers linked output-to-input. Every connection
carries at most one token at a time and is acknowledged by its consumer
before the producer may publish again, so a slow node applies backpressure
upstream instead of buffering. Each round a node publishes on all of its
outputs or on none, and the tokens of one round share a sequence number.

# Key Features

  - Lockstep delivery: one token per connection, acknowledged before the next.
  - Asynchronous rounds: a body may finish its work later through a one-shot continuation.
  - Parameter bridges: node parameters can be fed and observed through connections.
  - Error containment: node failures become node errors; only protocol violations halt the engine.
  - Snapshots: the graph and its parameter values can be persisted in memory, on disk or in Redis.

# Usage

Build a graph with the dsl package or load a YAML file, then run it.

	package main

	import (
		"context"
		"log"
		"time"

		"github.com/aretw0/conduit"
		"github.com/aretw0/conduit/pkg/dsl"
	)

	func main() {
		b := dsl.New("demo").Tick(10)
		b.Node("count", "counter").Param("step", 2).Connect("value", "print.in")
		b.Node("print", "printer")

		spec, err := b.Build()
		if err != nil {
			log.Fatal(err)
		}

		eng, err := conduit.New(spec)
		if err != nil {
			log.Fatal(err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		if err := eng.Start(ctx); err != nil {
			log.Fatal(err)
		}
		if err := eng.Wait(); err != nil {
			log.Fatal(err)
		}
	}
*/
package conduit

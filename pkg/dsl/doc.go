/*
Package dsl provides a Go DSL (Domain Specific Language) for programmatically constructing conduit graphs.

It allows developers to define dataflow graphs using a type-safe, fluent builder pattern
instead of relying on external YAML files. This is particularly useful for dynamic graph
generation, unit testing, and leveraging IDE autocompletion/type-checking.

Example usage:

	package main

	import (
		"github.com/aretw0/conduit/pkg/dsl"
	)

	func main() {
		b := dsl.New("counting").Tick(10)

		b.Node("count", "counter").
			Param("step", 2).
			Connect("value", "show.in")

		b.Node("show", "printer").
			Param("prefix", "n=").
			Group(1)

		spec, err := b.Build()
		if err != nil {
			panic(err)
		}
		// ... pass spec to conduit.New(...)
	}
*/
package dsl

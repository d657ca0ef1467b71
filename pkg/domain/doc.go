/*
Package domain contains the core data model of the conduit dataflow runtime.

It defines the values that travel through a graph and the vocabulary shared by
the engine, the scheduler and the adapters. This package is kept pure and free
of I/O, following the same hexagonal split as the rest of the module.

# Key Entities

  - Token: An immutable message published by an Output and carried by a Connection.
  - ConnectionState / OutputState / WorkerState: The handshake state machines.
  - NodeError: The contained error state of a node body.
  - GraphSpec: A declarative description of a graph (nodes, parameters, connections).
  - GraphDescription: A runtime snapshot of a graph for inspection and persistence.
*/
package domain

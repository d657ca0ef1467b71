/*
Package ports defines the driven ports (interfaces) of the conduit runtime.

These interfaces decouple the engine from external implementations, allowing
graph snapshots to be kept in memory, on disk or in Redis.

# Key Interfaces

  - SnapshotStore: Responsible for persisting and loading graph snapshots.
  - DistributedLocker: Provides distributed locking when several instances share a store.
*/
package ports

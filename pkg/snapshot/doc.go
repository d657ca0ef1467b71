/*
Package snapshot orchestrates access to persisted graph snapshots.

The Manager serialises operations per graph id with reference-counted local
locks and, when configured, a ports.DistributedLocker shared by replicas.
*/
package snapshot

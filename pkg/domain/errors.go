package domain

import (
	"errors"
	"fmt"
)

// ErrInvariantViolation marks a broken protocol invariant. It indicates a
// scheduling bug and halts the engine.
var ErrInvariantViolation = errors.New("invariant violation")

// ErrFatal is reported when a node body panics with a value that is neither
// an error nor a string.
var ErrFatal = errors.New("fatal node fault")

// ErrStopped is returned by operations on a stopped worker or engine.
var ErrStopped = errors.New("stopped")

// ErrUnknownType is returned when a payload or node type is not registered.
var ErrUnknownType = errors.New("unknown type")

// ErrNodeNotFound is returned when a node id cannot be resolved in a graph.
var ErrNodeNotFound = errors.New("node not found")

// ErrConnectorNotFound is returned when a connector address cannot be resolved.
var ErrConnectorNotFound = errors.New("connector not found")

// ErrIncompatible is returned when two connectors cannot be linked.
var ErrIncompatible = errors.New("connectors are not compatible")

// ErrContinuationReused is returned when an asynchronous continuation is invoked twice.
var ErrContinuationReused = errors.New("continuation invoked more than once")

// ErrContinuationLost is recorded when an asynchronous continuation was never invoked.
var ErrContinuationLost = errors.New("continuation never invoked")

// ErrSnapshotNotFound is returned when a graph snapshot cannot be found in a store.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// InvariantError describes which invariant broke and where.
type InvariantError struct {
	Where  string
	Detail string
}

// Invariant builds an InvariantError.
func Invariant(where, format string, args ...any) *InvariantError {
	return &InvariantError{Where: where, Detail: fmt.Sprintf(format, args...)}
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvariantViolation, e.Where, e.Detail)
}

func (e *InvariantError) Unwrap() error {
	return ErrInvariantViolation
}

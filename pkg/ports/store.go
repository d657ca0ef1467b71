package ports

import (
	"context"

	"github.com/aretw0/conduit/pkg/domain"
)

// SnapshotStore defines the interface for persisting graph snapshots.
// A snapshot carries the graph spec with its current parameter values, so a
// stopped graph can be rebuilt from it.
type SnapshotStore interface {
	// Save persists the snapshot under the given graph ID, replacing any previous one.
	Save(ctx context.Context, graphID string, snap *domain.GraphSnapshot) error

	// Load retrieves the snapshot for a given graph ID.
	// Returns domain.ErrSnapshotNotFound if none exists.
	Load(ctx context.Context, graphID string) (*domain.GraphSnapshot, error)

	// Delete removes the snapshot for a given graph ID. Deleting a missing
	// snapshot is not an error.
	Delete(ctx context.Context, graphID string) error

	// List returns the IDs of all stored snapshots.
	List(ctx context.Context) ([]string, error)
}

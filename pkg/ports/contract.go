package ports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/conduit/pkg/domain"
)

func contractSnapshot(graphID string) *domain.GraphSnapshot {
	return &domain.GraphSnapshot{
		GraphID: graphID,
		TakenAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Status:  domain.StatusPaused,
		Spec: domain.GraphSpec{
			ID: graphID,
			Nodes: []domain.NodeSpec{
				{ID: "count", Type: "counter", Params: map[string]any{"step": 2, "label": "bar"}},
				{ID: "print", Type: "printer"},
			},
			Connections: []domain.ConnectionSpec{{From: "count.value", To: "print.in"}},
		},
	}
}

// RunSnapshotStoreContract runs a suite of tests to verify that a SnapshotStore implementation
// adheres to the defined interface contract.
func RunSnapshotStoreContract(t *testing.T, store SnapshotStore) {
	ctx := context.Background()
	graphID := "contract-test-graph-" + time.Now().Format("20060102150405")

	t.Run("Save and Load", func(t *testing.T) {
		snap := contractSnapshot(graphID)

		err := store.Save(ctx, graphID, snap)
		require.NoError(t, err, "Save should not return error")

		loaded, err := store.Load(ctx, graphID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, graphID, loaded.GraphID)
		assert.Equal(t, domain.StatusPaused, loaded.Status)
		assert.True(t, snap.TakenAt.Equal(loaded.TakenAt))
		require.Len(t, loaded.Spec.Nodes, 2)
		assert.Equal(t, "bar", loaded.Spec.Nodes[0].Params["label"])
		// Numbers may come back as float64 depending on the encoding.
		assert.NotNil(t, loaded.Spec.Nodes[0].Params["step"])
		assert.Equal(t, snap.Spec.Connections, loaded.Spec.Connections)
	})

	t.Run("Save Overwrites", func(t *testing.T) {
		snap := contractSnapshot(graphID)
		snap.Status = domain.StatusStopped
		require.NoError(t, store.Save(ctx, graphID, snap))

		loaded, err := store.Load(ctx, graphID)
		require.NoError(t, err)
		assert.Equal(t, domain.StatusStopped, loaded.Status)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+graphID)
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
	})

	t.Run("Delete", func(t *testing.T) {
		err := store.Save(ctx, graphID, contractSnapshot(graphID))
		require.NoError(t, err)

		err = store.Delete(ctx, graphID)
		require.NoError(t, err, "Delete should not return error")

		_, err = store.Load(ctx, graphID)
		assert.ErrorIs(t, err, domain.ErrSnapshotNotFound, "Load after Delete should return ErrSnapshotNotFound")

		assert.NoError(t, store.Delete(ctx, graphID), "Delete of a missing snapshot should succeed")
	})

	t.Run("List", func(t *testing.T) {
		id1 := graphID + "-1"
		id2 := graphID + "-2"
		_ = store.Save(ctx, id1, contractSnapshot(id1))
		_ = store.Save(ctx, id2, contractSnapshot(id2))

		defer func() {
			_ = store.Delete(ctx, id1)
			_ = store.Delete(ctx, id2)
		}()

		graphs, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, graphs, id1)
		assert.Contains(t, graphs, id2)
	})
}

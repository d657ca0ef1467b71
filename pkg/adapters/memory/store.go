package memory

import (
	"context"
	"maps"
	"sort"
	"sync"

	"github.com/aretw0/conduit/pkg/domain"
)

// Store implements ports.SnapshotStore in memory.
// Safe for concurrent use.
type Store struct {
	data map[string]*domain.GraphSnapshot
	mu   sync.RWMutex
}

// NewStore creates a new in-memory store.
func NewStore() *Store {
	return &Store{
		data: make(map[string]*domain.GraphSnapshot),
	}
}

// Save persists a copy of the snapshot in memory.
func (s *Store) Save(ctx context.Context, graphID string, snap *domain.GraphSnapshot) error {
	copied := clone(snap)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[graphID] = copied
	return nil
}

// Load retrieves a copy of the snapshot from memory.
func (s *Store) Load(ctx context.Context, graphID string) (*domain.GraphSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.data[graphID]
	if !ok {
		return nil, domain.ErrSnapshotNotFound
	}
	return clone(snap), nil
}

// Delete removes the snapshot.
func (s *Store) Delete(ctx context.Context, graphID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, graphID)
	return nil
}

// List returns the stored graph ids in order.
func (s *Store) List(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// clone copies the parts of a snapshot a caller could mutate through shared
// maps and slices.
func clone(snap *domain.GraphSnapshot) *domain.GraphSnapshot {
	out := *snap
	out.Spec.Nodes = make([]domain.NodeSpec, len(snap.Spec.Nodes))
	for i, n := range snap.Spec.Nodes {
		n.Params = maps.Clone(n.Params)
		out.Spec.Nodes[i] = n
	}
	out.Spec.Connections = append([]domain.ConnectionSpec(nil), snap.Spec.Connections...)
	out.State.Nodes = make([]domain.NodeDescription, len(snap.State.Nodes))
	for i, n := range snap.State.Nodes {
		n.Params = maps.Clone(n.Params)
		n.Connectors = append([]domain.ConnectorDescription(nil), n.Connectors...)
		out.State.Nodes[i] = n
	}
	out.State.Connections = append([]domain.ConnectionDescription(nil), snap.State.Connections...)
	return &out
}

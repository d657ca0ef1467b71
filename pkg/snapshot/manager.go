package snapshot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aretw0/conduit/internal/logging"
	"github.com/aretw0/conduit/pkg/domain"
	"github.com/aretw0/conduit/pkg/ports"
)

// DefaultLockTTL bounds how long a distributed lock outlives a crashed holder.
const DefaultLockTTL = 30 * time.Second

// lockEntry holds the mutex and the reference count.
type lockEntry struct {
	mu   sync.Mutex
	refs int
}

// Manager orchestrates snapshot access, ensuring safe concurrent operations.
// It uses reference counting to garbage collect unused locks.
type Manager struct {
	store ports.SnapshotStore

	mu    sync.Mutex
	locks map[string]*lockEntry

	locker  ports.DistributedLocker
	lockTTL time.Duration
	logger  *slog.Logger
}

// Option configures the Manager.
type Option func(*Manager)

// WithLocker enables distributed locking.
func WithLocker(locker ports.DistributedLocker) Option {
	return func(m *Manager) {
		m.locker = locker
	}
}

// WithLockTTL sets the lease of distributed locks.
func WithLockTTL(ttl time.Duration) Option {
	return func(m *Manager) {
		m.lockTTL = ttl
	}
}

// WithLogger configures a logger for the Manager.
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a new snapshot Manager on top of store.
func NewManager(store ports.SnapshotStore, opts ...Option) *Manager {
	m := &Manager{
		store:   store,
		locks:   make(map[string]*lockEntry),
		lockTTL: DefaultLockTTL,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// acquire gets or creates a lock entry and increments its reference count.
// The caller MUST lock entry.mu, and then call release(graphID) after unlocking.
func (m *Manager) acquire(graphID string) *lockEntry {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[graphID]
	if !exists {
		entry = &lockEntry{}
		m.locks[graphID] = entry
	}
	entry.refs++
	return entry
}

// release decrements the reference count and deletes the entry if it reaches zero.
func (m *Manager) release(graphID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, exists := m.locks[graphID]
	if !exists {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(m.locks, graphID)
	}
}

// Load retrieves a snapshot from the store.
func (m *Manager) Load(ctx context.Context, graphID string) (*domain.GraphSnapshot, error) {
	var snap *domain.GraphSnapshot
	err := m.WithLock(ctx, graphID, func(ctx context.Context) error {
		var err error
		snap, err = m.store.Load(ctx, graphID)
		return err
	})
	return snap, err
}

// Save persists a snapshot.
func (m *Manager) Save(ctx context.Context, graphID string, snap *domain.GraphSnapshot) error {
	return m.WithLock(ctx, graphID, func(ctx context.Context) error {
		return m.store.Save(ctx, graphID, snap)
	})
}

// Update loads the snapshot, applies fn and saves the result under one lock.
// A missing snapshot reaches fn as a zero snapshot carrying graphID.
func (m *Manager) Update(ctx context.Context, graphID string, fn func(*domain.GraphSnapshot) error) error {
	return m.WithLock(ctx, graphID, func(ctx context.Context) error {
		snap, err := m.store.Load(ctx, graphID)
		switch {
		case errors.Is(err, domain.ErrSnapshotNotFound):
			snap = &domain.GraphSnapshot{GraphID: graphID}
		case err != nil:
			return fmt.Errorf("failed to load snapshot: %w", err)
		}
		if err := fn(snap); err != nil {
			return err
		}
		return m.store.Save(ctx, graphID, snap)
	})
}

// Delete removes the snapshot from the store.
func (m *Manager) Delete(ctx context.Context, graphID string) error {
	return m.WithLock(ctx, graphID, func(ctx context.Context) error {
		return m.store.Delete(ctx, graphID)
	})
}

// List delegates to the store.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	return m.store.List(ctx)
}

// Store returns the underlying snapshot store.
func (m *Manager) Store() ports.SnapshotStore {
	return m.store
}

// WithLock executes fn while holding the lock for the graph.
func (m *Manager) WithLock(ctx context.Context, graphID string, fn func(context.Context) error) error {
	entry := m.acquire(graphID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		m.release(graphID)
	}()

	if m.locker != nil {
		unlock, err := m.locker.Lock(ctx, graphID, m.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire distributed lock: %w", err)
		}
		defer func() {
			if err := unlock(ctx); err != nil {
				m.logger.Warn("failed to release distributed lock (will expire via TTL)",
					"graph_id", graphID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}

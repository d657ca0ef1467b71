package snapshot_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/conduit/pkg/adapters/memory"
	"github.com/aretw0/conduit/pkg/adapters/redis"
	"github.com/aretw0/conduit/pkg/domain"
	"github.com/aretw0/conduit/pkg/snapshot"
)

// SlowStore simulates latency to provoke race conditions if locking is missing.
type SlowStore struct {
	data map[string]domain.GraphSnapshot
	mu   sync.Mutex
}

func (s *SlowStore) Save(ctx context.Context, graphID string, snap *domain.GraphSnapshot) error {
	time.Sleep(5 * time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data == nil {
		s.data = make(map[string]domain.GraphSnapshot)
	}
	s.data[graphID] = *snap
	return nil
}

func (s *SlowStore) Load(ctx context.Context, graphID string) (*domain.GraphSnapshot, error) {
	time.Sleep(5 * time.Millisecond)
	s.mu.Lock()
	defer s.mu.Unlock()
	if snap, ok := s.data[graphID]; ok {
		return &snap, nil
	}
	return nil, domain.ErrSnapshotNotFound
}

func (s *SlowStore) Delete(ctx context.Context, graphID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, graphID)
	return nil
}

func (s *SlowStore) List(ctx context.Context) ([]string, error) {
	return nil, nil
}

func TestManager_UpdateIsSerialised(t *testing.T) {
	manager := snapshot.NewManager(&SlowStore{})
	ctx := context.Background()
	id := "race-test"

	var wg sync.WaitGroup
	const writers = 10
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := manager.Update(ctx, id, func(s *domain.GraphSnapshot) error {
				s.Spec.TickFrequency++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	snap, err := manager.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, snap.GraphID)
	assert.Equal(t, float64(writers), snap.Spec.TickFrequency, "read-modify-write lost updates")
}

func TestManager_UpdateErrorSkipsSave(t *testing.T) {
	manager := snapshot.NewManager(memory.NewStore())
	ctx := context.Background()
	boom := errors.New("boom")

	err := manager.Update(ctx, "g", func(*domain.GraphSnapshot) error { return boom })
	assert.ErrorIs(t, err, boom)

	_, err = manager.Load(ctx, "g")
	assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
}

func TestManager_SaveDeleteList(t *testing.T) {
	manager := snapshot.NewManager(memory.NewStore())
	ctx := context.Background()

	require.NoError(t, manager.Save(ctx, "a", &domain.GraphSnapshot{GraphID: "a"}))
	require.NoError(t, manager.Save(ctx, "b", &domain.GraphSnapshot{GraphID: "b"}))

	ids, err := manager.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)

	require.NoError(t, manager.Delete(ctx, "a"))
	ids, err = manager.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, ids)
}

func TestManager_DistributedLock(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	manager := snapshot.NewManager(
		redis.NewFromClient(client),
		snapshot.WithLocker(redis.NewLocker(client, "test:")),
		snapshot.WithLockTTL(5*time.Second),
	)
	ctx := context.Background()

	err = manager.WithLock(ctx, "g", func(ctx context.Context) error {
		assert.True(t, mr.Exists("test:lock:g"), "distributed lock should be held inside WithLock")
		return nil
	})
	require.NoError(t, err)
	assert.False(t, mr.Exists("test:lock:g"))

	require.NoError(t, manager.Save(ctx, "g", &domain.GraphSnapshot{GraphID: "g", Status: domain.StatusStopped}))
	snap, err := manager.Load(ctx, "g")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStopped, snap.Status)
}

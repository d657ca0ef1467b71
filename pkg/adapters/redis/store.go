package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/conduit/pkg/domain"
)

// DefaultPrefix namespaces snapshot keys.
const DefaultPrefix = "conduit:snapshot:"

// Store implements ports.SnapshotStore using Redis.
//
// Each graph keeps its latest snapshot as JSON under <prefix><graph id>.
// The <prefix>index sorted set is scored by the time the snapshot was taken,
// so List returns the most recently snapshotted graphs first. Expiry is left
// to Redis key TTLs; index members whose key is gone are dropped by List.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL expires snapshots that were not rewritten within ttl.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for snapshots.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a Redis store connected to address.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a store on an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: DefaultPrefix,
	}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

func (s *Store) key(graphID string) string {
	return s.prefix + graphID
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Save replaces the snapshot of graphID and moves it in the index to the
// time it was taken. Both writes happen in one transaction.
func (s *Store) Save(ctx context.Context, graphID string, snap *domain.GraphSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	taken := snap.TakenAt
	if taken.IsZero() {
		taken = time.Now()
	}

	_, err = s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.Set(ctx, s.key(graphID), data, s.ttl)
		pipe.ZAdd(ctx, s.indexKey(), backend.Z{
			Score:  float64(taken.UnixMilli()),
			Member: graphID,
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save snapshot of %q: %w", graphID, err)
	}
	return nil
}

// Load returns the latest snapshot of graphID.
func (s *Store) Load(ctx context.Context, graphID string) (*domain.GraphSnapshot, error) {
	val, err := s.client.Get(ctx, s.key(graphID)).Bytes()
	if err != nil {
		if errors.Is(err, backend.Nil) {
			return nil, domain.ErrSnapshotNotFound
		}
		return nil, fmt.Errorf("failed to load snapshot of %q: %w", graphID, err)
	}

	var snap domain.GraphSnapshot
	if err := json.Unmarshal(val, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot of %q: %w", graphID, err)
	}
	return &snap, nil
}

// Delete removes the snapshot and its index entry.
func (s *Store) Delete(ctx context.Context, graphID string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe backend.Pipeliner) error {
		pipe.Del(ctx, s.key(graphID))
		pipe.ZRem(ctx, s.indexKey(), graphID)
		return nil
	})
	return err
}

// List returns the ids of graphs with a live snapshot, newest first.
func (s *Store) List(ctx context.Context) ([]string, error) {
	graphs, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	if len(graphs) == 0 {
		return graphs, nil
	}

	exists := make([]*backend.IntCmd, len(graphs))
	_, err = s.client.Pipelined(ctx, func(pipe backend.Pipeliner) error {
		for i, id := range graphs {
			exists[i] = pipe.Exists(ctx, s.key(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	live := graphs[:0]
	var expired []any
	for i, id := range graphs {
		if exists[i].Val() > 0 {
			live = append(live, id)
		} else {
			expired = append(expired, id)
		}
	}
	if len(expired) > 0 {
		if err := s.client.ZRem(ctx, s.indexKey(), expired...).Err(); err != nil {
			return nil, fmt.Errorf("failed to prune expired snapshots: %w", err)
		}
	}
	return live, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}

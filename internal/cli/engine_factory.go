package cli

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"regexp"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/conduit"
	"github.com/aretw0/conduit/internal/loader"
	"github.com/aretw0/conduit/pkg/adapters/file"
	"github.com/aretw0/conduit/pkg/adapters/redis"
	"github.com/aretw0/conduit/pkg/domain"
	"github.com/aretw0/conduit/pkg/observability"
	"github.com/aretw0/conduit/pkg/persistence/middleware"
	"github.com/aretw0/conduit/pkg/ports"
	"github.com/aretw0/conduit/pkg/snapshot"
)

type persistence struct {
	store ports.SnapshotStore
	opts  []snapshot.Option
	close func() error
}

// SnapshotKeyEnv names the environment variable holding the base64 encoded
// AES-256 key used to encrypt snapshots.
const SnapshotKeyEnv = "CONDUIT_SNAPSHOT_KEY"

// SnapshotKeyFromEnv decodes the snapshot key; nil when the variable is unset.
func SnapshotKeyFromEnv() ([]byte, error) {
	raw := os.Getenv(SnapshotKeyEnv)
	if raw == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%s is not base64: %w", SnapshotKeyEnv, err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("%s must decode to 32 bytes, got %d", SnapshotKeyEnv, len(key))
	}
	return key, nil
}

// WrapStore applies redaction and encryption to store.
func WrapStore(store ports.SnapshotStore, key []byte, redact []string) ports.SnapshotStore {
	var mws []middleware.Middleware
	if len(redact) > 0 {
		mws = append(mws, middleware.NewRedactionMiddleware(redact))
	}
	if key != nil {
		mws = append(mws, middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: key}))
	}
	return middleware.Chain(store, mws...)
}

// openPersistence picks the snapshot backend. Redis wins over a directory;
// nil means snapshots are disabled.
func openPersistence(opts RunOptions, logger *slog.Logger) (*persistence, error) {
	p, err := openBackend(opts, logger)
	if err != nil || p == nil {
		return p, err
	}
	for _, pattern := range opts.Redact {
		if _, err := regexp.Compile(pattern); err != nil {
			p.close()
			return nil, fmt.Errorf("invalid redaction pattern %q: %w", pattern, err)
		}
	}
	p.store = WrapStore(p.store, opts.EncryptionKey, opts.Redact)
	return p, nil
}

func openBackend(opts RunOptions, logger *slog.Logger) (*persistence, error) {
	switch {
	case opts.RedisURL != "":
		redisOpts, err := backend.ParseURL(opts.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("invalid redis url: %w", err)
		}
		client := backend.NewClient(redisOpts)
		return &persistence{
			store: redis.NewFromClient(client),
			opts: []snapshot.Option{
				snapshot.WithLocker(redis.NewLocker(client, redis.DefaultPrefix)),
				snapshot.WithLogger(logger),
			},
			close: client.Close,
		}, nil
	case opts.SnapshotDir != "":
		return &persistence{
			store: file.New(opts.SnapshotDir),
			opts:  []snapshot.Option{snapshot.WithLogger(logger)},
			close: func() error { return nil },
		}, nil
	}
	return nil, nil
}

// createEngine loads the graph file and builds an engine with the CLI
// conventions: metrics always on, debug hooks in debug mode and an optional
// snapshot store. With Resume a stored snapshot of the same graph id takes
// precedence over the file.
func createEngine(ctx context.Context, opts RunOptions, logger *slog.Logger) (*conduit.Engine, func(), error) {
	spec, err := loader.Load(opts.GraphPath)
	if err != nil {
		return nil, nil, err
	}

	engineOpts := []conduit.Option{
		conduit.WithLogger(logger),
		conduit.WithMetrics(observability.NewMetrics()),
	}
	if opts.Debug {
		engineOpts = append(engineOpts, conduit.WithLifecycleHooks(createDebugHooks(logger)))
	}
	if opts.Frequency != nil {
		engineOpts = append(engineOpts, conduit.WithTickFrequency(*opts.Frequency))
	}
	if opts.Threadless {
		engineOpts = append(engineOpts, conduit.WithThreadless())
	}
	if opts.Strict {
		engineOpts = append(engineOpts, conduit.WithStrictSequencing())
	}
	if opts.Paused {
		engineOpts = append(engineOpts, conduit.WithInitiallyPaused())
	}
	if opts.Output != nil {
		engineOpts = append(engineOpts, conduit.WithOutput(opts.Output))
	}

	cleanup := func() {}
	p, err := openPersistence(opts, logger)
	if err != nil {
		return nil, nil, err
	}
	if p != nil {
		engineOpts = append(engineOpts, conduit.WithSnapshotStore(p.store, p.opts...))
		cleanup = func() {
			if err := p.close(); err != nil {
				logger.Warn("failed to close snapshot store", "error", err)
			}
		}
	}

	if opts.Resume && p != nil {
		snap, err := p.store.Load(ctx, spec.ID)
		switch {
		case err == nil:
			eng, err := conduit.NewFromSnapshot(snap, engineOpts...)
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("error restoring snapshot: %w", err)
			}
			logger.Info("Snapshot restored", "graph", spec.ID, "taken_at", snap.TakenAt)
			return eng, cleanup, nil
		case errors.Is(err, domain.ErrSnapshotNotFound):
			logger.Info("No snapshot to resume, starting fresh", "graph", spec.ID)
		default:
			cleanup()
			return nil, nil, err
		}
	}

	eng, err := conduit.New(spec, engineOpts...)
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("error initializing engine: %w", err)
	}
	return eng, cleanup, nil
}

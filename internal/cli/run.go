package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/conduit"
	httpAdapter "github.com/aretw0/conduit/pkg/adapters/http"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

// RunOptions contains all the configuration for the Run command.
type RunOptions struct {
	GraphPath   string
	Duration    time.Duration
	Addr        string
	LogLevel    string
	LogFormat   string
	SnapshotDir string
	RedisURL    string
	Resume      bool
	Frequency   *float64
	Threadless  bool
	Strict      bool
	Paused      bool
	Watch       bool
	Debug       bool

	// EncryptionKey seals stored snapshots with AES-256 when set.
	EncryptionKey []byte
	// Redact lists patterns of parameter names masked in stored snapshots.
	// Redacted values are restored masked on resume.
	Redact []string

	// Output receives printer output; nil means Stdout.
	Output io.Writer
	// Messages receives system messages; nil means Stdout.
	Messages io.Writer
}

func (o RunOptions) messages() io.Writer {
	if o.Messages != nil {
		return o.Messages
	}
	return os.Stdout
}

// Execute handles the 'run' command logic, dispatching to a single run or
// to watch mode.
func Execute(ctx context.Context, opts RunOptions) error {
	if opts.GraphPath == "" {
		return fmt.Errorf("a graph file is required")
	}
	logger, err := createLogger(opts)
	if err != nil {
		return err
	}

	sigCtx := NewSignalContext(ctx)
	defer sigCtx.Cancel()

	if opts.Watch {
		if opts.Duration > 0 {
			return fmt.Errorf("--watch and --duration cannot be used together")
		}
		return RunWatch(sigCtx, opts, logger)
	}

	eng, cleanup, err := createEngine(sigCtx, opts, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	runErr := runEngine(sigCtx, eng, opts, logger)
	logCompletion(opts.messages(), eng.ID(), runErr, sigCtx.Signal())
	return handleExecutionError(runErr)
}

// runEngine starts eng, optionally serves the HTTP API next to it and
// blocks until ctx is done, the duration elapsed or the engine halted.
func runEngine(ctx context.Context, eng *conduit.Engine, opts RunOptions, logger *slog.Logger) error {
	if opts.Duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Duration)
		defer cancel()
	}

	if err := eng.Start(ctx); err != nil {
		return err
	}
	defer eng.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return eng.Wait()
	})

	if opts.Addr != "" {
		srv := &http.Server{
			Addr: opts.Addr,
			Handler: httpAdapter.NewHandler(eng,
				httpAdapter.WithMetricsHandler(eng.Metrics().Handler()),
				httpAdapter.WithLogger(logger),
			),
		}
		g.Go(func() error {
			logger.Info("Starting HTTP server", "addr", opts.Addr)
			if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			select {
			case <-gctx.Done():
			case <-eng.Pool().Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("Graceful shutdown did not complete", "timeout", shutdownTimeout, "error", err)
				return srv.Close()
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/aretw0/conduit/internal/logging"
	"github.com/aretw0/conduit/pkg/domain"
)

// SignalContext wraps a context and captures the signal that cancelled it.
type SignalContext struct {
	context.Context
	Cancel func()
	stop   sync.Once
	sigCh  chan os.Signal
	sigVal os.Signal
	mu     sync.Mutex
}

// NewSignalContext creates a context that is cancelled on SIGINT or SIGTERM.
// Unlike signal.NotifyContext it remembers which signal arrived.
func NewSignalContext(parent context.Context) *SignalContext {
	ctx, cancel := context.WithCancel(parent)
	sc := &SignalContext{
		Context: ctx,
		Cancel:  cancel,
		sigCh:   make(chan os.Signal, 1),
	}

	signal.Notify(sc.sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sc.sigCh:
			sc.mu.Lock()
			sc.sigVal = sig
			sc.mu.Unlock()
			sc.Cancel()
		case <-sc.Context.Done():
		}
		sc.stop.Do(func() {
			signal.Stop(sc.sigCh)
		})
	}()

	return sc
}

// Signal returns the signal that caused the context to be cancelled, or nil.
func (sc *SignalContext) Signal() os.Signal {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.sigVal
}

// createLogger configures the application logger on Stderr, keeping Stdout
// for node output. Debug forces the debug level.
func createLogger(opts RunOptions) (*slog.Logger, error) {
	if opts.Debug {
		return logging.NewWithFormat(slog.LevelDebug, opts.LogFormat, os.Stderr), nil
	}
	if opts.LogLevel == "" {
		return logging.NewWithFormat(slog.LevelInfo, opts.LogFormat, os.Stderr), nil
	}
	level, err := logging.ParseLevel(opts.LogLevel)
	if err != nil {
		return nil, err
	}
	return logging.NewWithFormat(level, opts.LogFormat, os.Stderr), nil
}

// printSystemMessage prints a standardized system message.
func printSystemMessage(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, ">>> %s\n", fmt.Sprintf(format, args...))
}

func createDebugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnProcessStart: func(ctx context.Context, e *domain.NodeEvent) {
			logger.Debug("Process Start", "node_id", e.NodeID, "type", e.NodeType)
		},
		OnProcessFinish: func(ctx context.Context, e *domain.NodeEvent) {
			logger.Debug("Process Finish", "node_id", e.NodeID, "duration", e.Duration)
		},
		OnTokenPublished: func(ctx context.Context, e *domain.TokenEvent) {
			logger.Debug("Token Published", "node_id", e.NodeID, "connector", e.Connector, "seq", e.Seq, "marker", e.Marker)
		},
		OnNodeError: func(ctx context.Context, e *domain.NodeEvent) {
			if e.Error != nil {
				logger.Debug("Node Error", "node_id", e.NodeID, "level", e.Error.Level, "err", e.Error.Message)
			}
		},
	}
}

func isInterrupted(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func handleExecutionError(err error) error {
	if err == nil || isInterrupted(err) {
		return nil
	}
	return err
}

func logCompletion(w io.Writer, graphID string, err error, sig os.Signal) {
	switch {
	case err != nil && !isInterrupted(err):
		printSystemMessage(w, "Graph '%s' failed: %v", graphID, err)
	case sig == os.Interrupt:
		fmt.Fprintf(w, "[CTRL+C]\n")
		printSystemMessage(w, "Graph '%s' interrupted.", graphID)
	case sig != nil:
		printSystemMessage(w, "Graph '%s' terminated.", graphID)
	default:
		printSystemMessage(w, "Graph '%s' finished.", graphID)
	}
}

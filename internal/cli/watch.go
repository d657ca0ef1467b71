package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce lets a burst of write events settle before a restart.
var watchDebounce = 100 * time.Millisecond

// RunWatch runs the graph in development mode, rebuilding the engine each
// time the graph file changes. A graph that fails to load is retried on the
// next change.
func RunWatch(ctx *SignalContext, opts RunOptions, logger *slog.Logger) error {
	logger.Info("Starting Watcher", "path", opts.GraphPath)
	printSystemMessage(opts.messages(), "Watching '%s'.", opts.GraphPath)

	for {
		again, err := runWatchIteration(ctx, opts, logger)
		if err != nil || !again {
			return err
		}
		logger.Info("Watcher restarting")
	}
}

func runWatchIteration(parent *SignalContext, opts RunOptions, logger *slog.Logger) (bool, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	changed, err := watchFile(ctx, opts.GraphPath, logger)
	if err != nil {
		return false, err
	}

	eng, cleanup, err := createEngine(ctx, opts, logger)
	if err != nil {
		logger.Error("Engine initialization failed", "err", err)
		printSystemMessage(opts.messages(), "Waiting for changes...")
		select {
		case <-parent.Done():
			return false, nil
		case <-changed:
			return true, nil
		}
	}
	defer cleanup()

	done := make(chan error, 1)
	go func() {
		done <- runEngine(ctx, eng, opts, logger)
	}()

	select {
	case <-parent.Done():
		<-done
		logCompletion(opts.messages(), eng.ID(), context.Canceled, parent.Signal())
		logger.Info("Stopping watcher (signal received)", "signal", parent.Signal())
		return false, nil
	case <-changed:
		printSystemMessage(opts.messages(), "Change detected in '%s'.", opts.GraphPath)
		cancel()
		<-done
		return true, nil
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("Runtime error", "err", err)
		}
		printSystemMessage(opts.messages(), "Graph stopped, waiting for changes...")
		select {
		case <-parent.Done():
			return false, nil
		case <-changed:
			return true, nil
		}
	}
}

// watchFile closes the returned channel once path is written or replaced.
// The parent directory is watched so editors that save by renaming a
// temporary file over path are noticed too.
func watchFile(ctx context.Context, path string, logger *slog.Logger) (<-chan struct{}, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create graph watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("failed to watch %q: %w", path, err)
	}

	changed := make(chan struct{})
	go func() {
		defer w.Close()

		var settle <-chan time.Time
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs || ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				logger.Debug("Graph file changed", "path", path, "op", ev.Op.String())
				settle = time.After(watchDebounce)
			case <-settle:
				close(changed)
				return
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.Warn("Graph watcher failed", "err", err)
			case <-ctx.Done():
				return
			}
		}
	}()
	return changed, nil
}

package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/aretw0/conduit/pkg/domain"
)

// group is one goroutine draining the tasks of the workers bound to it.
type group struct {
	id   int
	name string
	pool *Pool

	mu    sync.Mutex
	queue []func()
	wake  chan struct{}

	workers  atomic.Int64
	executed atomic.Int64
}

func newGroup(p *Pool, id int, name string) *group {
	return &group{id: id, name: name, pool: p, wake: make(chan struct{}, 1)}
}

// Execute queues task. It implements engine.Executor.
func (g *group) Execute(task func()) {
	g.pool.track(1)
	g.mu.Lock()
	g.queue = append(g.queue, task)
	g.mu.Unlock()

	select {
	case g.wake <- struct{}{}:
	default:
	}
}

func (g *group) queued() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.queue)
}

func (g *group) next(ctx context.Context) (func(), bool) {
	for {
		g.mu.Lock()
		if len(g.queue) > 0 {
			task := g.queue[0]
			g.queue[0] = nil
			g.queue = g.queue[1:]
			g.mu.Unlock()
			return task, true
		}
		g.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, false
		case <-g.wake:
		}
	}
}

// loop drains the queue until ctx is done or a task panics.
func (g *group) loop(ctx context.Context) error {
	g.pool.logger.Debug("group started", "group", g.name)
	defer g.pool.logger.Debug("group stopped", "group", g.name)

	for {
		task, ok := g.next(ctx)
		if !ok {
			return nil
		}
		err := g.run(task)
		g.executed.Add(1)
		g.pool.track(-1)
		if err != nil {
			return err
		}
	}
}

func (g *group) run(task func()) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		err = contain(r)
		g.pool.logger.Error("group halted",
			"group", g.name, "error", err, "stack", string(debug.Stack()))
	}()
	task()
	return nil
}

// contain maps a recovered panic value to the error that halts the pool.
func contain(r any) error {
	switch v := r.(type) {
	case *domain.InvariantError:
		return v
	case error:
		return fmt.Errorf("%w: %w", domain.ErrFatal, v)
	default:
		return fmt.Errorf("%w: %v", domain.ErrFatal, v)
	}
}

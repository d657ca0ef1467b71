package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/conduit/pkg/engine"
	"github.com/aretw0/conduit/pkg/signal"
)

// Group ids. Non-negative ids name shared groups; PrivateGroup gives the
// worker a goroutine of its own.
const (
	DefaultGroup = 0
	PrivateGroup = -1
)

var (
	// ErrNotRunning is returned by operations that need a started pool.
	ErrNotRunning = errors.New("scheduler: pool is not running")
	// ErrPaused is returned by Step while the pool is paused.
	ErrPaused = errors.New("scheduler: pool is paused")
	// ErrAlreadyStarted is returned by a second Start.
	ErrAlreadyStarted = errors.New("scheduler: pool already started")
)

// freeRunInterval separates ticks of a free-running clock.
const freeRunInterval = time.Millisecond

// Worker is what the pool needs from a node worker.
type Worker interface {
	ID() string
	SetExecutor(exec engine.Executor)
	SetGroup(g int)
	Tick() bool
	IsSource() bool
	TickEnabled() bool
	IsStopped() bool
	SetPaused(paused bool)
	Stop()
}

// GroupStats describes one group.
type GroupStats struct {
	ID       int    `json:"id"`
	Name     string `json:"name"`
	Workers  int    `json:"workers"`
	Queued   int    `json:"queued"`
	Executed int64  `json:"executed"`
}

type binding struct {
	worker Worker
	group  *group
}

// Pool runs workers on a fixed set of group goroutines plus a clock.
type Pool struct {
	logger     *slog.Logger
	frequency  float64
	threadless bool
	onError    func(error)

	mu       sync.Mutex
	idle     *sync.Cond
	groups   map[string]*group
	bindings []binding
	pending  int
	paused   bool
	stepping bool

	ctx     context.Context
	cancel  context.CancelFunc
	eg      *errgroup.Group
	done    chan struct{}
	err     error
	started bool
	halted  bool

	// Paused fires whenever the pause flag changes.
	Paused signal.Signal[bool]
	// BeginStep and EndStep bracket every Step.
	BeginStep signal.Signal[struct{}]
	EndStep   signal.Signal[struct{}]
}

// New creates a pool. Workers can be added before or after Start.
func New(opts ...Option) *Pool {
	p := &Pool{groups: make(map[string]*group)}
	defaults(p)
	for _, opt := range opts {
		opt(p)
	}
	p.idle = sync.NewCond(&p.mu)
	return p
}

// Add binds w to a group. Tasks posted before Start are queued and run once
// the pool starts.
func (p *Pool) Add(w Worker, groupID int) error {
	p.mu.Lock()
	if p.halted {
		p.mu.Unlock()
		return ErrNotRunning
	}
	for _, b := range p.bindings {
		if b.worker.ID() == w.ID() {
			p.mu.Unlock()
			return fmt.Errorf("scheduler: worker %q already added", w.ID())
		}
	}

	if p.threadless {
		groupID = DefaultGroup
	}
	name := fmt.Sprintf("group-%d", groupID)
	if groupID < 0 {
		name = "private-" + w.ID()
	}
	g, exists := p.groups[name]
	if !exists {
		g = newGroup(p, groupID, name)
		p.groups[name] = g
		if p.started {
			p.spawn(g)
		}
	}
	g.workers.Add(1)
	p.bindings = append(p.bindings, binding{worker: w, group: g})
	paused := p.paused
	p.mu.Unlock()

	w.SetGroup(groupID)
	w.SetExecutor(g)
	if paused {
		w.SetPaused(true)
	}
	p.logger.Debug("worker bound", "node", w.ID(), "group", name)
	return nil
}

// Remove unbinds the worker with the given id. Its queued tasks still run.
func (p *Pool) Remove(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, b := range p.bindings {
		if b.worker.ID() == id {
			b.group.workers.Add(-1)
			p.bindings = append(p.bindings[:i:i], p.bindings[i+1:]...)
			return true
		}
	}
	return false
}

// Start launches one goroutine per group and the clock. The pool runs until
// ctx is cancelled, Stop is called or a group halts.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true

	ctx, p.cancel = context.WithCancel(ctx)
	p.eg, p.ctx = errgroup.WithContext(ctx)
	p.done = make(chan struct{})

	for _, g := range p.groups {
		p.spawn(g)
	}
	p.eg.Go(func() error { return p.clock(p.ctx) })
	p.eg.Go(func() error {
		<-p.ctx.Done()
		p.release()
		return nil
	})

	go p.finish()
	p.logger.Info("pool started", "groups", len(p.groups), "tick_frequency", p.frequency)
	return nil
}

// spawn runs g on the errgroup. Caller holds p.mu.
func (p *Pool) spawn(g *group) {
	ctx := p.ctx
	p.eg.Go(func() error { return g.loop(ctx) })
}

func (p *Pool) finish() {
	err := p.eg.Wait()

	p.mu.Lock()
	p.err = err
	p.halted = true
	p.idle.Broadcast()
	p.mu.Unlock()

	if err != nil {
		p.logger.Error("pool halted", "error", err)
		if p.onError != nil {
			p.onError(err)
		}
	} else {
		p.logger.Info("pool stopped")
	}
	close(p.done)
}

// release stops every worker so that goroutines blocked on a paused worker
// return, and wakes Step callers.
func (p *Pool) release() {
	for _, w := range p.workers() {
		w.Stop()
	}
	p.mu.Lock()
	p.halted = true
	p.idle.Broadcast()
	p.mu.Unlock()
}

// Stop cancels the pool, stops every worker and waits for the goroutines.
func (p *Pool) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	started := p.started
	p.mu.Unlock()

	if !started {
		for _, w := range p.workers() {
			w.Stop()
		}
		return
	}
	cancel()
	<-p.done
}

// Wait blocks until the pool has stopped and returns the error that halted
// it, nil after a regular Stop.
func (p *Pool) Wait() error {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return nil
	}
	<-done

	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

// Done is closed once the pool stopped; nil before Start.
func (p *Pool) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.done
}

// SetPause pauses or resumes the clock and every worker.
func (p *Pool) SetPause(paused bool) {
	p.mu.Lock()
	changed := p.paused != paused
	p.paused = paused
	p.mu.Unlock()

	for _, w := range p.workers() {
		w.SetPaused(paused)
	}
	if changed {
		p.logger.Info("pool paused", "paused", paused)
		p.Paused.Emit(paused)
	}
}

// IsPaused reports the pause flag.
func (p *Pool) IsPaused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.paused
}

// Step ticks every source once and waits until all queued work drained.
// Continuations completed later by other goroutines are not waited for.
func (p *Pool) Step(ctx context.Context) error {
	p.mu.Lock()
	switch {
	case !p.started || p.halted:
		p.mu.Unlock()
		return ErrNotRunning
	case p.paused:
		p.mu.Unlock()
		return ErrPaused
	}
	p.stepping = true
	p.mu.Unlock()

	defer func() {
		p.mu.Lock()
		p.stepping = false
		p.mu.Unlock()
	}()

	p.BeginStep.Emit(struct{}{})
	p.tickSources()
	err := p.waitIdle(ctx)
	p.EndStep.Emit(struct{}{})
	return err
}

// waitIdle blocks until no task is queued or running.
func (p *Pool) waitIdle(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		p.mu.Lock()
		p.idle.Broadcast()
		p.mu.Unlock()
	})
	defer stop()

	p.mu.Lock()
	defer p.mu.Unlock()
	for p.pending > 0 && !p.halted {
		if err := ctx.Err(); err != nil {
			return err
		}
		p.idle.Wait()
	}
	if p.halted {
		if p.err != nil {
			return p.err
		}
		return ErrNotRunning
	}
	return nil
}

// track adjusts the count of queued or running tasks.
func (p *Pool) track(delta int) {
	p.mu.Lock()
	p.pending += delta
	if p.pending <= 0 {
		p.pending = 0
		p.idle.Broadcast()
	}
	p.mu.Unlock()
}

// clock ticks the sources until ctx is done.
func (p *Pool) clock(ctx context.Context) error {
	switch {
	case p.frequency == 0:
		<-ctx.Done()
		return nil
	case p.frequency < 0:
		for {
			p.mu.Lock()
			skip := p.paused || p.stepping
			p.mu.Unlock()
			if !skip {
				p.tickSources()
				if err := p.waitIdle(ctx); err != nil {
					return nil
				}
			}
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(freeRunInterval):
			}
		}
	}

	ticker := time.NewTicker(time.Duration(float64(time.Second) / p.frequency))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			p.mu.Lock()
			skip := p.paused || p.stepping
			p.mu.Unlock()
			if !skip {
				p.tickSources()
			}
		}
	}
}

func (p *Pool) tickSources() {
	for _, w := range p.workers() {
		if w.IsStopped() || !w.TickEnabled() || !w.IsSource() {
			continue
		}
		w.Tick()
	}
}

func (p *Pool) workers() []Worker {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Worker, 0, len(p.bindings))
	for _, b := range p.bindings {
		out = append(out, b.worker)
	}
	return out
}

// Stats returns one entry per group, ordered by name.
func (p *Pool) Stats() []GroupStats {
	p.mu.Lock()
	groups := make([]*group, 0, len(p.groups))
	for _, g := range p.groups {
		groups = append(groups, g)
	}
	p.mu.Unlock()

	sort.Slice(groups, func(i, j int) bool { return groups[i].name < groups[j].name })
	out := make([]GroupStats, 0, len(groups))
	for _, g := range groups {
		out = append(out, GroupStats{
			ID:       g.id,
			Name:     g.name,
			Workers:  int(g.workers.Load()),
			Queued:   g.queued(),
			Executed: g.executed.Load(),
		})
	}
	return out
}

package conduit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aretw0/conduit/internal/loader"
	"github.com/aretw0/conduit/internal/logging"
	"github.com/aretw0/conduit/internal/validator"
	"github.com/aretw0/conduit/pkg/domain"
	"github.com/aretw0/conduit/pkg/engine"
	"github.com/aretw0/conduit/pkg/nodes"
	"github.com/aretw0/conduit/pkg/observability"
	"github.com/aretw0/conduit/pkg/ports"
	"github.com/aretw0/conduit/pkg/registry"
	"github.com/aretw0/conduit/pkg/scheduler"
	"github.com/aretw0/conduit/pkg/signal"
	"github.com/aretw0/conduit/pkg/snapshot"
)

// ErrAlreadyStarted is returned by a second Start.
var ErrAlreadyStarted = errors.New("engine already started")

// Engine is the high-level entry point of the conduit library.
// It builds a graph from a spec and runs it on a scheduler pool.
type Engine struct {
	id       string
	spec     domain.GraphSpec
	registry *registry.Registry
	graph    *engine.Graph
	pool     *scheduler.Pool
	logger   *slog.Logger
	metrics  *observability.Metrics
	manager  *snapshot.Manager

	hooks         domain.LifecycleHooks
	out           io.Writer
	tickFrequency *float64
	threadless    bool
	strict        bool
	paused        bool
	contTimeout   time.Duration

	mu      sync.Mutex
	status  domain.ExecutionStatus
	started bool

	events signal.Signal[domain.Event]
}

// Option defines a functional option for configuring the Engine.
type Option func(*Engine)

// WithRegistry uses reg to resolve node types. By default a registry with
// the built-in message and node types is created.
func WithRegistry(reg *registry.Registry) Option {
	return func(e *Engine) {
		e.registry = reg
	}
}

// WithLogger sets a custom structured logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithLifecycleHooks registers observability hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(e *Engine) {
		e.hooks = e.hooks.Merge(hooks)
	}
}

// WithMetrics records Prometheus metrics for the engine.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithSnapshotStore enables Snapshot persistence and a final snapshot on Stop.
func WithSnapshotStore(store ports.SnapshotStore, opts ...snapshot.Option) Option {
	return func(e *Engine) {
		e.manager = snapshot.NewManager(store, opts...)
	}
}

// WithTickFrequency overrides the tick frequency of the graph spec, in Hz.
// Zero means manual stepping, a negative value free-runs.
func WithTickFrequency(hz float64) Option {
	return func(e *Engine) {
		e.tickFrequency = &hz
	}
}

// WithThreadless runs every node on a single goroutine.
func WithThreadless() Option {
	return func(e *Engine) {
		e.threadless = true
	}
}

// WithStrictSequencing treats sequence mismatches between joined inputs or
// between the outputs of a node as protocol errors that halt the engine.
func WithStrictSequencing() Option {
	return func(e *Engine) {
		e.strict = true
	}
}

// WithInitiallyPaused starts the engine paused.
func WithInitiallyPaused() Option {
	return func(e *Engine) {
		e.paused = true
	}
}

// WithContinuationTimeout bounds asynchronous rounds.
func WithContinuationTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.contTimeout = d
	}
}

// WithOutput sets where the built-in printer nodes write when the default
// registry is used.
func WithOutput(w io.Writer) Option {
	return func(e *Engine) {
		e.out = w
	}
}

// New validates spec, instantiates its nodes through the registry, applies
// parameters, wires connections and binds every worker to a scheduler pool.
// The engine does not run until Start.
func New(spec *domain.GraphSpec, opts ...Option) (*Engine, error) {
	if spec == nil {
		return nil, fmt.Errorf("graph spec is nil")
	}
	e := &Engine{status: domain.StatusCreated}
	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = logging.NewNop()
	}
	if e.registry == nil {
		reg, err := defaultRegistry(e.logger, e.out)
		if err != nil {
			return nil, err
		}
		e.registry = reg
	}

	e.spec = cloneSpec(spec)
	e.id = e.spec.ID
	if e.id == "" {
		e.id = uuid.NewString()
		e.spec.ID = e.id
	}
	e.logger = e.logger.With("graph", e.id)

	if err := validator.ValidateGraph(&e.spec, e.registry); err != nil {
		return nil, fmt.Errorf("invalid graph %q: %w", e.id, err)
	}
	if err := e.build(); err != nil {
		e.graph.Stop()
		return nil, err
	}
	return e, nil
}

// NewFromSnapshot rebuilds an engine from a persisted snapshot. A snapshot
// taken while paused yields a paused engine.
func NewFromSnapshot(snap *domain.GraphSnapshot, opts ...Option) (*Engine, error) {
	if snap == nil {
		return nil, fmt.Errorf("snapshot is nil")
	}
	spec := snap.Spec
	if spec.ID == "" {
		spec.ID = snap.GraphID
	}
	if snap.Status == domain.StatusPaused {
		opts = append([]Option{WithInitiallyPaused()}, opts...)
	}
	return New(&spec, opts...)
}

// Open loads a YAML or JSON graph file and builds an engine from it.
func Open(path string, opts ...Option) (*Engine, error) {
	spec, err := loader.Load(path)
	if err != nil {
		return nil, err
	}
	return New(spec, opts...)
}

func defaultRegistry(logger *slog.Logger, out io.Writer) (*registry.Registry, error) {
	reg := registry.NewRegistry(registry.WithLogger(logger))
	if err := reg.Init(); err != nil {
		return nil, fmt.Errorf("failed to init registry: %w", err)
	}
	var nodeOpts []nodes.Option
	if out != nil {
		nodeOpts = append(nodeOpts, nodes.WithOutput(out))
	}
	if err := nodes.Register(reg, nodeOpts...); err != nil {
		return nil, fmt.Errorf("failed to register nodes: %w", err)
	}
	return reg, nil
}

func (e *Engine) build() error {
	hooks := e.hooks
	if e.metrics != nil {
		hooks = hooks.Merge(e.metrics.Hooks())
	}
	hooks = hooks.Merge(domain.EmitTo(e.events.Emit))

	graphOpts := []engine.Option{
		engine.WithLogger(e.logger),
		engine.WithHooks(hooks),
		engine.WithGraphID(e.id),
		engine.WithStrictSequencing(e.strict),
	}
	if e.contTimeout > 0 {
		graphOpts = append(graphOpts, engine.WithContinuationTimeout(e.contTimeout))
	}
	e.graph = engine.NewGraph(graphOpts...)

	frequency := domain.DefaultTickFrequency
	if e.spec.TickFrequency != 0 {
		frequency = e.spec.TickFrequency
	}
	if e.tickFrequency != nil {
		frequency = *e.tickFrequency
	}
	poolOpts := []scheduler.Option{
		scheduler.WithLogger(e.logger),
		scheduler.WithTickFrequency(frequency),
		scheduler.WithErrorHandler(e.halted),
	}
	if e.threadless {
		poolOpts = append(poolOpts, scheduler.WithThreadless())
	}
	if e.paused {
		poolOpts = append(poolOpts, scheduler.WithInitiallyPaused())
	}
	e.pool = scheduler.New(poolOpts...)

	for _, n := range e.spec.Nodes {
		body, err := e.registry.NewNode(n.Type)
		if err != nil {
			return fmt.Errorf("node %q: %w", n.ID, err)
		}
		var nodeOpts []engine.Option
		if n.NoTick {
			nodeOpts = append(nodeOpts, engine.WithTickDisabled())
		}
		w, err := e.graph.AddNode(n.ID, n.Type, body, nodeOpts...)
		if err != nil {
			return err
		}
		if err := w.Parameters().Apply(n.Params); err != nil {
			return fmt.Errorf("node %q: %w", n.ID, err)
		}
		if n.Disabled {
			w.SetEnabled(false)
		}
	}

	for _, c := range e.spec.Connections {
		if _, err := e.graph.Connect(c.From, c.To); err != nil {
			return fmt.Errorf("connection %s -> %s: %w", c.From, c.To, err)
		}
	}

	for _, n := range e.spec.Nodes {
		w, _ := e.graph.Worker(n.ID)
		if err := e.pool.Add(w, n.Group); err != nil {
			return fmt.Errorf("node %q: %w", n.ID, err)
		}
	}
	return nil
}

// Start runs the engine until ctx is cancelled, Stop is called or a node
// violates the protocol.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return ErrAlreadyStarted
	}
	e.started = true
	e.mu.Unlock()

	if err := e.pool.Start(ctx); err != nil {
		return err
	}
	e.setStatus(e.runningStatus())

	done := e.pool.Done()
	go func() {
		<-done
		e.mu.Lock()
		if e.status != domain.StatusFailed {
			e.status = domain.StatusStopped
		}
		e.mu.Unlock()
	}()

	e.logger.Info("engine started", "nodes", len(e.spec.Nodes), "connections", len(e.spec.Connections))
	return nil
}

func (e *Engine) halted(err error) {
	e.setStatus(domain.StatusFailed)
	e.logger.Error("engine halted", "error", err)
}

// Stop halts the scheduler and every node. When a snapshot store is
// configured the final state is persisted.
func (e *Engine) Stop() {
	e.pool.Stop()
	e.mu.Lock()
	if e.status != domain.StatusFailed {
		e.status = domain.StatusStopped
	}
	e.mu.Unlock()

	if e.manager != nil {
		if _, err := e.Snapshot(context.Background()); err != nil {
			e.logger.Warn("failed to persist final snapshot", "error", err)
		}
	}
}

// Wait blocks until the engine stopped and returns the error that halted it.
func (e *Engine) Wait() error {
	return e.pool.Wait()
}

// Pause pauses or resumes the clock and every node.
func (e *Engine) Pause(paused bool) {
	e.pool.SetPause(paused)
	e.mu.Lock()
	if e.status == domain.StatusRunning || e.status == domain.StatusPaused {
		e.status = e.runningStatusLocked()
	}
	e.mu.Unlock()
}

// Step ticks every source once and waits until the graph is quiet.
func (e *Engine) Step(ctx context.Context) error {
	return e.pool.Step(ctx)
}

// Status reports the execution status.
func (e *Engine) Status() domain.ExecutionStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Engine) setStatus(s domain.ExecutionStatus) {
	e.mu.Lock()
	e.status = s
	e.mu.Unlock()
}

func (e *Engine) runningStatus() domain.ExecutionStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runningStatusLocked()
}

func (e *Engine) runningStatusLocked() domain.ExecutionStatus {
	if e.pool.IsPaused() {
		return domain.StatusPaused
	}
	return domain.StatusRunning
}

// SetParam sets a node parameter while the engine runs.
func (e *Engine) SetParam(nodeID, name string, value any) error {
	w, ok := e.graph.Worker(nodeID)
	if !ok {
		return fmt.Errorf("%w: %s", domain.ErrNodeNotFound, nodeID)
	}
	return w.Parameters().Set(name, value)
}

// Inspect returns a point-in-time description of the running graph.
func (e *Engine) Inspect() domain.GraphDescription {
	return e.graph.Describe()
}

// Node describes a single node, including the token held by each of its
// inputs and the last token committed by each output. Tokens whose type
// cannot be serialized are logged and left out.
func (e *Engine) Node(id string) (domain.NodeDescription, bool) {
	w, ok := e.graph.Worker(id)
	if !ok {
		return domain.NodeDescription{}, false
	}
	desc := w.Describe()

	held := make(map[string]*domain.Token)
	for _, in := range w.Inputs() {
		if tok := in.Token(); tok != nil {
			held[in.ID()] = tok
		}
	}
	for _, out := range w.Outputs() {
		if tok := out.Committed(); tok != nil {
			held[out.ID()] = tok
		}
	}
	for i, c := range desc.Connectors {
		tok, ok := held[c.ID]
		if !ok {
			continue
		}
		doc, err := e.registry.Encode(tok)
		if err != nil {
			e.logger.Warn("dropping token from inspection", "node", id, "connector", c.ID, "error", err)
			continue
		}
		desc.Connectors[i].Token = doc
	}
	return desc, true
}

// Snapshot captures the graph spec with current parameter values and the live
// state. It is persisted when a snapshot store is configured.
func (e *Engine) Snapshot(ctx context.Context) (*domain.GraphSnapshot, error) {
	spec := cloneSpec(&e.spec)
	for i, n := range spec.Nodes {
		if w, ok := e.graph.Worker(n.ID); ok {
			spec.Nodes[i].Params = w.Parameters().Values()
		}
	}
	snap := &domain.GraphSnapshot{
		GraphID: e.id,
		TakenAt: time.Now().UTC(),
		Status:  e.Status(),
		Spec:    spec,
		State:   e.graph.Describe(),
	}
	if e.manager != nil {
		if err := e.manager.Save(ctx, e.id, snap); err != nil {
			return nil, fmt.Errorf("failed to save snapshot: %w", err)
		}
	}
	return snap, nil
}

// Subscribe registers fn for every lifecycle event. fn runs on node
// goroutines and must not block.
func (e *Engine) Subscribe(fn func(domain.Event)) (unsubscribe func()) {
	return e.events.Subscribe(fn)
}

// Events streams lifecycle events until ctx is done. Events are dropped
// while the buffer of size n is full.
func (e *Engine) Events(ctx context.Context, n int) <-chan domain.Event {
	ch := make(chan domain.Event, n)
	var mu sync.Mutex
	closed := false
	unsubscribe := e.events.Subscribe(func(ev domain.Event) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- ev:
		default:
		}
	})
	context.AfterFunc(ctx, func() {
		unsubscribe()
		mu.Lock()
		closed = true
		close(ch)
		mu.Unlock()
	})
	return ch
}

// ID returns the graph id.
func (e *Engine) ID() string { return e.id }

// Spec returns a copy of the graph spec the engine was built from.
func (e *Engine) Spec() domain.GraphSpec { return cloneSpec(&e.spec) }

// Graph exposes the underlying engine graph.
func (e *Engine) Graph() *engine.Graph { return e.graph }

// Pool exposes the scheduler.
func (e *Engine) Pool() *scheduler.Pool { return e.pool }

// Registry returns the registry nodes were resolved with.
func (e *Engine) Registry() *registry.Registry { return e.registry }

// Metrics returns the configured metrics, nil when none.
func (e *Engine) Metrics() *observability.Metrics { return e.metrics }

// Snapshots returns the snapshot manager, nil without a store.
func (e *Engine) Snapshots() *snapshot.Manager { return e.manager }

func cloneSpec(spec *domain.GraphSpec) domain.GraphSpec {
	out := *spec
	out.Nodes = make([]domain.NodeSpec, len(spec.Nodes))
	for i, n := range spec.Nodes {
		n.Params = maps.Clone(n.Params)
		out.Nodes[i] = n
	}
	out.Connections = append([]domain.ConnectionSpec(nil), spec.Connections...)
	return out
}

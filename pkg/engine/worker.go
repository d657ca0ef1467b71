package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aretw0/conduit/pkg/domain"
	"github.com/aretw0/conduit/pkg/signal"
)

// NodeWorker drives one node body: it owns the body's connectors, decides
// when a round can be processed and publishes the results.
type NodeWorker struct {
	id       string
	typeName string
	body     Node
	opts     options
	logger   *slog.Logger
	box      mailbox

	ctx    context.Context
	cancel context.CancelFunc

	inputs  *InputTransition
	outputs *OutputTransition
	params  *Parameters

	ioMu          sync.RWMutex
	slots         []*Slot
	triggers      []*Trigger
	connectors    []Connector
	counters      map[domain.ConnectorKind]int
	paramInputs   map[string]*Input
	paramOutputs  map[string]*Output
	paramSlots    map[string]*Slot
	paramTriggers map[string]*Trigger

	stateMu         sync.Mutex
	state           domain.WorkerState
	enabled         bool
	ioError         bool
	sourceFlag      bool
	sinkFlag        bool
	tickEnabled     bool
	messagesWaiting bool
	roundActive     bool
	nodeErr         domain.NodeError
	ticks           int64
	rounds          int64
	history         []domain.TimerRecord
	historyNext     int
	group           int

	pauseMu   sync.Mutex
	pauseCond *sync.Cond
	paused    bool
	stopped   atomic.Bool

	contMu sync.Mutex
	cont   *continuation

	tickQueued atomic.Bool
	unsubs     []func()

	// ErrorChanged fires whenever the node error state changes.
	ErrorChanged signal.Signal[domain.NodeError]
	// StateChanged fires on every worker state transition.
	StateChanged signal.Signal[domain.WorkerState]
	// Processed fires after every body invocation with its timing.
	Processed signal.Signal[domain.TimerRecord]
}

// NewWorker wraps body, runs its Setup and declares its parameters.
func NewWorker(id, typeName string, body Node, opts ...Option) (*NodeWorker, error) {
	if id == "" {
		return nil, fmt.Errorf("worker id must not be empty")
	}
	if !processes(body) {
		return nil, fmt.Errorf("node %s: body %T implements no processing interface", id, body)
	}

	o := applyOptions(defaultOptions(), opts)
	logger := o.logger.With("node", id, "type", typeName)

	w := &NodeWorker{
		id:            id,
		typeName:      typeName,
		body:          body,
		opts:          o,
		logger:        logger,
		inputs:        newInputTransition(),
		outputs:       newOutputTransition(logger, o.strict),
		params:        NewParameters(),
		counters:      make(map[domain.ConnectorKind]int),
		paramInputs:   make(map[string]*Input),
		paramOutputs:  make(map[string]*Output),
		paramSlots:    make(map[string]*Slot),
		paramTriggers: make(map[string]*Trigger),
		state:         domain.WorkerIdle,
		enabled:       true,
		tickEnabled:   !o.tickDisabled,
		history:       make([]domain.TimerRecord, 0, o.historyLength),
	}
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.pauseCond = sync.NewCond(&w.pauseMu)
	w.box.setExecutor(o.executor)
	w.outputs.onCommit = w.tokenCommitted

	w.unsubs = append(w.unsubs,
		w.outputs.MessagesProcessed.Subscribe(func(struct{}) {
			w.post(w.onMessagesProcessed)
		}),
		w.params.Added.Subscribe(w.makeParameterConnectable),
		w.params.Changed.Subscribe(func(p *Param) {
			w.post(func() { w.parameterChanged(p) })
		}),
	)

	if err := body.Setup(w); err != nil {
		return nil, fmt.Errorf("node %s: setup: %w", id, err)
	}
	if ps, ok := body.(ParameterSetup); ok {
		ps.SetupParameters(w.params)
	}
	return w, nil
}

func processes(body Node) bool {
	switch body.(type) {
	case AsyncProcessor, IOProcessor, Processor, Ticker:
		return true
	}
	return false
}

func (w *NodeWorker) ID() string                          { return w.id }
func (w *NodeWorker) TypeName() string                    { return w.typeName }
func (w *NodeWorker) Body() Node                          { return w.body }
func (w *NodeWorker) Logger() *slog.Logger                { return w.logger }
func (w *NodeWorker) Parameters() *Parameters             { return w.params }
func (w *NodeWorker) InputTransition() *InputTransition   { return w.inputs }
func (w *NodeWorker) OutputTransition() *OutputTransition { return w.outputs }

// SetExecutor rebinds the worker's mailbox, e.g. to a scheduler group.
func (w *NodeWorker) SetExecutor(exec Executor) { w.box.setExecutor(exec) }

func (w *NodeWorker) post(task func()) { w.box.post(task) }

// Group returns the scheduler group the worker is bound to.
func (w *NodeWorker) Group() int {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	return w.group
}

// SetGroup records the scheduler group binding.
func (w *NodeWorker) SetGroup(g int) {
	w.stateMu.Lock()
	w.group = g
	w.stateMu.Unlock()
}

// --- Modifier ---

// AddInput declares a data input.
func (w *NodeWorker) AddInput(typ, label string, optional bool) *Input {
	w.ioMu.Lock()
	n := w.counters[domain.KindInput]
	w.counters[domain.KindInput]++
	in := newInput(w.id, connectorID(w.id, domain.KindInput, n), label, domain.Type(typ), optional, w.inputArrived)
	w.connectors = append(w.connectors, in)
	w.ioMu.Unlock()

	w.inputs.add(in)
	return in
}

// AddOutput declares a data output.
func (w *NodeWorker) AddOutput(typ, label string) *Output {
	w.ioMu.Lock()
	n := w.counters[domain.KindOutput]
	w.counters[domain.KindOutput]++
	out := newOutput(w.id, connectorID(w.id, domain.KindOutput, n), label, domain.Type(typ))
	w.connectors = append(w.connectors, out)
	w.ioMu.Unlock()

	w.outputs.add(out)
	return out
}

// AddSlot declares an event input; fn runs on the worker for every signal.
func (w *NodeWorker) AddSlot(label string, fn func(*domain.Token)) *Slot {
	w.ioMu.Lock()
	defer w.ioMu.Unlock()
	n := w.counters[domain.KindSlot]
	w.counters[domain.KindSlot]++
	slot := newSlot(w.id, connectorID(w.id, domain.KindSlot, n), label, func(s *Slot, c *Connection) {
		w.post(func() { w.slotTriggered(s, c, fn) })
	})
	w.slots = append(w.slots, slot)
	w.connectors = append(w.connectors, slot)
	return slot
}

// AddTrigger declares an event output.
func (w *NodeWorker) AddTrigger(label string) *Trigger {
	w.ioMu.Lock()
	defer w.ioMu.Unlock()
	n := w.counters[domain.KindTrigger]
	w.counters[domain.KindTrigger]++
	trig := newTrigger(w.id, connectorID(w.id, domain.KindTrigger, n), label)
	w.triggers = append(w.triggers, trig)
	w.connectors = append(w.connectors, trig)
	return trig
}

// SetIsSource marks the node as a source regardless of its inputs.
func (w *NodeWorker) SetIsSource(source bool) {
	w.stateMu.Lock()
	w.sourceFlag = source
	w.stateMu.Unlock()
}

// SetIsSink marks the node as a sink regardless of its outputs.
func (w *NodeWorker) SetIsSink(sink bool) {
	w.stateMu.Lock()
	w.sinkFlag = sink
	w.stateMu.Unlock()
}

// --- connectors ---

// Inputs returns the data inputs in declaration order.
func (w *NodeWorker) Inputs() []*Input { return w.inputs.Inputs() }

// Outputs returns the data outputs ordered by id.
func (w *NodeWorker) Outputs() []*Output { return w.outputs.Outputs() }

func (w *NodeWorker) Slots() []*Slot {
	w.ioMu.RLock()
	defer w.ioMu.RUnlock()
	return append([]*Slot(nil), w.slots...)
}

func (w *NodeWorker) Triggers() []*Trigger {
	w.ioMu.RLock()
	defer w.ioMu.RUnlock()
	return append([]*Trigger(nil), w.triggers...)
}

// Connectors returns every connector, parameter bridges included, in
// creation order.
func (w *NodeWorker) Connectors() []Connector {
	w.ioMu.RLock()
	defer w.ioMu.RUnlock()
	return append([]Connector(nil), w.connectors...)
}

// ParamInput returns the input bridge of a parameter.
func (w *NodeWorker) ParamInput(name string) (*Input, bool) {
	w.ioMu.RLock()
	defer w.ioMu.RUnlock()
	in, ok := w.paramInputs[name]
	return in, ok
}

// ParamOutput returns the output bridge of a parameter.
func (w *NodeWorker) ParamOutput(name string) (*Output, bool) {
	w.ioMu.RLock()
	defer w.ioMu.RUnlock()
	out, ok := w.paramOutputs[name]
	return out, ok
}

// ParamSlot returns the slot bridge of a trigger parameter.
func (w *NodeWorker) ParamSlot(name string) (*Slot, bool) {
	w.ioMu.RLock()
	defer w.ioMu.RUnlock()
	s, ok := w.paramSlots[name]
	return s, ok
}

// ParamTrigger returns the trigger bridge of a trigger parameter.
func (w *NodeWorker) ParamTrigger(name string) (*Trigger, bool) {
	w.ioMu.RLock()
	defer w.ioMu.RUnlock()
	t, ok := w.paramTriggers[name]
	return t, ok
}

// Sender resolves a sending connector by id or label. Regular connectors
// win over parameter bridges with the same label.
func (w *NodeWorker) Sender(ref string) (Sender, bool) {
	var bridge Sender
	for _, c := range w.Connectors() {
		s, ok := c.(Sender)
		if !ok {
			continue
		}
		if c.ID() == ref {
			return s, true
		}
		if c.Label() == ref {
			if c.Param() == "" {
				return s, true
			}
			if bridge == nil {
				bridge = s
			}
		}
	}
	return bridge, bridge != nil
}

// Receiver resolves a receiving connector by id or label.
func (w *NodeWorker) Receiver(ref string) (Receiver, bool) {
	var bridge Receiver
	for _, c := range w.Connectors() {
		r, ok := c.(Receiver)
		if !ok {
			continue
		}
		if c.ID() == ref {
			return r, true
		}
		if c.Label() == ref {
			if c.Param() == "" {
				return r, true
			}
			if bridge == nil {
				bridge = r
			}
		}
	}
	return bridge, bridge != nil
}

// --- flags ---

// State returns the processing phase.
func (w *NodeWorker) State() domain.WorkerState {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	return w.state
}

func (w *NodeWorker) setState(s domain.WorkerState) {
	w.stateMu.Lock()
	changed := w.state != s
	w.state = s
	w.stateMu.Unlock()
	if changed {
		w.StateChanged.Emit(s)
	}
}

// transition moves from -> to and reports whether the worker was in from.
func (w *NodeWorker) transition(from, to domain.WorkerState) bool {
	w.stateMu.Lock()
	if w.state != from {
		w.stateMu.Unlock()
		return false
	}
	w.state = to
	w.stateMu.Unlock()
	w.StateChanged.Emit(to)
	return true
}

func (w *NodeWorker) IsEnabled() bool {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	return w.enabled
}

// SetEnabled switches processing on or off. Disabling clears the error state;
// tokens arriving at a disabled node are dropped so upstream never blocks.
func (w *NodeWorker) SetEnabled(enabled bool) {
	w.stateMu.Lock()
	w.enabled = enabled
	w.stateMu.Unlock()
	if !enabled {
		w.setError(domain.NodeError{})
	}
	w.checkIO()
	w.post(w.tryProcess)
}

// SetIOError flags every connector as erroring and disables IO while set.
func (w *NodeWorker) SetIOError(erroring bool) {
	w.stateMu.Lock()
	w.ioError = erroring
	w.stateMu.Unlock()
	for _, c := range w.dataConnectors() {
		if b, ok := c.(interface{ setErroring(bool) }); ok {
			b.setErroring(erroring)
		}
	}
	w.checkIO()
}

// checkIO enables the data connectors iff the node is enabled and not erroring.
func (w *NodeWorker) checkIO() {
	w.stateMu.Lock()
	on := w.enabled && !w.ioError
	w.stateMu.Unlock()
	for _, c := range w.dataConnectors() {
		c.SetEnabled(on)
	}
}

func (w *NodeWorker) dataConnectors() []Connector {
	var out []Connector
	for _, c := range w.Connectors() {
		if c.Param() == "" {
			out = append(out, c)
		}
	}
	return out
}

func (w *NodeWorker) TickEnabled() bool {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	return w.tickEnabled
}

func (w *NodeWorker) SetTickEnabled(enabled bool) {
	w.stateMu.Lock()
	w.tickEnabled = enabled
	w.stateMu.Unlock()
}

// IsSource reports whether the node is explicitly a source or has neither
// mandatory nor connected inputs.
func (w *NodeWorker) IsSource() bool {
	w.stateMu.Lock()
	explicit := w.sourceFlag
	w.stateMu.Unlock()
	if explicit {
		return true
	}
	for _, in := range w.inputs.Inputs() {
		if !in.Optional() || in.IsConnected() {
			return false
		}
	}
	return true
}

// IsSink reports whether the node is explicitly a sink or has no outputs.
func (w *NodeWorker) IsSink() bool {
	w.stateMu.Lock()
	explicit := w.sinkFlag
	w.stateMu.Unlock()
	return explicit || len(w.outputs.Outputs()) == 0
}

// CanReceive reports whether every mandatory input is connected.
func (w *NodeWorker) CanReceive() bool {
	for _, in := range w.inputs.Inputs() {
		if !in.Optional() && !in.IsConnected() {
			return false
		}
	}
	return true
}

// CanSendMessages reports whether a new round could be published now.
func (w *NodeWorker) CanSendMessages() bool {
	return w.outputs.CanStartSendingMessages()
}

// MessagesWaiting reports whether a processed round waits for its outputs to drain.
func (w *NodeWorker) MessagesWaiting() bool {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	return w.messagesWaiting
}

func (w *NodeWorker) IsStopped() bool { return w.stopped.Load() }

// --- error state ---

// Error returns the current node error; the zero value means none.
func (w *NodeWorker) Error() domain.NodeError {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	return w.nodeErr
}

func (w *NodeWorker) setError(e domain.NodeError) {
	w.stateMu.Lock()
	changed := w.nodeErr != e
	w.nodeErr = e
	w.stateMu.Unlock()
	if !changed {
		return
	}
	w.ErrorChanged.Emit(e)
	if e.IsError() {
		w.logger.Warn("node error", "level", e.Level, "error", e.Message)
		if w.opts.hooks.OnNodeError != nil {
			ev := w.event(domain.EventNodeError)
			ev.Error = &e
			w.opts.hooks.OnNodeError(w.ctx, ev)
		}
	}
}

// --- pause / stop ---

// SetPaused suspends or resumes the worker. Paused workers block at their
// next message arrival or tick until resumed or stopped.
func (w *NodeWorker) SetPaused(paused bool) {
	w.pauseMu.Lock()
	w.paused = paused
	w.pauseMu.Unlock()
	w.pauseCond.Broadcast()
}

func (w *NodeWorker) IsPaused() bool {
	w.pauseMu.Lock()
	defer w.pauseMu.Unlock()
	return w.paused
}

func (w *NodeWorker) waitWhilePaused() {
	w.pauseMu.Lock()
	for w.paused && !w.stopped.Load() {
		w.pauseCond.Wait()
	}
	w.pauseMu.Unlock()
}

// Stop ends the worker. The in-flight body call, if any, is asked to abort
// but never interrupted; held tokens are discarded.
func (w *NodeWorker) Stop() {
	if !w.stopped.CompareAndSwap(false, true) {
		return
	}
	w.shutdown()
}

// shutdown releases everything a stopped worker holds.
func (w *NodeWorker) shutdown() {
	w.cancel()
	if a, ok := w.body.(Aborter); ok {
		a.Abort()
	}
	w.loseContinuation()
	w.resetConnectors()
	w.setState(domain.WorkerStopped)
	w.SetPaused(false)

	for _, unsub := range w.unsubs {
		unsub()
	}
	w.unsubs = nil
	w.logger.Debug("worker stopped")
}

// Reset aborts the body, clears the error state and discards every held
// token. The worker stays usable.
func (w *NodeWorker) Reset() {
	if a, ok := w.body.(Aborter); ok {
		a.Abort()
	}
	w.loseContinuation()
	w.setError(domain.NodeError{})
	w.resetConnectors()

	w.stateMu.Lock()
	w.messagesWaiting = false
	w.stateMu.Unlock()
	if !w.stopped.Load() {
		w.setState(domain.WorkerIdle)
	}
}

func (w *NodeWorker) resetConnectors() {
	w.inputs.reset()
	w.outputs.reset()

	w.ioMu.RLock()
	var rest []Connector
	for _, in := range w.paramInputs {
		rest = append(rest, in)
	}
	for _, out := range w.paramOutputs {
		rest = append(rest, out)
	}
	rest = append(rest, connectorsOf(w.slots)...)
	rest = append(rest, connectorsOf(w.triggers)...)
	for _, s := range w.paramSlots {
		rest = append(rest, s)
	}
	for _, t := range w.paramTriggers {
		rest = append(rest, t)
	}
	w.ioMu.RUnlock()

	for _, c := range rest {
		switch v := c.(type) {
		case *Input:
			v.reset()
		case *Output:
			v.reset()
		default:
			for _, conn := range c.Connections() {
				conn.Reset()
			}
		}
	}
}

func connectorsOf[T Connector](in []T) []Connector {
	out := make([]Connector, 0, len(in))
	for _, c := range in {
		out = append(out, c)
	}
	return out
}

// teardown detaches every connection of every connector and returns them.
func (w *NodeWorker) teardown() []*Connection {
	var conns []*Connection
	for _, c := range w.Connectors() {
		for _, conn := range c.Connections() {
			conn.detachAll()
			conns = append(conns, conn)
		}
	}
	return conns
}

// --- statistics ---

// Ticks returns how many times the body ticked.
func (w *NodeWorker) Ticks() int64 {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	return w.ticks
}

// Rounds returns how many rounds the worker completed.
func (w *NodeWorker) Rounds() int64 {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	return w.rounds
}

// TimerHistory returns the recorded timings, oldest first.
func (w *NodeWorker) TimerHistory() []domain.TimerRecord {
	w.stateMu.Lock()
	defer w.stateMu.Unlock()
	if len(w.history) < cap(w.history) {
		return append([]domain.TimerRecord(nil), w.history...)
	}
	out := make([]domain.TimerRecord, 0, len(w.history))
	out = append(out, w.history[w.historyNext:]...)
	return append(out, w.history[:w.historyNext]...)
}

func (w *NodeWorker) record(kind string, start time.Time, d time.Duration) {
	rec := domain.TimerRecord{Kind: kind, StartMs: start.UnixMilli(), DurationMs: d.Milliseconds()}
	w.stateMu.Lock()
	if len(w.history) < cap(w.history) {
		w.history = append(w.history, rec)
	} else if cap(w.history) > 0 {
		w.history[w.historyNext] = rec
		w.historyNext = (w.historyNext + 1) % cap(w.history)
	}
	w.stateMu.Unlock()
	w.Processed.Emit(rec)
}

func (w *NodeWorker) event(t domain.EventType) *domain.NodeEvent {
	return &domain.NodeEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: t, GraphID: w.opts.graphID},
		NodeID:    w.id,
		NodeType:  w.typeName,
	}
}

// Describe returns the inspection view of the worker.
func (w *NodeWorker) Describe() domain.NodeDescription {
	d := domain.NodeDescription{
		ID:      w.id,
		Type:    w.typeName,
		State:   w.State(),
		Enabled: w.IsEnabled(),
		Paused:  w.IsPaused(),
		Source:  w.IsSource(),
		Sink:    w.IsSink(),
		Group:   w.Group(),
		Ticks:   w.Ticks(),
		Error:   w.Error(),
		Params:  w.params.Values(),
	}
	for _, c := range w.Connectors() {
		d.Connectors = append(d.Connectors, c.Describe())
	}
	return d
}

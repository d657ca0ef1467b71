package engine

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/aretw0/conduit/pkg/domain"
)

// levelError carries an explicit severity for a node error.
type levelError struct {
	err   error
	level domain.ErrorLevel
}

func (e *levelError) Error() string { return e.err.Error() }
func (e *levelError) Unwrap() error { return e.err }

// Warning marks err as a warning-level node error.
func Warning(err error) error {
	if err == nil {
		return nil
	}
	return &levelError{err: err, level: domain.LevelWarning}
}

type continuation struct {
	called atomic.Bool
	lost   atomic.Bool
	timer  *time.Timer
}

// must escalates protocol failures. They indicate a scheduling bug and are
// recovered only at the scheduler boundary.
func must(err error) {
	if err != nil {
		panic(err)
	}
}

func (w *NodeWorker) inputArrived(in *Input) {
	w.post(func() { w.messageArrived(in) })
}

// messageArrived runs on the worker when a connection delivered to in.
func (w *NodeWorker) messageArrived(_ *Input) {
	w.waitWhilePaused()
	if w.stopped.Load() {
		return
	}
	w.tryProcess()
}

// tryProcess pulls unread tokens into the inputs and processes once the
// join barrier is met.
func (w *NodeWorker) tryProcess() {
	if w.stopped.Load() {
		return
	}
	must(w.inputs.fetch())

	if !w.IsEnabled() {
		must(w.inputs.notifyMessagesProcessed())
		return
	}
	if w.inputs.HasPending() && w.inputs.AreAllInputsAvailable() {
		w.processMessages()
	}
}

// processMessages runs one round. It only starts from Idle.
func (w *NodeWorker) processMessages() {
	if w.stopped.Load() {
		return
	}
	if !w.inputs.AreAllInputsAvailable() {
		return
	}
	if !w.transition(domain.WorkerIdle, domain.WorkerProcessing) {
		return
	}

	w.checkParameters()

	skip := w.inputs.hasNoMessage()
	if seq, aligned := w.inputs.checkSequence(); !aligned {
		if w.opts.strict {
			must(domain.Invariant(w.id, "mandatory inputs out of sequence, highest seq %d", seq))
		}
		w.logger.Warn("mandatory inputs out of sequence", "seq", seq)
	}
	active := w.inputs.isActive()
	w.outputs.clearBuffer()

	finish := func() { w.finishProcessing(active) }
	if skip {
		finish()
		return
	}
	w.execute("process", w.inputs.snapshot(), finish)
}

// execute invokes the body and calls finish once the round completed.
func (w *NodeWorker) execute(kind string, in Inputs, finish func()) {
	if async, ok := w.body.(AsyncProcessor); ok && !(kind == "tick" && isTicker(w.body)) {
		w.startAsync(kind, async, in, finish)
		return
	}

	w.runBody(kind, func(ctx context.Context) error {
		switch b := w.body.(type) {
		case Ticker:
			if kind == "tick" {
				return b.Tick(ctx)
			}
		}
		switch b := w.body.(type) {
		case IOProcessor:
			return b.ProcessIO(ctx, in, w.params)
		case Processor:
			return b.Process(ctx)
		}
		return nil
	})
	finish()
}

func isTicker(n Node) bool {
	_, ok := n.(Ticker)
	return ok
}

// runBody times fn, contains its failures and reports them.
func (w *NodeWorker) runBody(kind string, fn func(context.Context) error) {
	start := time.Now()
	w.beginHooks(kind)
	err := w.contain(fn)
	w.completeBody(kind, start, err)
}

func (w *NodeWorker) beginHooks(kind string) {
	if kind == "process" && w.opts.hooks.OnProcessStart != nil {
		w.opts.hooks.OnProcessStart(w.ctx, w.event(domain.EventProcessStart))
	}
}

func (w *NodeWorker) completeBody(kind string, start time.Time, err error) {
	d := time.Since(start)
	w.record(kind, start, d)

	switch kind {
	case "tick":
		w.stateMu.Lock()
		w.ticks++
		w.stateMu.Unlock()
		if w.opts.hooks.OnTick != nil {
			ev := w.event(domain.EventTick)
			ev.Duration = d
			w.opts.hooks.OnTick(w.ctx, ev)
		}
	default:
		if w.opts.hooks.OnProcessFinish != nil {
			ev := w.event(domain.EventProcessFinish)
			ev.Duration = d
			w.opts.hooks.OnProcessFinish(w.ctx, ev)
		}
	}
	w.applyResult(err)
}

// contain turns error and string panics into errors. Invariant violations,
// Go runtime faults (nil dereference, out of range) and foreign panic values
// propagate.
func (w *NodeWorker) contain(fn func(context.Context) error) (err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		switch v := r.(type) {
		case *domain.InvariantError:
			panic(v)
		case runtime.Error:
			panic(v)
		case error:
			err = v
		case string:
			err = errors.New(v)
		default:
			panic(r)
		}
	}()
	return fn(w.ctx)
}

func (w *NodeWorker) applyResult(err error) {
	if err == nil {
		if w.Error().IsError() {
			w.setError(domain.NodeError{})
		}
		return
	}
	w.outputs.clearBuffer()

	level := domain.LevelError
	var le *levelError
	if errors.As(err, &le) {
		level = le.level
	}
	w.setError(domain.NodeError{Message: err.Error(), Level: level})
}

// finishProcessing completes the bookkeeping of a round.
func (w *NodeWorker) finishProcessing(active bool) {
	if w.stopped.Load() {
		return
	}
	w.stateMu.Lock()
	w.rounds++
	w.stateMu.Unlock()

	if w.IsSink() {
		must(w.inputs.notifyMessagesProcessed())
		w.setState(domain.WorkerIdle)
		w.post(w.tryProcess)
		return
	}

	w.stateMu.Lock()
	w.messagesWaiting = true
	w.roundActive = active
	w.stateMu.Unlock()
	w.setState(domain.WorkerAwaitingDelivery)
	w.trySendMessages()
}

// trySendMessages publishes the waiting round if every output drained. It
// reports whether anything was sent; otherwise it changes nothing.
func (w *NodeWorker) trySendMessages() bool {
	if w.stopped.Load() {
		return false
	}
	w.stateMu.Lock()
	waiting := w.messagesWaiting
	active := w.roundActive
	w.stateMu.Unlock()
	if !waiting || !w.outputs.CanStartSendingMessages() {
		return false
	}

	w.stateMu.Lock()
	w.messagesWaiting = false
	w.stateMu.Unlock()

	_, err := w.outputs.SendMessages(active)
	must(err)
	must(w.inputs.notifyMessagesProcessed())

	if w.outputs.AreOutputsIdle() {
		w.transition(domain.WorkerAwaitingDelivery, domain.WorkerIdle)
		w.post(w.tryProcess)
	}
	return true
}

// onMessagesProcessed runs once downstream acknowledged a whole round.
func (w *NodeWorker) onMessagesProcessed() {
	if w.stopped.Load() {
		return
	}
	if w.trySendMessages() {
		return
	}
	if !w.MessagesWaiting() && w.outputs.AreOutputsIdle() {
		w.transition(domain.WorkerAwaitingDelivery, domain.WorkerIdle)
	}
	w.tryProcess()
}

// Tick asks the worker to run one tick. Ticks already queued are coalesced;
// the result reports whether a new one was queued.
func (w *NodeWorker) Tick() bool {
	if !w.tickQueued.CompareAndSwap(false, true) {
		return false
	}
	w.post(func() {
		w.tickQueued.Store(false)
		w.tick()
	})
	return true
}

// TickPending reports whether a tick is queued but has not run yet.
func (w *NodeWorker) TickPending() bool { return w.tickQueued.Load() }

func (w *NodeWorker) tick() {
	w.waitWhilePaused()
	if w.stopped.Load() {
		return
	}
	w.checkParameters()

	if !w.IsEnabled() || !w.TickEnabled() || !w.IsSource() {
		return
	}
	if !w.outputs.CanStartSendingMessages() {
		return
	}
	if t, ok := w.body.(Ticker); ok && !t.CanTick() {
		return
	}
	if !w.transition(domain.WorkerIdle, domain.WorkerProcessing) {
		return
	}

	w.outputs.clearBuffer()
	w.execute("tick", Inputs{tokens: map[string]*domain.Token{}}, w.finishTick)
}

func (w *NodeWorker) finishTick() {
	if w.stopped.Load() {
		return
	}
	if !w.outputs.HasMessage() {
		w.setState(domain.WorkerIdle)
		return
	}
	w.stateMu.Lock()
	w.rounds++
	w.messagesWaiting = true
	w.roundActive = true
	w.stateMu.Unlock()
	w.setState(domain.WorkerAwaitingDelivery)
	w.trySendMessages()
}

// checkParameters runs the callbacks of parameters changed since the last check.
func (w *NodeWorker) checkParameters() {
	for _, call := range w.params.pending() {
		if err := w.contain(func(context.Context) error { call(); return nil }); err != nil {
			w.applyResult(err)
		}
	}
}

// --- slots ---

func (w *NodeWorker) slotTriggered(s *Slot, c *Connection, fn func(*domain.Token)) {
	w.waitWhilePaused()
	if w.stopped.Load() || c.State() != domain.ConnectionUnread {
		return
	}
	tok, err := c.ReadToken()
	must(err)

	if fn != nil && w.IsEnabled() && s.Enabled() {
		if err := w.contain(func(context.Context) error { fn(tok); return nil }); err != nil {
			w.applyResult(err)
		}
	}
	must(c.SetTokenProcessed())
}

// --- asynchronous rounds ---

func (w *NodeWorker) startAsync(kind string, body AsyncProcessor, in Inputs, finish func()) {
	c := &continuation{}
	start := time.Now()

	w.contMu.Lock()
	w.cont = c
	w.contMu.Unlock()

	done := Continuation(func(err error) error {
		if !c.called.CompareAndSwap(false, true) {
			if c.lost.Load() {
				return domain.ErrContinuationLost
			}
			return domain.ErrContinuationReused
		}
		if c.timer != nil {
			c.timer.Stop()
		}
		w.post(func() { w.completeAsync(kind, c, start, err, finish) })
		return nil
	})

	if d := w.opts.contTimeout; d > 0 {
		c.timer = time.AfterFunc(d, func() {
			if c.called.CompareAndSwap(false, true) {
				c.lost.Store(true)
				w.post(func() { w.completeAsync(kind, c, start, domain.ErrContinuationLost, finish) })
			}
		})
	}

	w.beginHooks(kind)
	err := w.contain(func(ctx context.Context) error {
		return body.ProcessAsync(ctx, in, w.params, done)
	})
	if err != nil && c.called.CompareAndSwap(false, true) {
		if c.timer != nil {
			c.timer.Stop()
		}
		w.completeAsync(kind, c, start, err, finish)
	}
}

func (w *NodeWorker) completeAsync(kind string, c *continuation, start time.Time, err error, finish func()) {
	w.contMu.Lock()
	if w.cont != c {
		w.contMu.Unlock()
		return
	}
	w.cont = nil
	w.contMu.Unlock()

	if w.stopped.Load() {
		return
	}
	w.completeBody(kind, start, err)
	finish()
}

// loseContinuation reports a pending continuation as lost and forgets it.
func (w *NodeWorker) loseContinuation() {
	w.contMu.Lock()
	c := w.cont
	w.cont = nil
	w.contMu.Unlock()
	if c == nil || !c.called.CompareAndSwap(false, true) {
		return
	}
	c.lost.Store(true)
	if c.timer != nil {
		c.timer.Stop()
	}
	w.setError(domain.NodeError{Message: domain.ErrContinuationLost.Error(), Level: domain.LevelWarning})
}

// PendingContinuation reports whether an asynchronous round is in flight.
func (w *NodeWorker) PendingContinuation() bool {
	w.contMu.Lock()
	defer w.contMu.Unlock()
	return w.cont != nil
}

// --- publishing hooks ---

func (w *NodeWorker) tokenCommitted(o *Output, tok *domain.Token) {
	if w.opts.hooks.OnTokenPublished == nil {
		return
	}
	w.opts.hooks.OnTokenPublished(w.ctx, &domain.TokenEvent{
		EventBase: domain.EventBase{Timestamp: time.Now(), Type: domain.EventTokenPublished, GraphID: w.opts.graphID},
		NodeID:    w.id,
		Connector: o.ID(),
		TokenType: tok.Type(),
		Seq:       tok.Seq(),
		Active:    tok.Active(),
		Marker:    tok.IsNoMessage(),
	})
}

package engine

import (
	"github.com/aretw0/conduit/pkg/domain"
)

// supportedParam reports whether a parameter type gets connector bridges.
func supportedParam(typ string) bool {
	switch typ {
	case domain.TypeInt, domain.TypeFloat, domain.TypeString, domain.TypeBool,
		domain.TypeIntRange, domain.TypeFloatRange, domain.TypeSignal:
		return true
	}
	return false
}

// makeParameterConnectable builds the bridges of p: an input/output pair of
// the parameter's type, or a slot/trigger pair for trigger parameters.
// It is idempotent per parameter name.
func (w *NodeWorker) makeParameterConnectable(p *Param) {
	if !supportedParam(p.Type) {
		return
	}

	w.ioMu.Lock()
	defer w.ioMu.Unlock()

	if p.Trigger {
		if _, exists := w.paramSlots[p.Name]; exists {
			return
		}
		slot := newSlot(w.id, paramConnectorID(w.id, domain.KindSlot, p.Name), p.Name, func(s *Slot, c *Connection) {
			w.post(func() { w.paramSlotTriggered(p, c) })
		})
		slot.param = p.Name
		trig := newTrigger(w.id, paramConnectorID(w.id, domain.KindTrigger, p.Name), p.Name)
		trig.param = p.Name

		w.paramSlots[p.Name] = slot
		w.paramTriggers[p.Name] = trig
		w.connectors = append(w.connectors, slot, trig)
		return
	}

	if _, exists := w.paramInputs[p.Name]; exists {
		return
	}
	in := newInput(w.id, paramConnectorID(w.id, domain.KindInput, p.Name), p.Name, domain.Type(p.Type), true, func(in *Input) {
		w.post(func() { w.paramArrived(p, in) })
	})
	in.param = p.Name
	out := newOutput(w.id, paramConnectorID(w.id, domain.KindOutput, p.Name), p.Name, domain.Type(p.Type))
	out.param = p.Name

	w.paramInputs[p.Name] = in
	w.paramOutputs[p.Name] = out
	w.connectors = append(w.connectors, in, out)
}

// paramArrived applies a value delivered to a parameter input.
func (w *NodeWorker) paramArrived(p *Param, in *Input) {
	w.waitWhilePaused()
	if w.stopped.Load() {
		return
	}
	fetched, err := in.fetch()
	must(err)
	if !fetched {
		return
	}
	if tok := in.Token(); !tok.IsNoMessage() {
		if err := w.params.Set(p.Name, tok.Value()); err != nil {
			w.logger.Warn("rejected parameter value", "param", p.Name, "error", err)
		}
	}
	must(in.free())
}

func (w *NodeWorker) paramSlotTriggered(p *Param, c *Connection) {
	w.waitWhilePaused()
	if w.stopped.Load() || c.State() != domain.ConnectionUnread {
		return
	}
	_, err := c.ReadToken()
	must(err)
	w.params.Fire(p.Name)
	must(c.SetTokenProcessed())
}

// parameterChanged runs on the worker after a value was set or a trigger
// fired: pending callbacks run unless a round is in progress, and the new
// value is published on the parameter's bridge.
func (w *NodeWorker) parameterChanged(p *Param) {
	if w.stopped.Load() {
		return
	}
	if w.State() != domain.WorkerProcessing {
		w.checkParameters()
	}
	w.publishParameter(p)
}

// publishParameter sends the current value on the parameter output. The
// change is dropped when the output is still busy with the previous one.
func (w *NodeWorker) publishParameter(p *Param) {
	if p.Trigger {
		trig, ok := w.ParamTrigger(p.Name)
		if !ok || !trig.IsConnected() {
			return
		}
		_, err := trig.Fire()
		must(err)
		return
	}

	out, ok := w.ParamOutput(p.Name)
	if !ok || !out.IsConnected() {
		return
	}
	if !out.CanSend() {
		w.logger.Warn("dropping parameter change, output busy", "param", p.Name)
		return
	}
	out.Send(p.Value())
	tok := out.commit(true, out.Seq()+1)
	w.tokenCommitted(out, tok)
	must(out.publish())
}

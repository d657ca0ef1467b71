package engine

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/aretw0/conduit/pkg/domain"
	"github.com/aretw0/conduit/pkg/signal"
)

// OutputTransition coordinates the outputs of one node so that a round is
// published all-or-nothing: either every output is idle or every enabled
// output committed a token for the same sequence number.
type OutputTransition struct {
	mu      sync.Mutex
	outputs []*Output
	logger  *slog.Logger
	strict  bool

	onCommit func(*Output, *domain.Token)

	// MessagesProcessed fires once every connection acknowledged the round.
	MessagesProcessed signal.Signal[struct{}]
	// Enabled fires when a new publish window opens.
	Enabled signal.Signal[struct{}]
}

func newOutputTransition(logger *slog.Logger, strict bool) *OutputTransition {
	return &OutputTransition{logger: logger, strict: strict}
}

func (t *OutputTransition) add(o *Output) {
	o.processed = func(*Output) { t.tokenProcessed() }

	t.mu.Lock()
	if len(t.outputs) > 0 {
		o.setSeq(t.outputs[0].Seq())
	}
	t.outputs = append(t.outputs, o)
	sort.SliceStable(t.outputs, func(i, j int) bool {
		return connectorLess(t.outputs[i].ID(), t.outputs[j].ID())
	})
	t.mu.Unlock()
}

func (t *OutputTransition) remove(o *Output) {
	t.mu.Lock()
	for i, existing := range t.outputs {
		if existing == o {
			t.outputs = append(t.outputs[:i:i], t.outputs[i+1:]...)
			break
		}
	}
	t.mu.Unlock()
	o.processed = nil
}

// Outputs returns the owned outputs ordered by connector id.
func (t *OutputTransition) Outputs() []*Output {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]*Output(nil), t.outputs...)
}

// Connections returns every connection attached to the owned outputs.
func (t *OutputTransition) Connections() []*Connection {
	var out []*Connection
	for _, o := range t.Outputs() {
		out = append(out, o.Connections()...)
	}
	return out
}

func (t *OutputTransition) areAllConnectionsDone() bool {
	for _, c := range t.Connections() {
		if c.State() != domain.ConnectionNotInitialized {
			return false
		}
	}
	return true
}

// CanStartSendingMessages reports whether the previous round fully drained.
func (t *OutputTransition) CanStartSendingMessages() bool {
	for _, o := range t.Outputs() {
		if o.Enabled() && o.IsConnected() && o.State() != domain.OutputIdle {
			return false
		}
	}
	return t.areAllConnectionsDone()
}

// AreOutputsIdle reports whether no output has a token in flight.
func (t *OutputTransition) AreOutputsIdle() bool {
	for _, o := range t.Outputs() {
		if o.State() != domain.OutputIdle {
			return false
		}
	}
	return true
}

// HasMessage reports whether any output buffered a value this round.
func (t *OutputTransition) HasMessage() bool {
	for _, o := range t.Outputs() {
		if o.HasMessage() {
			return true
		}
	}
	return false
}

// Seq returns the shared sequence number of the last committed round.
func (t *OutputTransition) Seq() int64 {
	outs := t.Outputs()
	if len(outs) == 0 {
		return 0
	}
	return outs[0].Seq()
}

func (t *OutputTransition) clearBuffer() {
	for _, o := range t.Outputs() {
		o.clearBuffer()
	}
}

// SendMessages commits every enabled output and fills the connections.
// It reports whether any output carried a real value. All connections must
// be done; otherwise an *domain.InvariantError is returned.
func (t *OutputTransition) SendMessages(isActive bool) (bool, error) {
	if !t.areAllConnectionsDone() {
		return false, domain.Invariant("output transition", "send while connections are pending")
	}

	var outs []*Output
	for _, o := range t.Outputs() {
		if o.Enabled() {
			outs = append(outs, o)
		}
	}
	if len(outs) == 0 {
		return false, nil
	}

	canonical := outs[0].Seq()
	for _, o := range outs[1:] {
		if s := o.Seq(); s != canonical {
			t.logger.Warn("output sequence mismatch",
				"output", o.ID(), "seq", s, "expected", canonical)
			if t.strict {
				return false, domain.Invariant("output transition", "output %s at seq %d, expected %d", o.ID(), s, canonical)
			}
		}
	}
	seq := canonical + 1

	sentValue := false
	for _, o := range outs {
		hadValue := o.HasMessage()
		tok := o.commit(isActive, seq)
		sentValue = sentValue || hadValue
		if t.onCommit != nil {
			t.onCommit(o, tok)
		}
	}

	if err := t.fillConnections(outs); err != nil {
		return sentValue, err
	}
	return sentValue, nil
}

func (t *OutputTransition) fillConnections(outs []*Output) error {
	idle := true
	for _, o := range outs {
		if o.State() != domain.OutputIdle {
			idle = false
			break
		}
	}
	if idle {
		return nil
	}
	for _, o := range outs {
		if err := o.publish(); err != nil {
			return err
		}
	}
	return nil
}

// tokenProcessed runs whenever an output drained. Once every connection is
// done the round is complete.
func (t *OutputTransition) tokenProcessed() {
	if !t.AreOutputsIdle() || !t.areAllConnectionsDone() {
		return
	}
	t.MessagesProcessed.Emit(struct{}{})
	if t.CanStartSendingMessages() {
		t.Enabled.Emit(struct{}{})
	}
}

func (t *OutputTransition) reset() {
	for _, o := range t.Outputs() {
		o.reset()
	}
}

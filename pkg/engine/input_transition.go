package engine

import (
	"sync"

	"github.com/aretw0/conduit/pkg/domain"
)

// InputTransition owns the data inputs of one node and decides when a round
// is complete.
type InputTransition struct {
	mu     sync.RWMutex
	inputs []*Input
}

func newInputTransition() *InputTransition {
	return &InputTransition{}
}

func (t *InputTransition) add(in *Input) {
	t.mu.Lock()
	t.inputs = append(t.inputs, in)
	t.mu.Unlock()
}

func (t *InputTransition) remove(in *Input) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, existing := range t.inputs {
		if existing == in {
			t.inputs = append(t.inputs[:i:i], t.inputs[i+1:]...)
			return
		}
	}
}

// Inputs returns the owned inputs in declaration order.
func (t *InputTransition) Inputs() []*Input {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]*Input(nil), t.inputs...)
}

// Connections returns every connection attached to the owned inputs.
func (t *InputTransition) Connections() []*Connection {
	var out []*Connection
	for _, in := range t.Inputs() {
		out = append(out, in.Connections()...)
	}
	return out
}

// fetch reads every unread token into its input buffer.
func (t *InputTransition) fetch() error {
	for _, in := range t.Inputs() {
		if _, err := in.fetch(); err != nil {
			return err
		}
	}
	return nil
}

// AreAllInputsAvailable is the join barrier: every enabled mandatory input
// holds a token, and every connected optional input has delivered.
func (t *InputTransition) AreAllInputsAvailable() bool {
	for _, in := range t.Inputs() {
		if !in.Enabled() {
			continue
		}
		if in.Optional() && !in.IsConnected() {
			continue
		}
		if !in.HasReceived() {
			return false
		}
	}
	return true
}

// HasPending reports whether any input holds a token.
func (t *InputTransition) HasPending() bool {
	for _, in := range t.Inputs() {
		if in.HasReceived() {
			return true
		}
	}
	return false
}

// hasNoMessage reports whether a mandatory input holds the marker token.
func (t *InputTransition) hasNoMessage() bool {
	for _, in := range t.Inputs() {
		if !in.Enabled() || in.Optional() {
			continue
		}
		if tok := in.Token(); tok != nil && tok.IsNoMessage() {
			return true
		}
	}
	return false
}

// isActive reports whether any received token is active.
func (t *InputTransition) isActive() bool {
	for _, in := range t.Inputs() {
		if tok := in.Token(); tok != nil && tok.Active() {
			return true
		}
	}
	return false
}

// checkSequence compares the sequence numbers of the mandatory inputs of
// the current round. It returns the highest one and whether all agreed.
func (t *InputTransition) checkSequence() (int64, bool) {
	var highest int64 = -1
	aligned := true
	first := true
	for _, in := range t.Inputs() {
		if !in.Enabled() || in.Optional() {
			continue
		}
		tok := in.Token()
		if tok == nil {
			continue
		}
		if first {
			highest = tok.Seq()
			first = false
			continue
		}
		if tok.Seq() != highest {
			aligned = false
			if tok.Seq() > highest {
				highest = tok.Seq()
			}
		}
	}
	return highest, aligned
}

// snapshot captures the tokens of the current round by label.
func (t *InputTransition) snapshot() Inputs {
	in := Inputs{tokens: make(map[string]*domain.Token)}
	for _, input := range t.Inputs() {
		if tok := input.Token(); tok != nil {
			in.tokens[input.Label()] = tok
		}
	}
	return in
}

// notifyMessagesProcessed frees every input and acknowledges its connection.
func (t *InputTransition) notifyMessagesProcessed() error {
	for _, in := range t.Inputs() {
		if err := in.free(); err != nil {
			return err
		}
	}
	return nil
}

func (t *InputTransition) reset() {
	for _, in := range t.Inputs() {
		in.reset()
	}
}

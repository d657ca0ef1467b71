package engine

import (
	"sync"

	"github.com/aretw0/conduit/pkg/domain"
)

// Output buffers the value a node body produced during a round and publishes
// it to every attached connection once its transition commits.
type Output struct {
	connectorBase
	processed func(*Output)

	mu        sync.Mutex
	state     domain.OutputState
	buffer    *domain.Token
	committed *domain.Token
	pending   int
}

func newOutput(nodeID, id, label string, typ domain.TypeDescriptor) *Output {
	return &Output{connectorBase: newBase(nodeID, id, label, domain.KindOutput, typ)}
}

// Send buffers value for the current round. The token type is the output's
// declared type.
func (o *Output) Send(value any) {
	o.SendToken(domain.NewToken(o.typ.String(), value))
}

// SendToken buffers a prepared token for the current round.
func (o *Output) SendToken(tok *domain.Token) {
	o.mu.Lock()
	o.buffer = tok
	o.mu.Unlock()
}

// HasMessage reports whether a value is buffered for the current round.
func (o *Output) HasMessage() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buffer != nil
}

// State returns Idle or Active.
func (o *Output) State() domain.OutputState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Committed returns the last committed token.
func (o *Output) Committed() *domain.Token {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.committed
}

// CanSend reports whether the output is idle and all of its connections are done.
func (o *Output) CanSend() bool {
	if o.State() != domain.OutputIdle {
		return false
	}
	for _, c := range o.Connections() {
		if c.State() != domain.ConnectionNotInitialized {
			return false
		}
	}
	return true
}

func (o *Output) clearBuffer() {
	o.mu.Lock()
	o.buffer = nil
	o.mu.Unlock()
}

// commit turns the buffered value into a stamped token. Outputs without a
// value commit a marker so downstream rounds stay aligned. Connected outputs
// become Active until every connection acknowledged the token.
func (o *Output) commit(active bool, seq int64) *domain.Token {
	connected := o.IsConnected()

	o.mu.Lock()
	var tok *domain.Token
	if o.buffer != nil {
		tok = o.buffer.Stamp(active, seq)
	} else {
		tok = domain.NewNoMessage(seq)
	}
	o.buffer = nil
	o.committed = tok
	if connected {
		o.state = domain.OutputActive
	}
	o.mu.Unlock()

	o.setSeq(seq)
	return tok
}

// publish pushes the committed token into every connection.
func (o *Output) publish() error {
	o.mu.Lock()
	tok := o.committed
	active := o.state == domain.OutputActive
	conns := o.Connections()
	if active {
		o.pending = len(conns)
	}
	o.mu.Unlock()

	if !active || tok == nil {
		return nil
	}
	if len(conns) == 0 {
		o.tokenProcessed(nil)
		return nil
	}
	for _, c := range conns {
		delivered, err := c.deliver(tok)
		if err != nil {
			return err
		}
		if !delivered {
			o.tokenProcessed(c)
		}
	}
	return nil
}

func (o *Output) attach(c *Connection) error {
	o.addConn(c)
	return nil
}

func (o *Output) detach(c *Connection) {
	o.removeConn(c)
}

// tokenProcessed releases one pending connection; the output returns to Idle
// once none is left.
func (o *Output) tokenProcessed(_ *Connection) {
	o.mu.Lock()
	if o.pending > 0 {
		o.pending--
	}
	idle := o.pending == 0 && o.state == domain.OutputActive
	if idle {
		o.state = domain.OutputIdle
	}
	o.mu.Unlock()

	if idle && o.processed != nil {
		o.processed(o)
	}
}

func (o *Output) setIdle() {
	o.mu.Lock()
	o.state = domain.OutputIdle
	o.pending = 0
	o.mu.Unlock()
}

func (o *Output) reset() {
	for _, c := range o.Connections() {
		c.Reset()
	}
	o.mu.Lock()
	o.state = domain.OutputIdle
	o.pending = 0
	o.buffer = nil
	o.mu.Unlock()
}

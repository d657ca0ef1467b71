package engine

import (
	"fmt"
	"sync"

	"github.com/aretw0/conduit/pkg/domain"
	"github.com/aretw0/conduit/pkg/signal"
)

// Fulcrum is a presentation waypoint on a connection. It has no functional role.
type Fulcrum struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

// Connection carries at most one token from a Sender to a Receiver.
//
// The handshake is NotInitialized -> Unread (SetToken) -> Read (ReadToken)
// -> NotInitialized (SetTokenProcessed). Reset forces NotInitialized.
type Connection struct {
	id   int
	from Sender
	to   Receiver

	mu       sync.Mutex
	state    domain.ConnectionState
	token    *domain.Token
	active   bool
	seq      int64
	fulcrums []Fulcrum
	detached bool

	// Changed fires after every state change.
	Changed signal.Signal[domain.ConnectionState]
	// FulcrumChanged fires after the waypoints were edited.
	FulcrumChanged signal.Signal[[]Fulcrum]
}

func newConnection(id int, from Sender, to Receiver) *Connection {
	return &Connection{id: id, from: from, to: to}
}

func (c *Connection) ID() int        { return c.id }
func (c *Connection) From() Sender   { return c.from }
func (c *Connection) To() Receiver   { return c.to }
func (c *Connection) IsEvent() bool  { return c.from.Kind().IsEvent() }
func (c *Connection) String() string { return fmt.Sprintf("connection %d (%s -> %s)", c.id, c.from.ID(), c.to.ID()) }

// State returns the current handshake state.
func (c *Connection) State() domain.ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Token returns the held token, nil when none is held.
func (c *Connection) Token() *domain.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.token
}

// Active reports whether the last token set on this connection was active.
func (c *Connection) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Seq returns the sequence number of the last token set on this connection.
func (c *Connection) Seq() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.seq
}

// SetToken hands tok to the receiver. It is only legal while the connection
// is NotInitialized; any other state yields an *domain.InvariantError.
func (c *Connection) SetToken(tok *domain.Token) error {
	_, err := c.deliver(tok)
	return err
}

// deliver is SetToken reporting whether the token reached a receiver.
// Tokens set on a detached connection are dropped.
func (c *Connection) deliver(tok *domain.Token) (bool, error) {
	c.mu.Lock()
	if c.detached {
		c.mu.Unlock()
		return false, nil
	}
	if c.state != domain.ConnectionNotInitialized {
		st := c.state
		c.mu.Unlock()
		return false, domain.Invariant(c.String(), "set token in state %s", st)
	}
	c.token = tok
	c.state = domain.ConnectionUnread
	c.active = tok.Active()
	c.seq = tok.Seq()
	c.mu.Unlock()

	c.Changed.Emit(domain.ConnectionUnread)
	c.to.messageArrived(c)
	return true, nil
}

// ReadToken moves Unread -> Read and returns the held token.
func (c *Connection) ReadToken() (*domain.Token, error) {
	c.mu.Lock()
	if c.state != domain.ConnectionUnread {
		st := c.state
		c.mu.Unlock()
		return nil, domain.Invariant(c.String(), "read token in state %s", st)
	}
	c.state = domain.ConnectionRead
	tok := c.token
	c.mu.Unlock()

	c.Changed.Emit(domain.ConnectionRead)
	return tok, nil
}

// SetTokenProcessed acknowledges the read token: Read -> NotInitialized, then
// notifies the sender. Acknowledging a connection that was reset in the
// meantime is a no-op; acknowledging an unread token is an invariant violation.
func (c *Connection) SetTokenProcessed() error {
	c.mu.Lock()
	switch c.state {
	case domain.ConnectionNotInitialized:
		c.mu.Unlock()
		return nil
	case domain.ConnectionUnread:
		c.mu.Unlock()
		return domain.Invariant(c.String(), "acknowledge unread token")
	}
	c.state = domain.ConnectionNotInitialized
	c.token = nil
	c.mu.Unlock()

	c.Changed.Emit(domain.ConnectionNotInitialized)
	c.from.tokenProcessed(c)
	return nil
}

// Reset discards any held token and returns to NotInitialized. If a token was
// in flight the sender is released as if it had been processed.
func (c *Connection) Reset() {
	c.mu.Lock()
	wasHolding := c.state != domain.ConnectionNotInitialized
	c.state = domain.ConnectionNotInitialized
	c.token = nil
	c.mu.Unlock()

	if !wasHolding {
		return
	}
	c.Changed.Emit(domain.ConnectionNotInitialized)
	c.from.tokenProcessed(c)
}

// Fulcrums returns a copy of the waypoints.
func (c *Connection) Fulcrums() []Fulcrum {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Fulcrum(nil), c.fulcrums...)
}

// AddFulcrum inserts a waypoint at index i (clamped to the valid range).
func (c *Connection) AddFulcrum(i int, f Fulcrum) {
	c.mu.Lock()
	if i < 0 || i > len(c.fulcrums) {
		i = len(c.fulcrums)
	}
	c.fulcrums = append(c.fulcrums[:i], append([]Fulcrum{f}, c.fulcrums[i:]...)...)
	cp := append([]Fulcrum(nil), c.fulcrums...)
	c.mu.Unlock()
	c.FulcrumChanged.Emit(cp)
}

// MoveFulcrum replaces waypoint i.
func (c *Connection) MoveFulcrum(i int, f Fulcrum) error {
	c.mu.Lock()
	if i < 0 || i >= len(c.fulcrums) {
		c.mu.Unlock()
		return fmt.Errorf("fulcrum %d out of range", i)
	}
	c.fulcrums[i] = f
	cp := append([]Fulcrum(nil), c.fulcrums...)
	c.mu.Unlock()
	c.FulcrumChanged.Emit(cp)
	return nil
}

// RemoveFulcrum deletes waypoint i.
func (c *Connection) RemoveFulcrum(i int) error {
	c.mu.Lock()
	if i < 0 || i >= len(c.fulcrums) {
		c.mu.Unlock()
		return fmt.Errorf("fulcrum %d out of range", i)
	}
	c.fulcrums = append(c.fulcrums[:i], c.fulcrums[i+1:]...)
	cp := append([]Fulcrum(nil), c.fulcrums...)
	c.mu.Unlock()
	c.FulcrumChanged.Emit(cp)
	return nil
}

// detachAll unlinks the connection from both endpoints. Any token in flight
// is released first.
func (c *Connection) detachAll() {
	c.Reset()
	c.mu.Lock()
	c.detached = true
	c.mu.Unlock()

	c.to.detach(c)
	c.from.detach(c)
	c.Changed.Clear()
	c.FulcrumChanged.Clear()
}

// Describe returns the inspection view of the connection.
func (c *Connection) Describe() domain.ConnectionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.ConnectionDescription{
		ID:     c.id,
		From:   c.from.ID(),
		To:     c.to.ID(),
		State:  c.state,
		Active: c.active,
		Event:  c.from.Kind().IsEvent(),
		Seq:    c.seq,
	}
}

package engine

import (
	"fmt"
	"sync"

	"github.com/aretw0/conduit/pkg/domain"
)

// Input receives data tokens from at most one connection and buffers the
// token of the current round until the worker acknowledges it.
type Input struct {
	connectorBase
	optional bool
	arrived  func(*Input)

	mu       sync.Mutex
	token    *domain.Token
	fromConn *Connection
}

func newInput(nodeID, id, label string, typ domain.TypeDescriptor, optional bool, arrived func(*Input)) *Input {
	return &Input{
		connectorBase: newBase(nodeID, id, label, domain.KindInput, typ),
		optional:      optional,
		arrived:       arrived,
	}
}

// Optional reports whether the node may process without this input.
func (in *Input) Optional() bool { return in.optional }

// Token returns the buffered token of the current round, nil when none.
func (in *Input) Token() *domain.Token {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.token
}

// HasReceived reports whether a token (possibly a marker) is buffered.
func (in *Input) HasReceived() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.token != nil
}

// HasMessage reports whether a real, non-marker token is buffered.
func (in *Input) HasMessage() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.token != nil && !in.token.IsNoMessage()
}

// Value returns the payload of the buffered token, nil when none.
func (in *Input) Value() any {
	tok := in.Token()
	if tok.IsNoMessage() {
		return nil
	}
	return tok.Value()
}

// Connection returns the incoming connection, nil when unconnected.
func (in *Input) Connection() *Connection {
	conns := in.Connections()
	if len(conns) == 0 {
		return nil
	}
	return conns[0]
}

func (in *Input) attach(c *Connection) error {
	if in.IsConnected() {
		return fmt.Errorf("%w: input %s already has a connection", domain.ErrIncompatible, in.id)
	}
	in.addConn(c)
	return nil
}

func (in *Input) detach(c *Connection) {
	in.removeConn(c)
	in.mu.Lock()
	if in.fromConn == c {
		in.token = nil
		in.fromConn = nil
	}
	in.mu.Unlock()
}

func (in *Input) messageArrived(_ *Connection) {
	if in.arrived != nil {
		in.arrived(in)
	}
}

// fetch moves an unread token from the connection into the buffer.
// It reports whether a new token was read.
func (in *Input) fetch() (bool, error) {
	in.mu.Lock()
	busy := in.token != nil
	in.mu.Unlock()
	if busy {
		return false, nil
	}

	c := in.Connection()
	if c == nil || c.State() != domain.ConnectionUnread {
		return false, nil
	}
	tok, err := c.ReadToken()
	if err != nil {
		return false, err
	}

	in.mu.Lock()
	in.token = tok
	in.fromConn = c
	in.mu.Unlock()
	in.setSeq(tok.Seq())
	return true, nil
}

// free drops the buffered token and acknowledges it on its connection.
func (in *Input) free() error {
	in.mu.Lock()
	c := in.fromConn
	in.token = nil
	in.fromConn = nil
	in.mu.Unlock()

	if c == nil {
		return nil
	}
	return c.SetTokenProcessed()
}

// reset drops the buffer and resets the connection without acknowledging.
func (in *Input) reset() {
	in.mu.Lock()
	in.token = nil
	in.fromConn = nil
	in.mu.Unlock()
	for _, c := range in.Connections() {
		c.Reset()
	}
}

func (in *Input) Describe() domain.ConnectorDescription {
	d := in.connectorBase.Describe()
	d.Optional = in.optional
	return d
}

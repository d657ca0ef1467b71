package engine

import (
	"fmt"
	"sync"

	"github.com/aretw0/conduit/pkg/domain"
)

// Connector is the common surface of inputs, outputs, slots and triggers.
type Connector interface {
	ID() string
	Label() string
	NodeID() string
	Kind() domain.ConnectorKind
	Type() domain.TypeDescriptor
	Param() string

	Enabled() bool
	SetEnabled(enabled bool)
	Erroring() bool
	Seq() int64

	IsConnected() bool
	Connections() []*Connection
	Describe() domain.ConnectorDescription
}

// Sender is a connector that can be the source of a connection.
type Sender interface {
	Connector
	attach(c *Connection) error
	detach(c *Connection)
	tokenProcessed(c *Connection)
}

// Receiver is a connector that can be the sink of a connection.
type Receiver interface {
	Connector
	attach(c *Connection) error
	detach(c *Connection)
	messageArrived(c *Connection)
}

// connectorBase carries identity and flags shared by all variants.
type connectorBase struct {
	id     string
	label  string
	nodeID string
	kind   domain.ConnectorKind
	typ    domain.TypeDescriptor
	param  string

	flagsMu  sync.RWMutex
	enabled  bool
	erroring bool
	seq      int64

	connsMu sync.RWMutex
	conns   []*Connection
}

func newBase(nodeID, id, label string, kind domain.ConnectorKind, typ domain.TypeDescriptor) connectorBase {
	return connectorBase{
		id:      id,
		label:   label,
		nodeID:  nodeID,
		kind:    kind,
		typ:     typ,
		enabled: true,
	}
}

func (b *connectorBase) ID() string                  { return b.id }
func (b *connectorBase) Label() string               { return b.label }
func (b *connectorBase) NodeID() string              { return b.nodeID }
func (b *connectorBase) Kind() domain.ConnectorKind  { return b.kind }
func (b *connectorBase) Type() domain.TypeDescriptor { return b.typ }

// Param returns the parameter name for parameter bridges, "" otherwise.
func (b *connectorBase) Param() string { return b.param }

func (b *connectorBase) Enabled() bool {
	b.flagsMu.RLock()
	defer b.flagsMu.RUnlock()
	return b.enabled
}

func (b *connectorBase) SetEnabled(enabled bool) {
	b.flagsMu.Lock()
	b.enabled = enabled
	b.flagsMu.Unlock()
}

func (b *connectorBase) Erroring() bool {
	b.flagsMu.RLock()
	defer b.flagsMu.RUnlock()
	return b.erroring
}

func (b *connectorBase) setErroring(e bool) {
	b.flagsMu.Lock()
	b.erroring = e
	b.flagsMu.Unlock()
}

func (b *connectorBase) Seq() int64 {
	b.flagsMu.RLock()
	defer b.flagsMu.RUnlock()
	return b.seq
}

func (b *connectorBase) setSeq(seq int64) {
	b.flagsMu.Lock()
	b.seq = seq
	b.flagsMu.Unlock()
}

func (b *connectorBase) IsConnected() bool {
	b.connsMu.RLock()
	defer b.connsMu.RUnlock()
	return len(b.conns) > 0
}

// Connections returns a copy of the attached connections.
func (b *connectorBase) Connections() []*Connection {
	b.connsMu.RLock()
	defer b.connsMu.RUnlock()
	return append([]*Connection(nil), b.conns...)
}

func (b *connectorBase) addConn(c *Connection) {
	b.connsMu.Lock()
	b.conns = append(b.conns, c)
	b.connsMu.Unlock()
}

func (b *connectorBase) removeConn(c *Connection) {
	b.connsMu.Lock()
	defer b.connsMu.Unlock()
	for i, existing := range b.conns {
		if existing == c {
			b.conns = append(b.conns[:i:i], b.conns[i+1:]...)
			return
		}
	}
}

func (b *connectorBase) Describe() domain.ConnectorDescription {
	b.flagsMu.RLock()
	defer b.flagsMu.RUnlock()
	return domain.ConnectorDescription{
		ID:      b.id,
		Label:   b.label,
		Kind:    b.kind,
		Type:    b.typ.String(),
		Enabled: b.enabled,
		Param:   b.param,
		Seq:     b.seq,
	}
}

func (b *connectorBase) String() string {
	return fmt.Sprintf("%s(%s)", b.id, b.label)
}

// compatible reports whether from may be linked to to.
func compatible(from Sender, to Receiver) error {
	if from.Kind().IsEvent() != to.Kind().IsEvent() {
		return fmt.Errorf("%w: cannot link %s %s to %s %s", domain.ErrIncompatible, from.Kind(), from.ID(), to.Kind(), to.ID())
	}
	if !from.Type().CanConnectTo(to.Type()) {
		return fmt.Errorf("%w: type %s of %s does not match type %s of %s", domain.ErrIncompatible, from.Type(), from.ID(), to.Type(), to.ID())
	}
	return nil
}

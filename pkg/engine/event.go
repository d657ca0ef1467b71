package engine

import (
	"github.com/aretw0/conduit/pkg/domain"
)

// Slot receives activation signals. Slots accept any number of connections;
// each signal is handled and acknowledged on its own.
type Slot struct {
	connectorBase
	arrived func(*Slot, *Connection)
}

func newSlot(nodeID, id, label string, arrived func(*Slot, *Connection)) *Slot {
	return &Slot{
		connectorBase: newBase(nodeID, id, label, domain.KindSlot, domain.Type(domain.TypeSignal)),
		arrived:       arrived,
	}
}

func (s *Slot) attach(c *Connection) error {
	s.addConn(c)
	return nil
}

func (s *Slot) detach(c *Connection) { s.removeConn(c) }

func (s *Slot) messageArrived(c *Connection) {
	if s.arrived != nil {
		s.arrived(s, c)
	}
}

// Trigger emits activation signals to connected slots.
type Trigger struct {
	connectorBase
}

func newTrigger(nodeID, id, label string) *Trigger {
	return &Trigger{connectorBase: newBase(nodeID, id, label, domain.KindTrigger, domain.Type(domain.TypeSignal))}
}

// Fire sends a signal to every connected slot that is ready for one and
// returns how many received it. Busy connections are skipped.
func (t *Trigger) Fire() (int, error) {
	return t.FireValue(nil)
}

// FireValue is Fire with a payload attached to the signal.
func (t *Trigger) FireValue(value any) (int, error) {
	if !t.Enabled() {
		return 0, nil
	}
	seq := t.Seq() + 1
	t.setSeq(seq)
	tok := domain.NewToken(domain.TypeSignal, value).Stamp(true, seq)

	sent := 0
	for _, c := range t.Connections() {
		if c.State() != domain.ConnectionNotInitialized {
			continue
		}
		delivered, err := c.deliver(tok)
		if err != nil {
			return sent, err
		}
		if delivered {
			sent++
		}
	}
	return sent, nil
}

func (t *Trigger) attach(c *Connection) error {
	t.addConn(c)
	return nil
}

func (t *Trigger) detach(c *Connection) { t.removeConn(c) }

func (t *Trigger) tokenProcessed(_ *Connection) {}

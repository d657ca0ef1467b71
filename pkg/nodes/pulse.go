package nodes

import (
	"context"

	"github.com/aretw0/conduit/pkg/engine"
)

// Pulse fires its trigger every "every" ticks, and whenever the "fire"
// trigger parameter is set.
type Pulse struct {
	trig   *engine.Trigger
	params *engine.Parameters
	ticks  int
	fired  int
}

func (p *Pulse) Setup(m engine.Modifier) error {
	p.trig = m.AddTrigger("pulse")
	m.SetIsSource(true)
	return nil
}

func (p *Pulse) SetupParameters(ps *engine.Parameters) {
	p.params = ps
	ps.AddInt("every", 1)
	ps.AddTrigger("fire").OnChange(func(*engine.Param) { p.fire() })
}

func (p *Pulse) CanTick() bool { return true }

func (p *Pulse) Tick(context.Context) error {
	p.ticks++
	if every := p.params.Int("every"); every > 0 && p.ticks%every == 0 {
		p.fire()
	}
	return nil
}

// Fired returns how many pulses were emitted.
func (p *Pulse) Fired() int { return p.fired }

func (p *Pulse) fire() {
	p.fired++
	if _, err := p.trig.Fire(); err != nil {
		panic(err)
	}
}

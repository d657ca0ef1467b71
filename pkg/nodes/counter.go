package nodes

import (
	"context"

	"github.com/aretw0/conduit/pkg/domain"
	"github.com/aretw0/conduit/pkg/engine"
)

// Counter emits start+step, start+2*step, ... on every tick.
type Counter struct {
	out    *engine.Output
	params *engine.Parameters
	value  int
	primed bool
}

func (c *Counter) Setup(m engine.Modifier) error {
	c.out = m.AddOutput(domain.TypeInt, "value")
	return nil
}

func (c *Counter) SetupParameters(p *engine.Parameters) {
	c.params = p
	p.AddInt("start", 0).OnChange(func(pr *engine.Param) {
		c.value = pr.Value().(int)
		c.primed = true
	})
	p.AddInt("step", 1)
	p.AddTrigger("reset").OnChange(func(*engine.Param) {
		c.value = c.params.Int("start")
		c.primed = true
	})
}

func (c *Counter) CanTick() bool { return true }

func (c *Counter) Tick(context.Context) error {
	if !c.primed {
		c.value = c.params.Int("start")
		c.primed = true
	}
	c.value += c.params.Int("step")
	c.out.Send(c.value)
	return nil
}

// Constant emits its value parameter on every tick.
type Constant struct {
	out    *engine.Output
	params *engine.Parameters
}

func (c *Constant) Setup(m engine.Modifier) error {
	c.out = m.AddOutput(domain.TypeFloat, "value")
	return nil
}

func (c *Constant) SetupParameters(p *engine.Parameters) {
	c.params = p
	p.AddFloat("value", 0)
}

func (c *Constant) CanTick() bool { return true }

func (c *Constant) Tick(context.Context) error {
	c.out.Send(c.params.Float("value"))
	return nil
}

package nodes

import (
	"context"

	"github.com/aretw0/conduit/pkg/domain"
	"github.com/aretw0/conduit/pkg/engine"
)

// Relay forwards its input. When the optional gate input is connected and
// carries false, the round is published without a value.
type Relay struct {
	out *engine.Output
}

func (r *Relay) Setup(m engine.Modifier) error {
	m.AddInput(domain.TypeAny, "in", false)
	m.AddInput(domain.TypeBool, "gate", true)
	r.out = m.AddOutput(domain.TypeAny, "out")
	return nil
}

func (r *Relay) ProcessIO(_ context.Context, in engine.Inputs, _ *engine.Parameters) error {
	if open, ok := engine.Get[bool](in, "gate"); ok && !open {
		return nil
	}
	r.out.SendToken(in.Token("in"))
	return nil
}

package nodes

import (
	"context"
	"sync"
	"time"

	"github.com/aretw0/conduit/pkg/domain"
	"github.com/aretw0/conduit/pkg/engine"
)

// Delay forwards its input after the "ms" parameter elapsed. The worker is
// free while the timer runs; the round completes through its continuation.
type Delay struct {
	out *engine.Output

	mu    sync.Mutex
	timer *time.Timer
}

func (d *Delay) Setup(m engine.Modifier) error {
	m.AddInput(domain.TypeAny, "in", false)
	d.out = m.AddOutput(domain.TypeAny, "out")
	return nil
}

func (d *Delay) SetupParameters(p *engine.Parameters) {
	p.AddInt("ms", 10)
}

func (d *Delay) ProcessAsync(_ context.Context, in engine.Inputs, params *engine.Parameters, done engine.Continuation) error {
	tok := in.Token("in")
	wait := time.Duration(params.Int("ms")) * time.Millisecond

	d.mu.Lock()
	d.timer = time.AfterFunc(wait, func() {
		d.out.SendToken(tok)
		_ = done(nil)
	})
	d.mu.Unlock()
	return nil
}

// Abort cancels a pending timer; the continuation is then reported lost.
func (d *Delay) Abort() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

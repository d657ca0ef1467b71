package nodes

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/aretw0/conduit/pkg/domain"
	"github.com/aretw0/conduit/pkg/engine"
)

// Printer writes every value it receives, one line each.
type Printer struct {
	Out io.Writer

	logger *slog.Logger
	mu     sync.Mutex
	count  int
}

func (p *Printer) Setup(m engine.Modifier) error {
	m.AddInput(domain.TypeAny, "in", false)
	p.logger = m.Logger()
	return nil
}

func (p *Printer) SetupParameters(ps *engine.Parameters) {
	ps.AddString("prefix", "")
}

func (p *Printer) ProcessIO(_ context.Context, in engine.Inputs, params *engine.Parameters) error {
	p.mu.Lock()
	p.count++
	p.mu.Unlock()

	value := in.Value("in")
	p.logger.Debug("printing", "value", value)
	if p.Out == nil {
		return nil
	}
	_, err := fmt.Fprintf(p.Out, "%s%v\n", params.String("prefix"), value)
	return err
}

// Count returns how many values were printed.
func (p *Printer) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

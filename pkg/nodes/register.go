package nodes

import (
	"errors"
	"io"
	"os"

	"github.com/aretw0/conduit/pkg/engine"
	"github.com/aretw0/conduit/pkg/registry"
)

// Type names of the built-in nodes.
const (
	CounterType  = "counter"
	ConstantType = "constant"
	AddType      = "add"
	RelayType    = "relay"
	PrinterType  = "printer"
	DelayType    = "delay"
	PulseType    = "pulse"
)

// Option configures the registered constructors.
type Option func(*config)

type config struct {
	out io.Writer
}

// WithOutput sets where printer nodes write. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(c *config) { c.out = w }
}

// Register adds every built-in node type to r.
func Register(r *registry.Registry, opts ...Option) error {
	cfg := config{out: os.Stdout}
	for _, opt := range opts {
		opt(&cfg)
	}

	return errors.Join(
		r.RegisterNode(CounterType, func() engine.Node { return &Counter{} },
			"ticking source emitting an increasing integer"),
		r.RegisterNode(ConstantType, func() engine.Node { return &Constant{} },
			"source emitting its value parameter on every tick"),
		r.RegisterNode(AddType, func() engine.Node { return &Add{} },
			"joins two numeric inputs and emits their sum"),
		r.RegisterNode(RelayType, func() engine.Node { return &Relay{} },
			"forwards its input unless the optional gate input is false"),
		r.RegisterNode(PrinterType, func() engine.Node { return &Printer{Out: cfg.out} },
			"sink writing every value it receives"),
		r.RegisterNode(DelayType, func() engine.Node { return &Delay{} },
			"forwards its input after a delay without blocking the worker"),
		r.RegisterNode(PulseType, func() engine.Node { return &Pulse{} },
			"fires its trigger every n ticks or when its fire parameter is set"),
	)
}

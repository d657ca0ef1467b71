package engine

import (
	"context"
	"log/slog"
	"sort"

	"github.com/aretw0/conduit/pkg/domain"
)

// Node is the contract every node body implements. Setup declares the
// node's connectors through the Modifier.
type Node interface {
	Setup(m Modifier) error
}

// Modifier is the port-declaration surface handed to Node.Setup.
type Modifier interface {
	AddInput(typ, label string, optional bool) *Input
	AddOutput(typ, label string) *Output
	AddSlot(label string, fn func(*domain.Token)) *Slot
	AddTrigger(label string) *Trigger
	SetIsSource(source bool)
	SetIsSink(sink bool)
	Logger() *slog.Logger
}

// ParameterSetup is implemented by bodies that declare parameters.
type ParameterSetup interface {
	SetupParameters(p *Parameters)
}

// Processor is the simplest processing variant; the body reads its inputs
// through the connectors it declared.
type Processor interface {
	Process(ctx context.Context) error
}

// IOProcessor receives the tokens of the round and the node parameters.
type IOProcessor interface {
	ProcessIO(ctx context.Context, in Inputs, params *Parameters) error
}

// Continuation resumes an asynchronous round. It must be called exactly once;
// later calls return domain.ErrContinuationReused.
type Continuation func(err error) error

// AsyncProcessor completes a round later by calling done.
type AsyncProcessor interface {
	ProcessAsync(ctx context.Context, in Inputs, params *Parameters, done Continuation) error
}

// Ticker is implemented by source bodies driven by the scheduler clock.
type Ticker interface {
	CanTick() bool
	Tick(ctx context.Context) error
}

// Aborter is implemented by bodies that can interrupt in-flight work.
type Aborter interface {
	Abort()
}

// Inputs is the set of tokens received for one round, keyed by input label.
type Inputs struct {
	tokens map[string]*domain.Token
}

// Token returns the token received on label, nil when none.
func (in Inputs) Token(label string) *domain.Token {
	return in.tokens[label]
}

// Has reports whether label received a real, non-marker token.
func (in Inputs) Has(label string) bool {
	tok, ok := in.tokens[label]
	return ok && !tok.IsNoMessage()
}

// Value returns the payload received on label, nil when none.
func (in Inputs) Value(label string) any {
	if !in.Has(label) {
		return nil
	}
	return in.tokens[label].Value()
}

// Labels returns the labels that received a token.
func (in Inputs) Labels() []string {
	out := make([]string, 0, len(in.tokens))
	for k := range in.tokens {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Get extracts the payload received on label as T.
func Get[T any](in Inputs, label string) (T, bool) {
	return domain.ValueAs[T](in.tokens[label])
}

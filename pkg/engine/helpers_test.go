package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aretw0/conduit/pkg/domain"
)

// counterSource emits 1, 2, 3... on every tick.
type counterSource struct {
	out   *Output
	n     int
	ticks int
}

func (s *counterSource) Setup(m Modifier) error {
	s.out = m.AddOutput(domain.TypeInt, "value")
	return nil
}

func (s *counterSource) CanTick() bool { return true }

func (s *counterSource) Tick(context.Context) error {
	s.ticks++
	s.n++
	s.out.Send(s.n)
	return nil
}

// recordingSink stores every value received on its mandatory input.
type recordingSink struct {
	mu     sync.Mutex
	in     *Input
	values []any
	calls  int
}

func (s *recordingSink) Setup(m Modifier) error {
	s.in = m.AddInput(domain.TypeInt, "value", false)
	return nil
}

func (s *recordingSink) Process(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.values = append(s.values, s.in.Value())
	return nil
}

func (s *recordingSink) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// joinSink has two mandatory inputs.
type joinSink struct {
	calls int
	seen  []map[string]any
}

func (j *joinSink) Setup(m Modifier) error {
	m.AddInput(domain.TypeInt, "in0", false)
	m.AddInput(domain.TypeInt, "in1", false)
	return nil
}

func (j *joinSink) ProcessIO(_ context.Context, in Inputs, _ *Parameters) error {
	j.calls++
	j.seen = append(j.seen, map[string]any{"in0": in.Value("in0"), "in1": in.Value("in1")})
	return nil
}

// optionalSink has one mandatory and one optional input.
type optionalSink struct {
	calls int
	extra []bool
}

func (o *optionalSink) Setup(m Modifier) error {
	m.AddInput(domain.TypeInt, "value", false)
	m.AddInput(domain.TypeInt, "extra", true)
	return nil
}

func (o *optionalSink) ProcessIO(_ context.Context, in Inputs, _ *Parameters) error {
	o.calls++
	o.extra = append(o.extra, in.Has("extra"))
	return nil
}

// failingSink fails according to a scripted list of outcomes.
type failingSink struct {
	in      *Input
	script  []any
	calls   int
	success int
}

func (f *failingSink) Setup(m Modifier) error {
	f.in = m.AddInput(domain.TypeInt, "value", false)
	return nil
}

func (f *failingSink) Process(context.Context) error {
	step := f.calls
	f.calls++
	if step < len(f.script) {
		switch v := f.script[step].(type) {
		case error:
			return v
		case string:
			panic(v)
		case panicValue:
			panic(v.v)
		}
	}
	f.success++
	return nil
}

type panicValue struct{ v any }

// faultySink indexes past the end of its buffer on every round.
type faultySink struct {
	buf []int
	at  int
}

func (f *faultySink) Setup(m Modifier) error {
	m.AddInput(domain.TypeInt, "value", false)
	f.at = 3
	return nil
}

func (f *faultySink) Process(context.Context) error {
	f.buf[f.at]++
	return nil
}

// heldSink never acknowledges on its own: each round stays open until the
// test calls release.
type heldSink struct {
	mu      sync.Mutex
	pending []Continuation
	values  []any
}

func (h *heldSink) Setup(m Modifier) error {
	m.AddInput(domain.TypeAny, "value", false)
	return nil
}

func (h *heldSink) ProcessAsync(_ context.Context, in Inputs, _ *Parameters, done Continuation) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.values = append(h.values, in.Value("value"))
	h.pending = append(h.pending, done)
	return nil
}

func (h *heldSink) release(t *testing.T) Continuation {
	t.Helper()
	h.mu.Lock()
	require.NotEmpty(t, h.pending, "no held round")
	done := h.pending[0]
	h.pending = h.pending[1:]
	h.mu.Unlock()
	require.NoError(t, done(nil))
	return done
}

func (h *heldSink) held() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// pairSource writes to its first output only when told to.
type pairSource struct {
	a, b   *Output
	sendB  bool
	ticked int
}

func (p *pairSource) Setup(m Modifier) error {
	p.a = m.AddOutput(domain.TypeInt, "a")
	p.b = m.AddOutput(domain.TypeInt, "b")
	return nil
}

func (p *pairSource) CanTick() bool { return true }

func (p *pairSource) Tick(context.Context) error {
	p.ticked++
	p.a.Send(p.ticked)
	if p.sendB {
		p.b.Send(-p.ticked)
	}
	return nil
}

// paramNode exposes parameters and counts callback runs.
type paramNode struct {
	changes []int
	fired   int
}

func (p *paramNode) Setup(m Modifier) error {
	m.AddInput(domain.TypeInt, "value", true)
	return nil
}

func (p *paramNode) SetupParameters(ps *Parameters) {
	ps.AddInt("gain", 2).OnChange(func(pr *Param) {
		p.changes = append(p.changes, pr.Value().(int))
	})
	ps.AddInt("gain", 99)
	ps.AddFloatRange("window", 0, 1)
	ps.AddTrigger("reset").OnChange(func(*Param) { p.fired++ })
}

func (p *paramNode) Process(context.Context) error { return nil }

var errX = errors.New("x")

func newTestGraph(t *testing.T, opts ...Option) *Graph {
	t.Helper()
	return NewGraph(opts...)
}

func mustAdd(t *testing.T, g *Graph, id string, body Node, opts ...Option) *NodeWorker {
	t.Helper()
	w, err := g.AddNode(id, "test", body, opts...)
	require.NoError(t, err)
	return w
}

func mustConnect(t *testing.T, g *Graph, from, to string) *Connection {
	t.Helper()
	c, err := g.Connect(from, to)
	require.NoError(t, err)
	return c
}

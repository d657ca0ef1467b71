package nodes

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/conduit/pkg/domain"
	"github.com/aretw0/conduit/pkg/engine"
	"github.com/aretw0/conduit/pkg/registry"
)

// syncBuffer is a bytes.Buffer safe for the timer goroutines of Delay.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// boolSource emits the values of script, one per tick.
type boolSource struct {
	out    *engine.Output
	script []bool
}

func (s *boolSource) Setup(m engine.Modifier) error {
	s.out = m.AddOutput(domain.TypeBool, "value")
	return nil
}

func (s *boolSource) CanTick() bool { return len(s.script) > 0 }

func (s *boolSource) Tick(context.Context) error {
	s.out.Send(s.script[0])
	s.script = s.script[1:]
	return nil
}

type fixture struct {
	t     *testing.T
	reg   *registry.Registry
	graph *engine.Graph
	out   *syncBuffer
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	out := &syncBuffer{}
	reg := registry.NewRegistry()
	require.NoError(t, reg.Init())
	require.NoError(t, Register(reg, WithOutput(out)))
	return &fixture{t: t, reg: reg, graph: engine.NewGraph(), out: out}
}

func (f *fixture) add(id, typ string) *engine.NodeWorker {
	f.t.Helper()
	body, err := f.reg.NewNode(typ)
	require.NoError(f.t, err)
	w, err := f.graph.AddNode(id, typ, body)
	require.NoError(f.t, err)
	return w
}

func (f *fixture) connect(from, to string) {
	f.t.Helper()
	_, err := f.graph.Connect(from, to)
	require.NoError(f.t, err)
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	var names []string
	for _, nt := range f.reg.NodeTypes() {
		names = append(names, nt.Name)
		assert.NotEmpty(t, nt.Description)
	}
	assert.Equal(t, []string{"add", "constant", "counter", "delay", "printer", "pulse", "relay"}, names)
}

func TestCounterToPrinter(t *testing.T) {
	f := newFixture(t)
	c := f.add("c", CounterType)
	p := f.add("p", PrinterType)
	f.connect("c.value", "p.in")
	require.NoError(t, p.Parameters().Set("prefix", "n="))

	for i := 0; i < 3; i++ {
		c.Tick()
	}
	assert.Equal(t, "n=1\nn=2\nn=3\n", f.out.String())
}

func TestCounterParameters(t *testing.T) {
	f := newFixture(t)
	c := f.add("c", CounterType)
	f.add("p", PrinterType)
	f.connect("c.value", "p.in")

	require.NoError(t, c.Parameters().Set("start", 10))
	require.NoError(t, c.Parameters().Set("step", 5))
	c.Tick()
	c.Tick()
	assert.Equal(t, "15\n20\n", f.out.String())
}

func TestAdd(t *testing.T) {
	f := newFixture(t)
	a := f.add("a", ConstantType)
	b := f.add("b", ConstantType)
	f.add("sum", AddType)
	f.add("p", PrinterType)
	f.connect("a.value", "sum.a")
	f.connect("b.value", "sum.b")
	f.connect("sum.sum", "p.in")

	require.NoError(t, a.Parameters().Set("value", 1.5))
	require.NoError(t, b.Parameters().Set("value", "2"))

	a.Tick()
	assert.Empty(t, f.out.String(), "the join waits for both inputs")
	b.Tick()
	assert.Equal(t, "3.5\n", f.out.String())
}

func TestToFloat(t *testing.T) {
	v, err := toFloat(3)
	require.NoError(t, err)
	assert.Equal(t, 3.0, v)

	_, err = toFloat("3")
	assert.Error(t, err)
}

func TestRelayGate(t *testing.T) {
	f := newFixture(t)
	c := f.add("c", CounterType)
	gate := &boolSource{script: []bool{false, true}}
	g, err := f.graph.AddNode("gate", "bool", gate)
	require.NoError(t, err)
	f.add("r", RelayType)
	p := f.add("p", PrinterType)
	f.connect("c.value", "r.in")
	f.connect("gate.value", "r.gate")
	f.connect("r.out", "p.in")

	c.Tick()
	g.Tick()
	assert.Empty(t, f.out.String(), "a closed gate publishes no value")

	c.Tick()
	g.Tick()
	assert.Equal(t, "2\n", f.out.String())
	assert.Equal(t, 1, p.Body().(*Printer).Count())
}

func TestDelay(t *testing.T) {
	f := newFixture(t)
	c := f.add("c", CounterType)
	d := f.add("d", DelayType)
	f.add("p", PrinterType)
	f.connect("c.value", "d.in")
	f.connect("d.out", "p.in")
	require.NoError(t, d.Parameters().Set("ms", 1))

	c.Tick()
	require.Eventually(t, func() bool { return f.out.String() == "1\n" }, time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return c.State() == domain.WorkerIdle }, time.Second, time.Millisecond)

	c.Tick()
	require.Eventually(t, func() bool { return f.out.String() == "1\n2\n" }, time.Second, time.Millisecond)
}

func TestDelayAbortLosesRound(t *testing.T) {
	f := newFixture(t)
	c := f.add("c", CounterType)
	d := f.add("d", DelayType)
	f.add("p", PrinterType)
	f.connect("c.value", "d.in")
	f.connect("d.out", "p.in")
	require.NoError(t, d.Parameters().Set("ms", 50))

	c.Tick()
	require.True(t, d.PendingContinuation())
	d.Stop()

	time.Sleep(80 * time.Millisecond)
	assert.Empty(t, f.out.String())
	assert.Equal(t, domain.LevelWarning, d.Error().Level)
	assert.Equal(t, domain.ErrContinuationLost.Error(), d.Error().Message)
}

func TestPulse(t *testing.T) {
	f := newFixture(t)
	pw := f.add("pulse", PulseType)
	c := f.add("c", CounterType)
	f.add("p", PrinterType)
	f.connect("c.value", "p.in")
	f.connect("pulse.pulse", "c.reset")
	require.NoError(t, pw.Parameters().Set("every", 2))

	c.Tick()
	c.Tick()
	pw.Tick()
	pw.Tick()
	c.Tick()
	assert.Equal(t, "1\n2\n1\n", f.out.String())

	pulse := pw.Body().(*Pulse)
	assert.Equal(t, 1, pulse.Fired())
	require.NoError(t, pw.Parameters().Set("fire", true))
	assert.Equal(t, 2, pulse.Fired())
}

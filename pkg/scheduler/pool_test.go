package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/conduit/pkg/domain"
	"github.com/aretw0/conduit/pkg/engine"
)

type counter struct {
	out *engine.Output
	n   int
}

func (c *counter) Setup(m engine.Modifier) error {
	c.out = m.AddOutput(domain.TypeInt, "value")
	return nil
}

func (c *counter) CanTick() bool { return true }

func (c *counter) Tick(context.Context) error {
	c.n++
	c.out.Send(c.n)
	return nil
}

type collector struct {
	mu     sync.Mutex
	in     *engine.Input
	values []int
}

func (c *collector) Setup(m engine.Modifier) error {
	c.in = m.AddInput(domain.TypeInt, "value", false)
	return nil
}

func (c *collector) Process(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values = append(c.values, c.in.Value().(int))
	return nil
}

func (c *collector) snapshot() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.values...)
}

// bomb panics with v on every tick.
type bomb struct{ v any }

func (b *bomb) Setup(m engine.Modifier) error {
	m.SetIsSource(true)
	return nil
}

func (b *bomb) CanTick() bool { return true }

func (b *bomb) Tick(context.Context) error { panic(b.v) }

func pipeline(t *testing.T, p *Pool, srcGroup, sinkGroup int) *collector {
	t.Helper()
	g := engine.NewGraph()
	src, err := g.AddNode("src", "counter", &counter{})
	require.NoError(t, err)
	sink := &collector{}
	dst, err := g.AddNode("sink", "collector", sink)
	require.NoError(t, err)
	_, err = g.Connect("src.value", "sink.value")
	require.NoError(t, err)

	require.NoError(t, p.Add(src, srcGroup))
	require.NoError(t, p.Add(dst, sinkGroup))
	return sink
}

func startPool(t *testing.T, p *Pool) {
	t.Helper()
	require.NoError(t, p.Start(context.Background()))
	t.Cleanup(p.Stop)
}

func TestPool_StepDrivesTheGraph(t *testing.T) {
	p := New(WithTickFrequency(0))
	sink := pipeline(t, p, DefaultGroup, PrivateGroup)
	startPool(t, p)

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		require.NoError(t, p.Step(ctx))
	}
	assert.Equal(t, []int{1, 2, 3}, sink.snapshot())
}

func TestPool_StepSignals(t *testing.T) {
	p := New(WithTickFrequency(0))
	pipeline(t, p, DefaultGroup, DefaultGroup)
	startPool(t, p)

	var events []string
	p.BeginStep.Subscribe(func(struct{}) { events = append(events, "begin") })
	p.EndStep.Subscribe(func(struct{}) { events = append(events, "end") })

	require.NoError(t, p.Step(context.Background()))
	assert.Equal(t, []string{"begin", "end"}, events)
}

func TestPool_StepPreconditions(t *testing.T) {
	p := New(WithTickFrequency(0))
	assert.ErrorIs(t, p.Step(context.Background()), ErrNotRunning)

	startPool(t, p)
	assert.ErrorIs(t, p.Start(context.Background()), ErrAlreadyStarted)

	p.SetPause(true)
	assert.ErrorIs(t, p.Step(context.Background()), ErrPaused)
}

func TestPool_ClockTicksSources(t *testing.T) {
	p := New(WithTickFrequency(500))
	sink := pipeline(t, p, 1, 2)
	startPool(t, p)

	require.Eventually(t, func() bool { return len(sink.snapshot()) >= 3 }, 2*time.Second, 5*time.Millisecond)
	values := sink.snapshot()
	for i, v := range values {
		assert.Equal(t, i+1, v, "tokens arrive in order without gaps")
	}
}

func TestPool_FreeRunningClock(t *testing.T) {
	p := New(WithTickFrequency(-1))
	sink := pipeline(t, p, DefaultGroup, DefaultGroup)
	startPool(t, p)

	require.Eventually(t, func() bool { return len(sink.snapshot()) >= 5 }, 2*time.Second, 5*time.Millisecond)
}

func TestPool_Groups(t *testing.T) {
	p := New(WithTickFrequency(0))
	pipeline(t, p, 3, PrivateGroup)

	stats := p.Stats()
	require.Len(t, stats, 2)
	assert.Equal(t, "group-3", stats[0].Name)
	assert.Equal(t, 1, stats[0].Workers)
	assert.Equal(t, "private-sink", stats[1].Name)
	assert.Equal(t, PrivateGroup, stats[1].ID)
}

func TestPool_Threadless(t *testing.T) {
	p := New(WithTickFrequency(0), WithThreadless())
	sink := pipeline(t, p, 3, PrivateGroup)

	stats := p.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, 2, stats[0].Workers)

	startPool(t, p)
	require.NoError(t, p.Step(context.Background()))
	assert.Equal(t, []int{1}, sink.snapshot())
}

func TestPool_AddTwice(t *testing.T) {
	p := New()
	w, err := engine.NewWorker("a", "counter", &counter{})
	require.NoError(t, err)
	require.NoError(t, p.Add(w, DefaultGroup))
	assert.Error(t, p.Add(w, DefaultGroup))
	assert.True(t, p.Remove("a"))
	assert.False(t, p.Remove("a"))
}

func TestPool_ForeignPanicHalts(t *testing.T) {
	var handled error
	p := New(WithTickFrequency(0), WithErrorHandler(func(err error) { handled = err }))
	w, err := engine.NewWorker("bomb", "bomb", &bomb{v: 42})
	require.NoError(t, err)
	require.NoError(t, p.Add(w, DefaultGroup))
	require.NoError(t, p.Start(context.Background()))

	_ = p.Step(context.Background())
	err = p.Wait()
	assert.ErrorIs(t, err, domain.ErrFatal)
	assert.Equal(t, err, handled)
	assert.True(t, w.IsStopped())
	assert.ErrorIs(t, p.Step(context.Background()), ErrNotRunning)
}

func TestPool_InvariantViolationHalts(t *testing.T) {
	p := New(WithTickFrequency(0))
	w, err := engine.NewWorker("bomb", "bomb", &bomb{v: domain.Invariant("test", "broken")})
	require.NoError(t, err)
	require.NoError(t, p.Add(w, DefaultGroup))
	require.NoError(t, p.Start(context.Background()))

	_ = p.Step(context.Background())
	err = p.Wait()

	var inv *domain.InvariantError
	require.True(t, errors.As(err, &inv))
	assert.Equal(t, "test", inv.Where)
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)
}

func TestPool_StopReleasesPausedWorkers(t *testing.T) {
	p := New(WithTickFrequency(0))
	w, err := engine.NewWorker("src", "counter", &counter{})
	require.NoError(t, err)
	require.NoError(t, p.Add(w, DefaultGroup))
	require.NoError(t, p.Start(context.Background()))

	p.SetPause(true)
	w.Tick()

	stopped := make(chan struct{})
	go func() {
		p.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop blocked on a paused worker")
	}
	assert.NoError(t, p.Wait())
	assert.True(t, w.IsStopped())
}

func TestPool_PausedSignal(t *testing.T) {
	p := New(WithInitiallyPaused())
	assert.True(t, p.IsPaused())

	var seen []bool
	p.Paused.Subscribe(func(v bool) { seen = append(seen, v) })
	p.SetPause(true)
	p.SetPause(false)
	p.SetPause(false)
	assert.Equal(t, []bool{false}, seen)
}

func TestPool_ContextCancelStops(t *testing.T) {
	p := New(WithTickFrequency(0))
	pipeline(t, p, DefaultGroup, DefaultGroup)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Start(ctx))
	cancel()

	select {
	case <-p.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("pool did not stop")
	}
	assert.NoError(t, p.Wait())
}

func TestContain(t *testing.T) {
	assert.ErrorIs(t, contain("boom"), domain.ErrFatal)
	assert.ErrorIs(t, contain(errors.New("boom")), domain.ErrFatal)
	inv := domain.Invariant("x", "y")
	assert.Same(t, inv, contain(inv))
}

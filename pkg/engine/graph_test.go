package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/conduit/pkg/domain"
)

// stringSink only accepts strings.
type stringSink struct{}

func (stringSink) Setup(m Modifier) error {
	m.AddInput(domain.TypeString, "text", false)
	return nil
}

func (stringSink) Process(context.Context) error { return nil }

func TestGraph_ConnectErrors(t *testing.T) {
	g := newTestGraph(t)
	mustAdd(t, g, "src", &counterSource{})
	mustAdd(t, g, "sink", &recordingSink{})
	mustAdd(t, g, "text", stringSink{})

	tests := []struct {
		name     string
		from, to string
		want     error
	}{
		{"unknown node", "nope.value", "sink.value", domain.ErrNodeNotFound},
		{"unknown connector", "src.nope", "sink.value", domain.ErrConnectorNotFound},
		{"malformed address", "src", "sink.value", domain.ErrConnectorNotFound},
		{"input as sender", "sink.value", "sink.value", domain.ErrConnectorNotFound},
		{"type mismatch", "src.value", "text.text", domain.ErrIncompatible},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.Connect(tt.from, tt.to)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Empty(t, g.Connections())
}

func TestGraph_InputTakesOneConnection(t *testing.T) {
	g := newTestGraph(t)
	mustAdd(t, g, "a", &counterSource{})
	mustAdd(t, g, "b", &counterSource{})
	mustAdd(t, g, "sink", &recordingSink{})

	mustConnect(t, g, "a.value", "sink.value")
	_, err := g.Connect("b.value", "sink.value")
	assert.ErrorIs(t, err, domain.ErrIncompatible)
	assert.Len(t, g.Connections(), 1)

	b, _ := g.Worker("b")
	assert.False(t, b.Outputs()[0].IsConnected(), "a rejected link leaves no half-attached end")
}

func TestGraph_DuplicateNode(t *testing.T) {
	g := newTestGraph(t)
	mustAdd(t, g, "a", &counterSource{})
	_, err := g.AddNode("a", "test", &counterSource{})
	assert.Error(t, err)
}

func TestGraph_ConnectByID(t *testing.T) {
	g := newTestGraph(t)
	mustAdd(t, g, "src", &counterSource{})
	mustAdd(t, g, "sink", &recordingSink{})

	c := mustConnect(t, g, "src:out_0", "sink:in_0")
	assert.Equal(t, "src:out_0", c.From().ID())
	assert.Equal(t, "sink:in_0", c.To().ID())
}

func TestGraph_DisconnectReleasesProducer(t *testing.T) {
	g := newTestGraph(t)
	src := &counterSource{}
	s := mustAdd(t, g, "src", src)
	held := &heldSink{}
	mustAdd(t, g, "sink", held)
	c := mustConnect(t, g, "src.value", "sink.value")

	s.Tick()
	require.Equal(t, 1, held.held())
	s.Tick()
	assert.Equal(t, 1, src.ticks, "the producer waits for the sink")

	require.NoError(t, g.Disconnect(c.ID()))
	assert.Empty(t, g.Connections())
	assert.Equal(t, domain.OutputIdle, s.Outputs()[0].State())
	assert.Equal(t, domain.WorkerIdle, s.State())

	s.Tick()
	assert.Equal(t, 2, src.ticks)

	assert.Error(t, g.Disconnect(c.ID()))
}

func TestGraph_RemoveNode(t *testing.T) {
	g := newTestGraph(t)
	src := &counterSource{}
	s := mustAdd(t, g, "src", src)
	sink := &recordingSink{}
	mustAdd(t, g, "sink", sink)
	mustConnect(t, g, "src.value", "sink.value")

	require.NoError(t, g.RemoveNode("sink"))
	_, ok := g.Worker("sink")
	assert.False(t, ok)
	assert.Empty(t, g.Connections())
	assert.False(t, s.Outputs()[0].IsConnected())

	s.Tick()
	assert.Equal(t, 1, src.ticks)
	assert.Empty(t, sink.values)

	assert.ErrorIs(t, g.RemoveNode("sink"), domain.ErrNodeNotFound)
}

func TestGraph_Describe(t *testing.T) {
	g := newTestGraph(t, WithGraphID("g1"))
	s := mustAdd(t, g, "src", &counterSource{})
	mustAdd(t, g, "sink", &heldSink{})
	mustConnect(t, g, "src.value", "sink.value")

	s.Tick()
	d := g.Describe()

	assert.Equal(t, "g1", d.ID)
	require.Len(t, d.Nodes, 2)
	assert.Equal(t, "src", d.Nodes[0].ID)
	assert.Equal(t, "sink", d.Nodes[1].ID)
	require.Len(t, d.Connections, 1)
	assert.Equal(t, "src:out_0", d.Connections[0].From)
	assert.Equal(t, "sink:in_0", d.Connections[0].To)
	assert.Equal(t, domain.ConnectionRead, d.Connections[0].State)
	assert.Equal(t, int64(1), d.Connections[0].Seq)
	assert.True(t, d.Connections[0].Active)

	node, ok := d.Node("sink")
	require.True(t, ok)
	assert.Equal(t, domain.WorkerProcessing, node.State)
}

func TestGraph_StopDiscardsInFlight(t *testing.T) {
	g := newTestGraph(t)
	s := mustAdd(t, g, "src", &counterSource{})
	mustAdd(t, g, "sink", &heldSink{})
	c := mustConnect(t, g, "src.value", "sink.value")

	s.Tick()
	g.Stop()

	assert.Equal(t, domain.ConnectionNotInitialized, c.State())
	for _, w := range g.Workers() {
		assert.True(t, w.IsStopped())
		assert.Equal(t, domain.WorkerStopped, w.State())
	}
}

func TestSplitAddress(t *testing.T) {
	tests := []struct {
		addr, node, ref string
		ok              bool
	}{
		{"n.value", "n", "value", true},
		{"a.b.value", "a.b", "value", true},
		{"n:out_0", "n", "out_0", true},
		{"n", "", "", false},
		{".value", "", "", false},
		{"n.", "", "", false},
	}
	for _, tt := range tests {
		node, ref, ok := SplitAddress(tt.addr)
		assert.Equal(t, tt.ok, ok, tt.addr)
		assert.Equal(t, tt.node, node, tt.addr)
		assert.Equal(t, tt.ref, ref, tt.addr)
	}
}

package conduit_test

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aretw0/conduit"
	"github.com/aretw0/conduit/pkg/adapters/memory"
	"github.com/aretw0/conduit/pkg/domain"
	"github.com/aretw0/conduit/pkg/dsl"
	"github.com/aretw0/conduit/pkg/engine"
	"github.com/aretw0/conduit/pkg/nodes"
	"github.com/aretw0/conduit/pkg/observability"
	"github.com/aretw0/conduit/pkg/registry"
	"github.com/aretw0/conduit/pkg/scheduler"
)

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

func pipelineSpec(t *testing.T) *domain.GraphSpec {
	t.Helper()
	b := dsl.New("pipeline")
	b.Node("count", "counter").Param("step", 2).Connect("value", "print.in")
	b.Node("print", "printer").Group(1)
	spec, err := b.Build()
	require.NoError(t, err)
	return spec
}

func startManual(t *testing.T, spec *domain.GraphSpec, opts ...conduit.Option) (*conduit.Engine, *syncBuffer) {
	t.Helper()
	out := &syncBuffer{}
	opts = append([]conduit.Option{conduit.WithTickFrequency(0), conduit.WithOutput(out)}, opts...)
	eng, err := conduit.New(spec, opts...)
	require.NoError(t, err)
	require.NoError(t, eng.Start(context.Background()))
	t.Cleanup(eng.Stop)
	return eng, out
}

func TestEngine_StepPipeline(t *testing.T) {
	eng, out := startManual(t, pipelineSpec(t))
	ctx := context.Background()

	assert.Equal(t, domain.StatusRunning, eng.Status())
	for i := 0; i < 3; i++ {
		require.NoError(t, eng.Step(ctx))
	}
	assert.Equal(t, "2\n4\n6\n", out.String())

	desc := eng.Inspect()
	assert.Equal(t, "pipeline", desc.ID)
	node, ok := eng.Node("count")
	require.True(t, ok)
	assert.Equal(t, int64(3), node.Ticks)

	eng.Stop()
	assert.Equal(t, domain.StatusStopped, eng.Status())
	assert.NoError(t, eng.Wait())
}

func connector(t *testing.T, node domain.NodeDescription, kind domain.ConnectorKind, label string) domain.ConnectorDescription {
	t.Helper()
	for _, c := range node.Connectors {
		if c.Kind == kind && c.Label == label {
			return c
		}
	}
	t.Fatalf("node %s has no %s connector %q", node.ID, kind, label)
	return domain.ConnectorDescription{}
}

func TestEngine_NodeTokens(t *testing.T) {
	eng, _ := startManual(t, pipelineSpec(t))
	ctx := context.Background()

	node, ok := eng.Node("count")
	require.True(t, ok)
	assert.Nil(t, connector(t, node, domain.KindOutput, "value").Token, "nothing committed yet")

	require.NoError(t, eng.Step(ctx))
	require.NoError(t, eng.Step(ctx))

	node, ok = eng.Node("count")
	require.True(t, ok)
	assert.Equal(t, map[string]any{"type": domain.TypeInt, "data": 4},
		connector(t, node, domain.KindOutput, "value").Token)

	for _, c := range eng.Inspect().Nodes[0].Connectors {
		assert.Nil(t, c.Token, "graph inspection does not carry tokens")
	}
}

// mislabeled declares an int output but sends strings.
type mislabeled struct{ out *engine.Output }

func (m *mislabeled) Setup(mod engine.Modifier) error {
	m.out = mod.AddOutput(domain.TypeInt, "value")
	return nil
}

func (m *mislabeled) CanTick() bool { return true }

func (m *mislabeled) Tick(context.Context) error {
	m.out.Send("not a number")
	return nil
}

func TestEngine_NodeDropsUnserializableTokens(t *testing.T) {
	reg := registry.NewRegistry()
	require.NoError(t, reg.Init())
	require.NoError(t, nodes.Register(reg, nodes.WithOutput(&syncBuffer{})))
	require.NoError(t, reg.RegisterNode("mislabeled", func() engine.Node { return &mislabeled{} }))

	b := dsl.New("liar")
	b.Node("src", "mislabeled").Connect("value", "print.in")
	b.Node("print", "printer")
	spec, err := b.Build()
	require.NoError(t, err)

	eng, _ := startManual(t, spec, conduit.WithRegistry(reg))
	require.NoError(t, eng.Step(context.Background()))

	node, ok := eng.Node("src")
	require.True(t, ok)
	out := connector(t, node, domain.KindOutput, "value")
	assert.Nil(t, out.Token, "a token that cannot be encoded is left out")
	assert.Equal(t, int64(1), out.Seq)
}

func TestEngine_GeneratedID(t *testing.T) {
	spec := pipelineSpec(t)
	spec.ID = ""
	eng, err := conduit.New(spec)
	require.NoError(t, err)
	assert.NotEmpty(t, eng.ID())
	assert.Equal(t, eng.ID(), eng.Spec().ID)
	assert.Empty(t, spec.ID, "the caller's spec must not be modified")
	assert.Equal(t, domain.StatusCreated, eng.Status())
}

func TestEngine_InvalidSpec(t *testing.T) {
	spec := &domain.GraphSpec{
		ID:    "bad",
		Nodes: []domain.NodeSpec{{ID: "x", Type: "teleporter"}, {ID: "p", Type: "printer"}},
	}
	_, err := conduit.New(spec)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "found 2 errors")

	_, err = conduit.New(nil)
	assert.Error(t, err)
}

func TestEngine_StartTwice(t *testing.T) {
	eng, _ := startManual(t, pipelineSpec(t))
	assert.ErrorIs(t, eng.Start(context.Background()), conduit.ErrAlreadyStarted)
}

func TestEngine_Pause(t *testing.T) {
	eng, out := startManual(t, pipelineSpec(t))
	ctx := context.Background()

	eng.Pause(true)
	assert.Equal(t, domain.StatusPaused, eng.Status())
	assert.ErrorIs(t, eng.Step(ctx), scheduler.ErrPaused)

	eng.Pause(false)
	assert.Equal(t, domain.StatusRunning, eng.Status())
	require.NoError(t, eng.Step(ctx))
	assert.Equal(t, "2\n", out.String())
}

func TestEngine_SetParam(t *testing.T) {
	eng, out := startManual(t, pipelineSpec(t))
	ctx := context.Background()

	require.NoError(t, eng.SetParam("count", "step", 5))
	require.NoError(t, eng.Step(ctx))
	assert.Equal(t, "5\n", out.String())

	assert.ErrorIs(t, eng.SetParam("ghost", "step", 1), domain.ErrNodeNotFound)
	assert.Error(t, eng.SetParam("count", "nope", 1))
}

func TestEngine_SnapshotRoundTrip(t *testing.T) {
	store := memory.NewStore()
	eng, _ := startManual(t, pipelineSpec(t), conduit.WithSnapshotStore(store))
	ctx := context.Background()

	require.NoError(t, eng.SetParam("count", "step", 3))
	require.NoError(t, eng.Step(ctx))

	eng.Pause(true)
	snap, err := eng.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, snap.Status)
	assert.Equal(t, 3, snap.Spec.Nodes[0].Params["step"])
	assert.Len(t, snap.State.Nodes, 2)

	stored, err := eng.Snapshots().Load(ctx, "pipeline")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, stored.Status)

	restored, err := conduit.NewFromSnapshot(stored, conduit.WithTickFrequency(0), conduit.WithOutput(&syncBuffer{}))
	require.NoError(t, err)
	require.NoError(t, restored.Start(ctx))
	defer restored.Stop()
	assert.Equal(t, domain.StatusPaused, restored.Status())
	assert.True(t, restored.Pool().IsPaused())

	eng.Stop()
	final, err := store.Load(ctx, "pipeline")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStopped, final.Status, "Stop should persist a final snapshot")
}

func TestEngine_Events(t *testing.T) {
	eng, _ := startManual(t, pipelineSpec(t))
	ctx, cancel := context.WithCancel(context.Background())

	events := eng.Events(ctx, 64)
	require.NoError(t, eng.Step(context.Background()))
	cancel()

	seen := make(map[domain.EventType]int)
	for ev := range events {
		seen[ev.Type()]++
	}
	assert.Equal(t, 1, seen[domain.EventTick])
	assert.Equal(t, 1, seen[domain.EventTokenPublished])
	assert.Equal(t, 1, seen[domain.EventProcessFinish])
}

func TestEngine_Metrics(t *testing.T) {
	metrics := observability.NewMetrics()
	eng, _ := startManual(t, pipelineSpec(t), conduit.WithMetrics(metrics))
	require.Same(t, metrics, eng.Metrics())

	for i := 0; i < 2; i++ {
		require.NoError(t, eng.Step(context.Background()))
	}

	rec := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `conduit_node_ticks_total{node_id="count"} 2`), body)
	assert.True(t, strings.Contains(body, `conduit_node_rounds_total{node_id="print",node_type="printer"} 2`), body)
}

func TestEngine_ClockDrivesSources(t *testing.T) {
	spec := pipelineSpec(t)
	spec.TickFrequency = 200
	out := &syncBuffer{}
	eng, err := conduit.New(spec, conduit.WithOutput(out), conduit.WithThreadless())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	require.NoError(t, eng.Start(ctx))
	require.NoError(t, eng.Wait())

	assert.NotEmpty(t, out.String())
	assert.True(t, strings.HasPrefix(out.String(), "2\n4\n"), out.String())
}

func TestOpen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.yaml")
	data := []byte(`nodes:
  count:
    type: counter
  print: printer
connections:
  - count.value -> print.in
`)
	require.NoError(t, os.WriteFile(path, data, 0644))

	out := &syncBuffer{}
	eng, err := conduit.Open(path, conduit.WithTickFrequency(0), conduit.WithOutput(out))
	require.NoError(t, err)
	assert.Equal(t, "graph", eng.ID())

	require.NoError(t, eng.Start(context.Background()))
	defer eng.Stop()
	require.NoError(t, eng.Step(context.Background()))
	assert.Equal(t, "1\n", out.String())
}

func TestVersion(t *testing.T) {
	assert.NotEmpty(t, strings.TrimSpace(conduit.Version))
}

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aretw0/conduit"
	"github.com/aretw0/conduit/pkg/domain"
	"github.com/aretw0/conduit/pkg/dsl"
	"github.com/aretw0/conduit/pkg/observability"
	"github.com/aretw0/conduit/pkg/scheduler"
)

// MockEngine for testing
type MockEngine struct {
	mu      sync.Mutex
	paused  bool
	stopped bool
	params  map[string]any
	events  []domain.Event
	stepErr error
	desc    domain.GraphDescription
}

func newMockEngine() *MockEngine {
	return &MockEngine{
		params: make(map[string]any),
		desc: domain.GraphDescription{
			ID: "mock",
			Nodes: []domain.NodeDescription{
				{ID: "count", Type: "counter", Enabled: true, Source: true},
			},
		},
	}
}

func (m *MockEngine) ID() string { return "mock" }
func (m *MockEngine) Status() domain.ExecutionStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case m.stopped:
		return domain.StatusStopped
	case m.paused:
		return domain.StatusPaused
	}
	return domain.StatusRunning
}
func (m *MockEngine) Inspect() domain.GraphDescription { return m.desc }
func (m *MockEngine) Node(id string) (domain.NodeDescription, bool) {
	for _, n := range m.desc.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return domain.NodeDescription{}, false
}
func (m *MockEngine) SetParam(nodeID, name string, value any) error {
	if _, ok := m.Node(nodeID); !ok {
		return domain.ErrNodeNotFound
	}
	m.params[nodeID+"."+name] = value
	return nil
}
func (m *MockEngine) Pause(paused bool) {
	m.mu.Lock()
	m.paused = paused
	m.mu.Unlock()
}
func (m *MockEngine) Step(ctx context.Context) error { return m.stepErr }
func (m *MockEngine) Stop() {
	m.mu.Lock()
	m.stopped = true
	m.mu.Unlock()
}
func (m *MockEngine) Snapshot(ctx context.Context) (*domain.GraphSnapshot, error) {
	return &domain.GraphSnapshot{GraphID: "mock", State: m.desc}, nil
}
func (m *MockEngine) Events(ctx context.Context, n int) <-chan domain.Event {
	ch := make(chan domain.Event, len(m.events))
	for _, ev := range m.events {
		ch <- ev
	}
	close(ch)
	return ch
}

func nodeEvent(t domain.EventType, node string) domain.Event {
	return domain.Event{Node: &domain.NodeEvent{EventBase: domain.EventBase{Type: t}, NodeID: node}}
}

func TestHealthAndInfo(t *testing.T) {
	handler := NewHandler(newMockEngine())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/health", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"ok"`) {
		t.Errorf("health = %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/info", nil))
	var info map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("decode info: %v", err)
	}
	if info["graph_id"] != "mock" || info["version"] != strings.TrimSpace(conduit.Version) {
		t.Errorf("unexpected info: %v", info)
	}
}

func TestGetNode(t *testing.T) {
	handler := NewHandler(newMockEngine())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/nodes/count", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 OK, got %d", w.Code)
	}
	var node domain.NodeDescription
	if err := json.Unmarshal(w.Body.Bytes(), &node); err != nil {
		t.Fatalf("decode node: %v", err)
	}
	if node.Type != "counter" {
		t.Errorf("type = %q", node.Type)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/nodes/ghost", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestSetParam(t *testing.T) {
	eng := newMockEngine()
	handler := NewHandler(eng)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("PUT", "/nodes/count/params/step", strings.NewReader("5")))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200 OK, got %d %s", w.Code, w.Body.String())
	}
	if eng.params["count.step"] != float64(5) {
		t.Errorf("param not forwarded: %v", eng.params)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("PUT", "/nodes/ghost/params/step", strings.NewReader("5")))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("PUT", "/nodes/count/params/step", strings.NewReader("{")))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestControl(t *testing.T) {
	eng := newMockEngine()
	handler := NewHandler(eng)

	post := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("POST", path, nil))
		return w
	}

	if w := post("/control/pause"); !strings.Contains(w.Body.String(), "paused") {
		t.Errorf("pause = %s", w.Body.String())
	}
	if w := post("/control/resume"); !strings.Contains(w.Body.String(), "running") {
		t.Errorf("resume = %s", w.Body.String())
	}

	eng.stepErr = scheduler.ErrPaused
	if w := post("/control/step"); w.Code != http.StatusConflict {
		t.Errorf("step while paused = %d, want 409", w.Code)
	}
	eng.stepErr = nil
	if w := post("/control/step"); w.Code != http.StatusOK {
		t.Errorf("step = %d", w.Code)
	}

	post("/control/stop")
	if !eng.stopped {
		t.Error("stop was not forwarded")
	}
}

func TestSubscribeEvents(t *testing.T) {
	eng := newMockEngine()
	eng.events = []domain.Event{
		nodeEvent(domain.EventTick, "count"),
		nodeEvent(domain.EventProcessFinish, "print"),
	}
	handler := NewHandler(eng)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/events", nil))

	body := w.Body.String()
	if !strings.Contains(body, "event: ping") {
		t.Error("Expected ping event")
	}
	if !strings.Contains(body, "event: tick") || !strings.Contains(body, "event: process_finish") {
		t.Errorf("Expected both events, got:\n%s", body)
	}
}

func TestSubscribeEvents_Watch(t *testing.T) {
	eng := newMockEngine()
	eng.events = []domain.Event{
		nodeEvent(domain.EventTick, "count"),
		nodeEvent(domain.EventProcessFinish, "print"),
	}
	handler := NewHandler(eng)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/events?watch=process_finish", nil))

	body := w.Body.String()
	if strings.Contains(body, "event: tick") {
		t.Error("tick should be filtered out")
	}
	if !strings.Contains(body, `"node_id":"print"`) {
		t.Errorf("Expected process_finish payload, got:\n%s", body)
	}
}

func TestSubscribeEvents_WatchTokens(t *testing.T) {
	eng := newMockEngine()
	eng.events = []domain.Event{
		nodeEvent(domain.EventTick, "count"),
		{Token: &domain.TokenEvent{
			EventBase: domain.EventBase{Type: domain.EventTokenPublished},
			NodeID:    "count",
			Connector: "count:out:0",
			TokenType: domain.TypeInt,
			Seq:       4,
			Active:    true,
		}},
	}
	handler := NewHandler(eng)

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/events?watch=token_published", nil))

	body := w.Body.String()
	if strings.Contains(body, "event: tick") {
		t.Error("tick should be filtered out")
	}
	if !strings.Contains(body, "event: token_published") {
		t.Fatalf("Expected token_published event, got:\n%s", body)
	}
	if !strings.Contains(body, `"type":"token_published"`) || !strings.Contains(body, `"token_type":"int"`) {
		t.Errorf("Expected event and payload type in the data, got:\n%s", body)
	}
}

func TestSubscribeGraph_InitialDiff(t *testing.T) {
	handler := NewHandler(newMockEngine())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/graph/events", nil).WithContext(ctx))

	body := w.Body.String()
	if !strings.Contains(body, "event: graph_changed") {
		t.Fatalf("Expected graph_changed event, got:\n%s", body)
	}
	if !strings.Contains(body, `"graph_id":"mock"`) {
		t.Errorf("Expected full graph in first diff, got:\n%s", body)
	}
}

func TestMermaid(t *testing.T) {
	handler := NewHandler(newMockEngine())

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest("GET", "/graph/mermaid", nil))
	if !strings.HasPrefix(w.Body.String(), "graph LR") {
		t.Errorf("unexpected mermaid output:\n%s", w.Body.String())
	}
}

func TestLiveEngine(t *testing.T) {
	b := dsl.New("live")
	b.Node("count", "counter").Param("step", 2).Connect("value", "print.in")
	b.Node("print", "printer")
	spec, err := b.Build()
	if err != nil {
		t.Fatalf("build spec: %v", err)
	}

	metrics := observability.NewMetrics()
	eng, err := conduit.New(spec,
		conduit.WithTickFrequency(0),
		conduit.WithOutput(io.Discard),
		conduit.WithMetrics(metrics),
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	if err := eng.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer eng.Stop()

	srv := httptest.NewServer(NewHandler(eng, WithMetricsHandler(metrics.Handler())))
	defer srv.Close()
	client := &http.Client{Timeout: 5 * time.Second}

	for i := 0; i < 2; i++ {
		resp, err := client.Post(srv.URL+"/control/step", "application/json", nil)
		if err != nil {
			t.Fatalf("step: %v", err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("step status = %d", resp.StatusCode)
		}
	}

	req, _ := http.NewRequest(http.MethodPut, srv.URL+"/nodes/count/params/step", bytes.NewReader([]byte("3")))
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("set param: %v", err)
	}
	var node domain.NodeDescription
	if err := json.NewDecoder(resp.Body).Decode(&node); err != nil {
		t.Fatalf("decode node: %v", err)
	}
	resp.Body.Close()
	if node.Ticks != 2 {
		t.Errorf("ticks = %d, want 2", node.Ticks)
	}
	if node.Params["step"] != float64(3) {
		t.Errorf("step = %v, want 3", node.Params["step"])
	}

	resp, err = client.Get(srv.URL + "/nodes/count")
	if err != nil {
		t.Fatalf("get node: %v", err)
	}
	node = domain.NodeDescription{}
	if err := json.NewDecoder(resp.Body).Decode(&node); err != nil {
		t.Fatalf("decode node: %v", err)
	}
	resp.Body.Close()
	var committed map[string]any
	for _, c := range node.Connectors {
		if c.Kind == domain.KindOutput && c.Label == "value" {
			committed = c.Token
		}
	}
	if committed["type"] != domain.TypeInt || committed["data"] != float64(4) {
		t.Errorf("committed token = %v, want int 4", committed)
	}

	resp, err = client.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	text, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(text), `conduit_node_ticks_total{node_id="count"} 2`) {
		t.Errorf("metrics missing tick counter:\n%s", text)
	}
}

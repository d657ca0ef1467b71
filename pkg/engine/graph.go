package engine

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aretw0/conduit/pkg/domain"
)

// Graph owns a set of workers and the connections between them.
type Graph struct {
	opts options

	mu       sync.RWMutex
	workers  map[string]*NodeWorker
	order    []string
	conns    map[int]*Connection
	nextConn int
}

// NewGraph creates an empty graph. The options are applied to every worker
// added to it.
func NewGraph(opts ...Option) *Graph {
	return &Graph{
		opts:    applyOptions(defaultOptions(), opts),
		workers: make(map[string]*NodeWorker),
		conns:   make(map[int]*Connection),
	}
}

// ID returns the graph id set with WithGraphID.
func (g *Graph) ID() string { return g.opts.graphID }

// AddNode wraps body in a worker and adds it to the graph.
func (g *Graph) AddNode(id, typeName string, body Node, opts ...Option) (*NodeWorker, error) {
	g.mu.RLock()
	_, exists := g.workers[id]
	g.mu.RUnlock()
	if exists {
		return nil, fmt.Errorf("node %q already exists", id)
	}

	base := g.opts
	w, err := NewWorker(id, typeName, body, func(o *options) { *o = base }, func(o *options) {
		for _, opt := range opts {
			opt(o)
		}
	})
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.workers[id]; exists {
		return nil, fmt.Errorf("node %q already exists", id)
	}
	g.workers[id] = w
	g.order = append(g.order, id)
	return w, nil
}

// RemoveNode stops the worker, tears down all of its connections and drops it.
func (g *Graph) RemoveNode(id string) error {
	g.mu.Lock()
	w, ok := g.workers[id]
	if !ok {
		g.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrNodeNotFound, id)
	}
	delete(g.workers, id)
	for i, existing := range g.order {
		if existing == id {
			g.order = append(g.order[:i:i], g.order[i+1:]...)
			break
		}
	}
	g.mu.Unlock()

	w.Stop()
	for _, c := range w.teardown() {
		g.forget(c)
	}
	return nil
}

// Worker returns the worker with the given id.
func (g *Graph) Worker(id string) (*NodeWorker, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	w, ok := g.workers[id]
	return w, ok
}

// Workers returns every worker in insertion order.
func (g *Graph) Workers() []*NodeWorker {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*NodeWorker, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.workers[id])
	}
	return out
}

// Connections returns every connection ordered by id.
func (g *Graph) Connections() []*Connection {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Connection, 0, len(g.conns))
	for _, c := range g.conns {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID() < out[j].ID() })
	return out
}

// Connection returns the connection with the given id.
func (g *Graph) Connection(id int) (*Connection, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.conns[id]
	return c, ok
}

// Connect links two connectors. Addresses are "<node>.<label>" or a
// connector id such as "<node>:out_0".
func (g *Graph) Connect(from, to string) (*Connection, error) {
	src, err := g.resolveSender(from)
	if err != nil {
		return nil, err
	}
	dst, err := g.resolveReceiver(to)
	if err != nil {
		return nil, err
	}
	return g.Link(src, dst)
}

// Link connects two resolved connectors.
func (g *Graph) Link(from Sender, to Receiver) (*Connection, error) {
	if err := compatible(from, to); err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.nextConn++
	c := newConnection(g.nextConn, from, to)
	g.mu.Unlock()

	if err := to.attach(c); err != nil {
		return nil, err
	}
	if err := from.attach(c); err != nil {
		to.detach(c)
		return nil, err
	}

	g.mu.Lock()
	g.conns[c.id] = c
	g.mu.Unlock()

	g.opts.logger.Debug("connected", "connection", c.id, "from", from.ID(), "to", to.ID())
	g.nudge(from)
	return c, nil
}

// Disconnect removes a connection. A token in flight is discarded and the
// producer retries its pending publish.
func (g *Graph) Disconnect(id int) error {
	g.mu.Lock()
	c, ok := g.conns[id]
	delete(g.conns, id)
	g.mu.Unlock()
	if !ok {
		return fmt.Errorf("connection %d not found", id)
	}
	c.detachAll()
	g.nudge(c.from)
	return nil
}

// nudge lets the owner of a sender retry a publish that was held back.
func (g *Graph) nudge(s Sender) {
	if w, ok := g.Worker(s.NodeID()); ok {
		w.post(w.onMessagesProcessed)
	}
}

func (g *Graph) forget(c *Connection) {
	g.mu.Lock()
	delete(g.conns, c.id)
	g.mu.Unlock()
}

func (g *Graph) resolveSender(addr string) (Sender, error) {
	w, ref, err := g.split(addr)
	if err != nil {
		return nil, err
	}
	s, ok := w.Sender(ref)
	if !ok {
		return nil, fmt.Errorf("%w: no sending connector %q on node %s", domain.ErrConnectorNotFound, ref, w.ID())
	}
	return s, nil
}

func (g *Graph) resolveReceiver(addr string) (Receiver, error) {
	w, ref, err := g.split(addr)
	if err != nil {
		return nil, err
	}
	r, ok := w.Receiver(ref)
	if !ok {
		return nil, fmt.Errorf("%w: no receiving connector %q on node %s", domain.ErrConnectorNotFound, ref, w.ID())
	}
	return r, nil
}

// split resolves the node part of an address.
func (g *Graph) split(addr string) (*NodeWorker, string, error) {
	node, ref, ok := SplitAddress(addr)
	if !ok {
		return nil, "", fmt.Errorf("%w: malformed address %q", domain.ErrConnectorNotFound, addr)
	}
	w, found := g.Worker(node)
	if !found {
		return nil, "", fmt.Errorf("%w: %s", domain.ErrNodeNotFound, node)
	}
	if strings.Contains(addr, ":") {
		ref = addr
	}
	return w, ref, nil
}

// SplitAddress splits "<node>.<label>" or "<node>:<kind>_<n>" into the node
// id and the connector reference.
func SplitAddress(addr string) (node, ref string, ok bool) {
	if i := strings.IndexByte(addr, ':'); i > 0 && i < len(addr)-1 {
		return addr[:i], addr[i+1:], true
	}
	if i := strings.LastIndexByte(addr, '.'); i > 0 && i < len(addr)-1 {
		return addr[:i], addr[i+1:], true
	}
	return "", "", false
}

// SetExecutor binds every worker to exec.
func (g *Graph) SetExecutor(exec Executor) {
	for _, w := range g.Workers() {
		w.SetExecutor(exec)
	}
}

// SetPaused pauses or resumes every worker.
func (g *Graph) SetPaused(paused bool) {
	for _, w := range g.Workers() {
		w.SetPaused(paused)
	}
}

// Stop stops every worker, then discards every token in flight.
func (g *Graph) Stop() {
	workers := g.Workers()
	var halted []*NodeWorker
	for _, w := range workers {
		if w.stopped.CompareAndSwap(false, true) {
			halted = append(halted, w)
		}
	}
	for _, w := range halted {
		w.shutdown()
	}
	for _, c := range g.Connections() {
		c.Reset()
	}
}

// Reset resets every worker and connection without stopping them.
func (g *Graph) Reset() {
	for _, w := range g.Workers() {
		w.Reset()
	}
	for _, c := range g.Connections() {
		c.Reset()
	}
}

// Describe returns the inspection view of the whole graph.
func (g *Graph) Describe() domain.GraphDescription {
	d := domain.GraphDescription{ID: g.opts.graphID}
	for _, w := range g.Workers() {
		d.Nodes = append(d.Nodes, w.Describe())
	}
	for _, c := range g.Connections() {
		d.Connections = append(d.Connections, c.Describe())
	}
	return d
}

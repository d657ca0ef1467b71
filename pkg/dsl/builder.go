package dsl

import (
	"errors"
	"fmt"

	"github.com/aretw0/conduit/pkg/domain"
	"github.com/aretw0/conduit/pkg/engine"
)

// Builder manages the graph construction.
type Builder struct {
	spec  domain.GraphSpec
	nodes map[string]*NodeBuilder
	order []string
}

// New creates a new graph builder.
func New(id string) *Builder {
	return &Builder{
		spec:  domain.GraphSpec{ID: id},
		nodes: make(map[string]*NodeBuilder),
	}
}

// Name sets a human readable graph name.
func (b *Builder) Name(name string) *Builder {
	b.spec.Name = name
	return b
}

// Tick sets the tick frequency of the sources, in Hz.
func (b *Builder) Tick(hz float64) *Builder {
	b.spec.TickFrequency = hz
	return b
}

// Node creates a node of the given type.
// If the node already exists, it returns the existing builder.
func (b *Builder) Node(id, typ string) *NodeBuilder {
	if nb, ok := b.nodes[id]; ok {
		return nb
	}
	nb := &NodeBuilder{
		node: domain.NodeSpec{
			ID:   id,
			Type: typ,
		},
		builder: b,
	}
	b.nodes[id] = nb
	b.order = append(b.order, id)
	return nb
}

// Connect links two connector addresses ("node.label" or "node:out_0").
func (b *Builder) Connect(from, to string) *Builder {
	b.spec.Connections = append(b.spec.Connections, domain.ConnectionSpec{From: from, To: to})
	return b
}

// Build compiles the graph into a GraphSpec. Connections must reference
// declared nodes and every node needs a type.
func (b *Builder) Build() (*domain.GraphSpec, error) {
	spec := b.spec
	spec.Nodes = make([]domain.NodeSpec, 0, len(b.order))
	for _, id := range b.order {
		spec.Nodes = append(spec.Nodes, b.nodes[id].Build())
	}
	spec.Connections = append([]domain.ConnectionSpec(nil), b.spec.Connections...)

	var errs []error
	if spec.ID == "" {
		errs = append(errs, errors.New("graph id is empty"))
	}
	for _, n := range spec.Nodes {
		if n.Type == "" {
			errs = append(errs, fmt.Errorf("node %q has no type", n.ID))
		}
	}
	seen := make(map[domain.ConnectionSpec]bool)
	for _, c := range spec.Connections {
		if seen[c] {
			errs = append(errs, fmt.Errorf("duplicate connection %s -> %s", c.From, c.To))
		}
		seen[c] = true
		for _, addr := range []string{c.From, c.To} {
			node, _, ok := engine.SplitAddress(addr)
			if !ok {
				errs = append(errs, fmt.Errorf("malformed address %q", addr))
				continue
			}
			if _, declared := b.nodes[node]; !declared {
				errs = append(errs, fmt.Errorf("%w: %q referenced by %q", domain.ErrNodeNotFound, node, addr))
			}
		}
	}
	if err := errors.Join(errs...); err != nil {
		return nil, fmt.Errorf("failed to build graph %q: %w", spec.ID, err)
	}
	return &spec, nil
}

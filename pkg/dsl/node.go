package dsl

import "github.com/aretw0/conduit/pkg/domain"

// NodeBuilder provides a fluent API for configuring a node.
type NodeBuilder struct {
	node    domain.NodeSpec
	builder *Builder
}

// Param sets an initial parameter value.
func (n *NodeBuilder) Param(key string, value any) *NodeBuilder {
	if n.node.Params == nil {
		n.node.Params = make(map[string]any)
	}
	n.node.Params[key] = value
	return n
}

// Params sets several initial parameter values.
func (n *NodeBuilder) Params(values map[string]any) *NodeBuilder {
	for k, v := range values {
		n.Param(k, v)
	}
	return n
}

// Group binds the node to a scheduler group.
func (n *NodeBuilder) Group(group int) *NodeBuilder {
	n.node.Group = group
	return n
}

// Disabled creates the node disabled.
func (n *NodeBuilder) Disabled() *NodeBuilder {
	n.node.Disabled = true
	return n
}

// NoTick keeps the scheduler clock from ticking the node.
func (n *NodeBuilder) NoTick() *NodeBuilder {
	n.node.NoTick = true
	return n
}

// Connect links the connector with the given label on this node to the
// target address.
func (n *NodeBuilder) Connect(label, to string) *NodeBuilder {
	n.builder.Connect(n.node.ID+"."+label, to)
	return n
}

// Build returns the underlying domain.NodeSpec.
// This is primarily used by the Builder, but exposed for advanced usage.
func (n *NodeBuilder) Build() domain.NodeSpec {
	return n.node
}

package domain

import "time"

// GraphSpec is the declarative form of a graph: which nodes exist, how they
// are configured and how their connectors are linked.
type GraphSpec struct {
	ID            string           `json:"id,omitempty" yaml:"id,omitempty" mapstructure:"id"`
	Name          string           `json:"name,omitempty" yaml:"name,omitempty" mapstructure:"name"`
	TickFrequency float64          `json:"tick_frequency,omitempty" yaml:"tick_frequency,omitempty" mapstructure:"tick_frequency"`
	Nodes         []NodeSpec       `json:"nodes" yaml:"nodes" mapstructure:"nodes"`
	Connections   []ConnectionSpec `json:"connections,omitempty" yaml:"connections,omitempty" mapstructure:"connections"`
}

// NodeSpec configures one node instance.
type NodeSpec struct {
	ID       string         `json:"id" yaml:"id" mapstructure:"id"`
	Type     string         `json:"type" yaml:"type" mapstructure:"type"`
	Group    int            `json:"group,omitempty" yaml:"group,omitempty" mapstructure:"group"`
	Disabled bool           `json:"disabled,omitempty" yaml:"disabled,omitempty" mapstructure:"disabled"`
	NoTick   bool           `json:"no_tick,omitempty" yaml:"no_tick,omitempty" mapstructure:"no_tick"`
	Params   map[string]any `json:"params,omitempty" yaml:"params,omitempty" mapstructure:"params"`
}

// ConnectionSpec links two connectors. Addresses are either "<node>.<label>"
// or a connector id such as "<node>:out_0".
type ConnectionSpec struct {
	From string `json:"from" yaml:"from" mapstructure:"from"`
	To   string `json:"to" yaml:"to" mapstructure:"to"`
}

// Node returns the spec of the node with the given id.
func (g *GraphSpec) Node(id string) (*NodeSpec, bool) {
	for i := range g.Nodes {
		if g.Nodes[i].ID == id {
			return &g.Nodes[i], true
		}
	}
	return nil, false
}

// GraphSnapshot is a persisted capture of a running graph.
// Spec carries the parameter values current at capture time so that the
// graph can be rebuilt from it.
type GraphSnapshot struct {
	GraphID string           `json:"graph_id" yaml:"graph_id"`
	TakenAt time.Time        `json:"taken_at" yaml:"taken_at"`
	Status  ExecutionStatus  `json:"status" yaml:"status"`
	Spec    GraphSpec        `json:"spec" yaml:"spec"`
	State   GraphDescription `json:"state" yaml:"state"`
}

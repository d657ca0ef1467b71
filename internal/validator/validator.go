package validator

import (
	"fmt"
	"strings"

	"github.com/aretw0/conduit/internal/logging"
	"github.com/aretw0/conduit/pkg/domain"
	"github.com/aretw0/conduit/pkg/engine"
	"github.com/aretw0/conduit/pkg/registry"
)

// ValidateGraph checks a graph spec against the node types known to reg.
// It reports unknown types, duplicate ids, bad parameters, dangling or
// malformed addresses, rejected connections and unconnected mandatory inputs.
// The graph is assembled on a throwaway engine graph that never runs.
func ValidateGraph(spec *domain.GraphSpec, reg *registry.Registry) error {
	if spec == nil {
		return fmt.Errorf("graph spec is nil")
	}

	var errors []string
	g := engine.NewGraph(engine.WithLogger(logging.NewNop()), engine.WithGraphID(spec.ID))
	defer g.Stop()

	seen := make(map[string]bool)
	for i, n := range spec.Nodes {
		if n.ID == "" {
			errors = append(errors, fmt.Sprintf("node #%d has no id", i))
			continue
		}
		if seen[n.ID] {
			errors = append(errors, fmt.Sprintf("duplicate node id '%s'", n.ID))
			continue
		}
		seen[n.ID] = true

		body, err := reg.NewNode(n.Type)
		if err != nil {
			errors = append(errors, fmt.Sprintf("node '%s': %v", n.ID, err))
			continue
		}
		w, err := g.AddNode(n.ID, n.Type, body)
		if err != nil {
			errors = append(errors, fmt.Sprintf("node '%s': %v", n.ID, err))
			continue
		}
		if err := w.Parameters().Apply(n.Params); err != nil {
			errors = append(errors, fmt.Sprintf("node '%s': %v", n.ID, err))
		}
	}

	for _, c := range spec.Connections {
		if msg := checkAddress(c.From, seen); msg != "" {
			errors = append(errors, fmt.Sprintf("connection %s -> %s: source %s", c.From, c.To, msg))
			continue
		}
		if msg := checkAddress(c.To, seen); msg != "" {
			errors = append(errors, fmt.Sprintf("connection %s -> %s: target %s", c.From, c.To, msg))
			continue
		}
		if _, err := g.Connect(c.From, c.To); err != nil {
			errors = append(errors, fmt.Sprintf("connection %s -> %s: %v", c.From, c.To, err))
		}
	}

	for _, n := range spec.Nodes {
		if n.Disabled {
			continue
		}
		w, ok := g.Worker(n.ID)
		if !ok || w.CanReceive() {
			continue
		}
		for _, in := range w.Inputs() {
			if !in.Optional() && !in.IsConnected() {
				errors = append(errors, fmt.Sprintf("node '%s': mandatory input '%s' is not connected", n.ID, in.Label()))
			}
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("found %d errors:\n- %s", len(errors), strings.Join(errors, "\n- "))
	}
	return nil
}

func checkAddress(addr string, nodes map[string]bool) string {
	node, _, ok := engine.SplitAddress(addr)
	if !ok {
		return "address is malformed"
	}
	if !nodes[node] {
		return fmt.Sprintf("references unknown node '%s'", node)
	}
	return ""
}
